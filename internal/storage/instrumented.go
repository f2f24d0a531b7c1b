package storage

import (
	"context"
	"errors"
	"time"

	"token-vetting/internal/domain"
	"token-vetting/internal/observability"
)

// Instrumented records latency and errors of a VettingStore under a backend label.
type Instrumented struct {
	backend string
	next    VettingStore
}

// Instrument wraps next with metrics.
func Instrument(backend string, next VettingStore) *Instrumented {
	return &Instrumented{backend: backend, next: next}
}

func (s *Instrumented) record(op string, start time.Time, err error) {
	// A missing record is an answer, not a failure.
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	observability.RecordStoreOp(s.backend, op, time.Since(start).Seconds(), err)
}

// GetLatest implements VettingStore.
func (s *Instrumented) GetLatest(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	start := time.Now()
	v, err := s.next.GetLatest(ctx, token)
	s.record("get_latest", start, err)
	return v, err
}

// Save implements VettingStore.
func (s *Instrumented) Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error {
	start := time.Now()
	err := s.next.Save(ctx, token, v)
	s.record("save", start, err)
	return err
}

// History implements VettingStore.
func (s *Instrumented) History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	start := time.Now()
	vs, err := s.next.History(ctx, token, limit)
	s.record("history", start, err)
	return vs, err
}

// Delete implements VettingStore.
func (s *Instrumented) Delete(ctx context.Context, token domain.TokenID) error {
	start := time.Now()
	err := s.next.Delete(ctx, token)
	s.record("delete", start, err)
	return err
}

var _ VettingStore = (*Instrumented)(nil)
