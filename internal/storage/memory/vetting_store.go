package memory

import (
	"context"
	"sync"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

type record struct {
	latest  *domain.Verdict
	history []*domain.Verdict // newest first
}

// VettingStore is an in-memory implementation of storage.VettingStore.
type VettingStore struct {
	mu           sync.RWMutex
	byToken      map[domain.TokenID]*record
	historyLimit int
}

// NewVettingStore creates a new in-memory vetting store.
// A non-positive historyLimit uses storage.DefaultHistoryLimit.
func NewVettingStore(historyLimit int) *VettingStore {
	if historyLimit <= 0 {
		historyLimit = storage.DefaultHistoryLimit
	}
	return &VettingStore{
		byToken:      make(map[domain.TokenID]*record),
		historyLimit: historyLimit,
	}
}

// GetLatest returns a copy of the current verdict. Returns ErrNotFound if none.
func (s *VettingStore) GetLatest(_ context.Context, token domain.TokenID) (*domain.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byToken[token]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return rec.latest.Clone(), nil
}

// Save replaces the latest verdict and moves the previous one to history.
func (s *VettingStore) Save(_ context.Context, token domain.TokenID, v *domain.Verdict) error {
	verdictCopy, err := storage.Prepare(token, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byToken[token]
	if !exists {
		s.byToken[token] = &record{latest: verdictCopy}
		return nil
	}
	if verdictCopy.RunID != "" && rec.latest.RunID == verdictCopy.RunID {
		return nil
	}

	rec.history = append([]*domain.Verdict{rec.latest}, rec.history...)
	if len(rec.history) > s.historyLimit {
		rec.history = rec.history[:s.historyLimit]
	}
	rec.latest = verdictCopy
	return nil
}

// History returns copies of superseded verdicts, newest first.
func (s *VettingStore) History(_ context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.byToken[token]
	if !exists {
		return nil, nil
	}

	n := len(rec.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.Verdict, n)
	for i := 0; i < n; i++ {
		out[i] = rec.history[i].Clone()
	}
	return out, nil
}

// Delete removes the record for token. Returns ErrNotFound if none.
func (s *VettingStore) Delete(_ context.Context, token domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[token]; !exists {
		return storage.ErrNotFound
	}
	delete(s.byToken, token)
	return nil
}

var _ storage.VettingStore = (*VettingStore)(nil)
