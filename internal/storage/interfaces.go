// Package storage defines the persistence contracts for vetting verdicts.
// Backends live in sub-packages.
package storage

import (
	"context"
	"fmt"
	"time"

	"token-vetting/internal/domain"
)

// DefaultHistoryLimit is how many superseded verdicts a backend keeps per token.
const DefaultHistoryLimit = 20

// VettingStore persists one record per token: the latest verdict plus a
// bounded history of the verdicts it replaced. It has no staleness opinion.
type VettingStore interface {
	// GetLatest returns the current verdict. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, token domain.TokenID) (*domain.Verdict, error)

	// Save replaces the latest verdict atomically; concurrent saves for one
	// token resolve to last writer wins and never produce a torn record.
	// The replaced verdict moves to history. Saving a verdict whose RunID
	// equals the stored one is a no-op. Returns ErrInvalidInput for a
	// verdict with no check results.
	Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error

	// History returns superseded verdicts, newest first, at most limit.
	// A non-positive limit returns everything retained.
	History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error)

	// Delete removes the token's record. Returns ErrNotFound if none.
	// Administrative only; the engine never deletes.
	Delete(ctx context.Context, token domain.TokenID) error
}

// CheckStat summarizes logged results of one check with one status.
type CheckStat struct {
	Name          string        `json:"name"`
	Status        domain.Status `json:"status"`
	Count         int64         `json:"count"`
	AvgDurationMs float64       `json:"avgDurationMs"`
}

// CheckResultLog is an append-only log of every check result that reached a
// persisted verdict, kept for analytics.
type CheckResultLog interface {
	// Append records every check of v.
	Append(ctx context.Context, v *domain.Verdict) error

	// Stats aggregates results computed at or after since, ordered by name then status.
	Stats(ctx context.Context, since time.Time) ([]CheckStat, error)
}

// ValidateVerdict rejects verdicts that must never be persisted.
func ValidateVerdict(token domain.TokenID, v *domain.Verdict) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}
	if v == nil {
		return fmt.Errorf("%w: nil verdict", ErrInvalidInput)
	}
	if len(v.Checks) == 0 {
		return fmt.Errorf("%w: verdict has no check results", ErrInvalidInput)
	}
	if v.TokenID != "" && v.TokenID != token {
		return fmt.Errorf("%w: verdict is for %s, not %s", ErrInvalidInput, v.TokenID, token)
	}
	return nil
}

// Prepare returns the copy of v a backend should persist: validated,
// keyed to token and without the service-computed freshness flag.
func Prepare(token domain.TokenID, v *domain.Verdict) (*domain.Verdict, error) {
	if err := ValidateVerdict(token, v); err != nil {
		return nil, err
	}
	c := v.Clone()
	c.TokenID = token
	c.Fresh = false
	return c, nil
}
