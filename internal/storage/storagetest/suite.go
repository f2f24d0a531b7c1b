// Package storagetest holds the behavioral test suite every storage.VettingStore
// backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

// Factory returns an empty store that keeps historyLimit superseded verdicts.
type Factory func(t *testing.T, historyLimit int) storage.VettingStore

// Token identifiers used by the suite.
const (
	TokenA domain.TokenID = "So11111111111111111111111111111111111111112"
	TokenB domain.TokenID = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Verdict builds a verdict whose every check detail names runID, so a torn
// write shows up as mismatched details.
func Verdict(token domain.TokenID, runID string, score int, offset time.Duration) *domain.Verdict {
	at := base.Add(offset)
	checks := []domain.CheckResult{
		{Name: "liquidity_threshold", Status: domain.StatusPass, Score: score, Detail: runID, DurationMs: 3, ComputedAt: at},
		{Name: "pair_age", Status: domain.StatusWarn, Score: -20, Detail: runID, DurationMs: 1, ComputedAt: at},
		{Name: "ownership_concentration", Status: domain.StatusError, Detail: runID, DurationMs: 5000, ComputedAt: at},
	}
	return &domain.Verdict{
		TokenID:    token,
		RunID:      runID,
		Score:      score - 20,
		Status:     domain.StatusWarn,
		Confidence: 2.0 / 3.0,
		Executed:   2,
		Total:      3,
		Checks:     checks,
		ComputedAt: at,
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetLatestNotFound", func(t *testing.T) {
		s := newStore(t, 5)
		_, err := s.GetLatest(context.Background(), TokenA)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SaveAndGetLatest", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()
		want := Verdict(TokenA, "run-1", 20, 0)
		want.Fresh = true

		require.NoError(t, s.Save(ctx, TokenA, want))

		got, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		assertSameVerdict(t, want, got)
		assert.False(t, got.Fresh, "freshness is never persisted")

		_, err = s.GetLatest(ctx, TokenB)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ReturnedVerdictIsACopy", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, TokenA, Verdict(TokenA, "run-1", 20, 0)))

		got, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		got.Checks[0].Score = -99

		again, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		assert.Equal(t, 20, again.Checks[0].Score)
	})

	t.Run("RejectsInvalidVerdicts", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()

		empty := Verdict(TokenA, "run-1", 20, 0)
		empty.Checks = nil
		assert.ErrorIs(t, s.Save(ctx, TokenA, empty), storage.ErrInvalidInput)
		assert.ErrorIs(t, s.Save(ctx, TokenA, nil), storage.ErrInvalidInput)
		assert.ErrorIs(t, s.Save(ctx, TokenA, Verdict(TokenB, "run-2", 1, 0)), storage.ErrInvalidInput)

		_, err := s.GetLatest(ctx, TokenA)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("HistoryNewestFirstAndBounded", func(t *testing.T) {
		s := newStore(t, 3)
		ctx := context.Background()

		for i := 1; i <= 6; i++ {
			v := Verdict(TokenA, fmt.Sprintf("run-%d", i), i, time.Duration(i)*time.Minute)
			require.NoError(t, s.Save(ctx, TokenA, v))
		}

		latest, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		assert.Equal(t, "run-6", latest.RunID)

		history, err := s.History(ctx, TokenA, 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "run-5", history[0].RunID)
		assert.Equal(t, "run-4", history[1].RunID)
		assert.Equal(t, "run-3", history[2].RunID)

		limited, err := s.History(ctx, TokenA, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "run-5", limited[0].RunID)

		none, err := s.History(ctx, TokenB, 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ResaveSameRunIsNoop", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()
		v := Verdict(TokenA, "run-1", 20, 0)

		require.NoError(t, s.Save(ctx, TokenA, v))
		require.NoError(t, s.Save(ctx, TokenA, v))

		history, err := s.History(ctx, TokenA, 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("TokensAreIndependent", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, TokenA, Verdict(TokenA, "a-1", 10, 0)))
		require.NoError(t, s.Save(ctx, TokenB, Verdict(TokenB, "b-1", 30, 0)))

		a, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		b, err := s.GetLatest(ctx, TokenB)
		require.NoError(t, err)
		assert.Equal(t, "a-1", a.RunID)
		assert.Equal(t, "b-1", b.RunID)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t, 5)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, TokenA, Verdict(TokenA, "run-1", 1, 0)))
		require.NoError(t, s.Save(ctx, TokenA, Verdict(TokenA, "run-2", 2, time.Minute)))

		require.NoError(t, s.Delete(ctx, TokenA))
		_, err := s.GetLatest(ctx, TokenA)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		history, err := s.History(ctx, TokenA, 0)
		require.NoError(t, err)
		assert.Empty(t, history)

		assert.ErrorIs(t, s.Delete(ctx, TokenA), storage.ErrNotFound)
	})

	t.Run("ConcurrentSavesAreNeverTorn", func(t *testing.T) {
		const writers = 16
		s := newStore(t, writers)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Save(ctx, TokenA, Verdict(TokenA, fmt.Sprintf("run-%02d", i), i, time.Duration(i)*time.Second))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		latest, err := s.GetLatest(ctx, TokenA)
		require.NoError(t, err)
		assertIntact(t, latest)

		history, err := s.History(ctx, TokenA, 0)
		require.NoError(t, err)
		assert.Len(t, history, writers-1)
		seen := map[string]bool{latest.RunID: true}
		for _, v := range history {
			assertIntact(t, v)
			assert.False(t, seen[v.RunID], "run %s recorded twice", v.RunID)
			seen[v.RunID] = true
		}
	})
}

func assertSameVerdict(t *testing.T, want, got *domain.Verdict) {
	t.Helper()
	assert.Equal(t, want.TokenID, got.TokenID)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Status, got.Status)
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
	assert.Equal(t, want.Executed, got.Executed)
	assert.Equal(t, want.Total, got.Total)
	assert.True(t, want.ComputedAt.Equal(got.ComputedAt), "computedAt %s != %s", want.ComputedAt, got.ComputedAt)
	require.Len(t, got.Checks, len(want.Checks))
	for i := range want.Checks {
		assert.Equal(t, want.Checks[i].Name, got.Checks[i].Name)
		assert.Equal(t, want.Checks[i].Status, got.Checks[i].Status)
		assert.Equal(t, want.Checks[i].Score, got.Checks[i].Score)
		assert.Equal(t, want.Checks[i].Detail, got.Checks[i].Detail)
		assert.Equal(t, want.Checks[i].DurationMs, got.Checks[i].DurationMs)
		assert.True(t, want.Checks[i].ComputedAt.Equal(got.Checks[i].ComputedAt))
	}
}

func assertIntact(t *testing.T, v *domain.Verdict) {
	t.Helper()
	require.Len(t, v.Checks, 3)
	for _, c := range v.Checks {
		assert.Equal(t, v.RunID, c.Detail, "check result from another run")
		assert.True(t, c.ComputedAt.Equal(v.ComputedAt))
	}
}
