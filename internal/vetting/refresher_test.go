package vetting

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-vetting/internal/checks"
	"token-vetting/internal/domain"
	"token-vetting/internal/fixtures"
	"token-vetting/internal/storage/memory"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRefresher_RefreshOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for token, snap := range fixtures.Snapshots(h.clock.Now()) {
		if token != fixtures.USDT {
			h.market.AddSnapshot(snap)
		}
	}
	// USDC already has a fresh verdict; USDT is unknown upstream.
	require.NoError(t, h.store.Save(ctx, fixtures.USDC, fixtures.Verdict(fixtures.USDC, h.clock.Now())))

	r := NewRefresher(h.svc, RefresherOptions{
		Tokens: []domain.TokenID{fixtures.WrappedSOL, fixtures.USDC, fixtures.USDT},
		Logger: quietLogger(),
	})

	report, ok := r.RefreshOnce(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, report.Computed)
	assert.Equal(t, 1, report.Cached)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, report, r.LastReport())

	// Second pass: everything computed is now fresh.
	report, ok = r.RefreshOnce(ctx)
	require.True(t, ok)
	assert.Equal(t, 0, report.Computed)
	assert.Equal(t, 2, report.Cached)
}

func TestRefresher_SkipsOverlappingPass(t *testing.T) {
	market := &blockingMarket{
		release: make(chan struct{}),
		snap:    fixtures.HealthySnapshot(fixtures.USDC, fixtures.Epoch),
	}
	svc := New(Options{
		Store:    memory.NewVettingStore(0),
		Market:   market,
		Registry: checks.Default(),
		Clock:    func() time.Time { return fixtures.Epoch },
		Logger:   quietLogger(),
	})
	r := NewRefresher(svc, RefresherOptions{Tokens: []domain.TokenID{fixtures.USDC}, Logger: quietLogger()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RefreshOnce(context.Background())
	}()

	require.Eventually(t, func() bool { return market.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, ok := r.RefreshOnce(context.Background())
	assert.False(t, ok, "overlapping pass should be skipped")

	close(market.release)
	<-done

	_, ok = r.RefreshOnce(context.Background())
	assert.True(t, ok)
}

func TestRefresher_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.market.AddSnapshot(fixtures.HealthySnapshot(fixtures.USDC, h.clock.Now()))

	r := NewRefresher(h.svc, RefresherOptions{
		Tokens:   []domain.TokenID{fixtures.USDC},
		Interval: 10 * time.Millisecond,
		Logger:   quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.LastReport().Computed+r.LastReport().Cached > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}

// blockingSaveStore holds Save until release is closed.
type blockingSaveStore struct {
	*memory.VettingStore
	saving  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSaveStore) Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error {
	s.once.Do(func() { close(s.saving) })
	<-s.release
	return s.VettingStore.Save(ctx, token, v)
}

func TestRefresher_CancelWhileWaitingForSlot(t *testing.T) {
	h := newHarness(t, nil)
	for _, snap := range fixtures.Snapshots(h.clock.Now()) {
		h.market.AddSnapshot(snap)
	}
	store := &blockingSaveStore{
		VettingStore: memory.NewVettingStore(0),
		saving:       make(chan struct{}),
		release:      make(chan struct{}),
	}
	svc := New(Options{
		Store:    store,
		Market:   h.market,
		Registry: checks.Default(),
		Clock:    h.clock.Now,
		Logger:   quietLogger(),
	})
	r := NewRefresher(svc, RefresherOptions{
		Tokens:      []domain.TokenID{fixtures.USDC, fixtures.WrappedSOL},
		Concurrency: 1,
		Logger:      quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	reports := make(chan RefreshReport, 1)
	go func() {
		report, _ := r.RefreshOnce(ctx)
		reports <- report
	}()

	// The first token holds the only slot while its save is pending.
	<-store.saving
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	select {
	case report := <-reports:
		assert.Equal(t, 1, report.Computed)
		assert.Equal(t, 0, report.Failed, "the second token is never started")
	case <-time.After(time.Second):
		t.Fatal("refresh pass did not stop")
	}
	assert.Equal(t, 1, h.market.Calls())
}

func TestNewRefresher_Defaults(t *testing.T) {
	h := newHarness(t, nil)
	r := NewRefresher(h.svc, RefresherOptions{})
	assert.Equal(t, DefaultRefreshInterval, r.interval)
	assert.Equal(t, 4, r.concurrency)
}
