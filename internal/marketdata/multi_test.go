package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"token-vetting/internal/domain"
)

type fakePairs struct {
	name  string
	pairs []Pair
	err   error
	delay time.Duration
}

func (f *fakePairs) Name() string { return f.name }

func (f *fakePairs) Pairs(ctx context.Context, _ domain.TokenID) ([]Pair, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, classify(f.name, ctx.Err())
		case <-time.After(f.delay):
		}
	}
	return f.pairs, f.err
}

type fakeSecurity struct {
	sec *Security
	err error
}

func (f *fakeSecurity) Name() string { return "security" }

func (f *fakeSecurity) Security(context.Context, domain.TokenID) (*Security, error) {
	return f.sec, f.err
}

var fetchedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func newMulti() *MultiClient {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewMultiClient(WithClock(func() time.Time { return fetchedAt }), WithLogger(l))
}

func TestMultiClient_MergePicksMostLiquidPair(t *testing.T) {
	m := newMulti()
	m.AddPairSource(&fakePairs{name: "first", pairs: []Pair{
		{Address: "pair-c", DEX: "orca", LiquidityUSD: 50_000},
		{Address: "pair-b", DEX: "raydium", LiquidityUSD: 90_000, Volume24hUSD: 12_000},
	}}, time.Second, nil)
	m.AddPairSource(&fakePairs{name: "second", pairs: []Pair{
		{Address: "pair-a", DEX: "meteora", LiquidityUSD: 90_000, Volume24hUSD: 1},
	}}, time.Second, nil)

	snap, err := m.Fetch(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, "pair-a", snap.PairAddress, "ties go to the smaller address")
	assert.Equal(t, "meteora", snap.DEX)
	assert.Equal(t, []string{"pair-a", "pair-b", "pair-c"}, snap.PairAddresses)
	assert.Equal(t, []string{"first", "second"}, snap.Sources)
	assert.Equal(t, fetchedAt, snap.FetchedAt)
	assert.False(t, snap.HolderDataAvailable)
	assert.False(t, snap.ContractDataAvailable)
}

func TestMultiClient_MergeIsOrderIndependent(t *testing.T) {
	a := &fakePairs{name: "a", pairs: []Pair{{Address: "x", LiquidityUSD: 10}, {Address: "y", LiquidityUSD: 10}}}
	b := &fakePairs{name: "b", pairs: []Pair{{Address: "w", LiquidityUSD: 5}}}

	m1 := newMulti()
	m1.AddPairSource(a, time.Second, nil)
	m1.AddPairSource(b, time.Second, nil)
	m2 := newMulti()
	m2.AddPairSource(b, time.Second, nil)
	m2.AddPairSource(a, time.Second, nil)

	s1, err := m1.Fetch(context.Background(), testToken)
	require.NoError(t, err)
	s2, err := m2.Fetch(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, s1.PairAddress, s2.PairAddress)
	assert.Equal(t, s1.PairAddresses, s2.PairAddresses)
}

func TestMultiClient_PartialFailureStillSucceeds(t *testing.T) {
	m := newMulti()
	m.AddPairSource(&fakePairs{name: "down", err: fmt.Errorf("down: %w", domain.ErrProviderError)}, time.Second, nil)
	m.AddPairSource(&fakePairs{name: "up", pairs: []Pair{{Address: "p", LiquidityUSD: 1}}}, time.Second, nil)

	snap, err := m.Fetch(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, snap.Sources)
}

func TestMultiClient_AllFailed(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		want error
	}{
		{"all unknown", []error{domain.ErrDataUnavailable, domain.ErrDataUnavailable}, domain.ErrDataUnavailable},
		{"provider error wins over unknown", []error{domain.ErrDataUnavailable, domain.ErrProviderError}, domain.ErrProviderError},
		{"first non-unavailable in config order", []error{domain.ErrTimeout, domain.ErrProviderError}, domain.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMulti()
			for i, e := range tt.errs {
				m.AddPairSource(&fakePairs{name: fmt.Sprintf("p%d", i), err: e}, time.Second, nil)
			}
			_, err := m.Fetch(context.Background(), testToken)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMultiClient_ProviderTimeout(t *testing.T) {
	m := newMulti()
	m.AddPairSource(&fakePairs{name: "slow", delay: time.Second, pairs: []Pair{{Address: "p"}}}, 30*time.Millisecond, nil)

	start := time.Now()
	_, err := m.Fetch(context.Background(), testToken)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMultiClient_SecurityData(t *testing.T) {
	m := newMulti()
	m.AddPairSource(&fakePairs{name: "dex", pairs: []Pair{{Address: "p", LiquidityUSD: 1}}}, time.Second, nil)
	m.SetSecuritySource(&fakeSecurity{sec: &Security{
		HolderCount: 300, TopHolderShare: 0.1, Top10HolderShare: 0.4, Freezable: true,
	}}, time.Second, nil)

	snap, err := m.Fetch(context.Background(), testToken)
	require.NoError(t, err)
	assert.True(t, snap.HolderDataAvailable)
	assert.True(t, snap.ContractDataAvailable)
	assert.Equal(t, 300, snap.HolderCount)
	assert.True(t, snap.Freezable)
	assert.Equal(t, []string{"dex", "security"}, snap.Sources)
}

func TestMultiClient_SecurityFailureDegrades(t *testing.T) {
	m := newMulti()
	m.AddPairSource(&fakePairs{name: "dex", pairs: []Pair{{Address: "p", LiquidityUSD: 1}}}, time.Second, nil)
	m.SetSecuritySource(&fakeSecurity{err: errors.New("boom")}, time.Second, nil)

	snap, err := m.Fetch(context.Background(), testToken)
	require.NoError(t, err)
	assert.False(t, snap.HolderDataAvailable)
	assert.False(t, snap.ContractDataAvailable)
	assert.Equal(t, []string{"dex"}, snap.Sources)
}

func TestMultiClient_RateLimiterBoundedByTimeout(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow()) // drain the burst

	m := newMulti()
	m.AddPairSource(&fakePairs{name: "throttled", pairs: []Pair{{Address: "p"}}}, 20*time.Millisecond, limiter)

	_, err := m.Fetch(context.Background(), testToken)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestNew_FromConfig(t *testing.T) {
	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dexBody(dexPairJSON("solana", pairA, `75000`, 3000, fetchedAt.Add(-48*time.Hour).UnixMilli()))))
	}))
	defer dex.Close()
	goplus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goPlusBody(testToken)))
	}))
	defer goplus.Close()

	l := logrus.New()
	l.SetOutput(io.Discard)
	m, err := New([]ProviderConfig{
		{Name: "dexscreener", Kind: KindDexScreener, BaseURL: dex.URL, Chain: "solana", Timeout: time.Second, RatePerSecond: 100, Burst: 5},
		{Name: "goplus", Kind: KindGoPlus, BaseURL: goplus.URL, Timeout: time.Second},
	}, WithLogger(l), WithClock(func() time.Time { return fetchedAt }))
	require.NoError(t, err)

	snap, err := m.Fetch(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, pairA, snap.PairAddress)
	assert.Equal(t, 75_000.0, snap.LiquidityUSD)
	assert.Equal(t, 4821, snap.HolderCount)
	age, ok := snap.PairAge()
	assert.True(t, ok)
	assert.Equal(t, 48*time.Hour, age)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]ProviderConfig{{Name: "x", Kind: "coingecko", Timeout: time.Second}})
	assert.Error(t, err)

	_, err = New([]ProviderConfig{{Name: "x", Kind: KindDexScreener}})
	assert.Error(t, err)

	_, err = New([]ProviderConfig{
		{Name: "d", Kind: KindDexScreener, Timeout: time.Second},
		{Name: "g1", Kind: KindGoPlus, Timeout: time.Second},
		{Name: "g2", Kind: KindGoPlus, Timeout: time.Second},
	})
	assert.Error(t, err)
}
