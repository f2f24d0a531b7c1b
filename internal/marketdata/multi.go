package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"token-vetting/internal/domain"
	"token-vetting/internal/observability"
)

// Provider kinds.
const (
	KindDexScreener = "dexscreener"
	KindGoPlus      = "goplus"
	KindSolanaRPC   = "solana_rpc"
)

// ProviderConfig configures one upstream provider.
type ProviderConfig struct {
	Name          string        `yaml:"name"`
	Kind          string        `yaml:"kind"`
	BaseURL       string        `yaml:"base_url"`
	Chain         string        `yaml:"chain"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSecond float64       `yaml:"rate_per_second"` // zero means unlimited
	Burst         int           `yaml:"burst"`
}

// Validate checks a single provider entry.
func (p ProviderConfig) Validate() error {
	if p.Name == "" {
		return errors.New("provider name is empty")
	}
	switch p.Kind {
	case KindDexScreener, KindGoPlus:
	case KindSolanaRPC:
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: solana_rpc needs base_url", p.Name)
		}
	default:
		return fmt.Errorf("provider %s: unknown kind %q", p.Name, p.Kind)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("provider %s: timeout must be positive", p.Name)
	}
	if p.RatePerSecond < 0 || p.MaxRetries < 0 {
		return fmt.Errorf("provider %s: rate and retries must not be negative", p.Name)
	}
	return nil
}

func (p ProviderConfig) limiter() *rate.Limiter {
	if p.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := p.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(p.RatePerSecond), burst)
}

type pairEndpoint struct {
	src     PairSource
	timeout time.Duration
	limiter *rate.Limiter
}

type securityEndpoint struct {
	src     SecuritySource
	timeout time.Duration
	limiter *rate.Limiter
}

// MultiClient queries every configured provider concurrently and merges
// their answers deterministically.
type MultiClient struct {
	markets  []pairEndpoint
	security *securityEndpoint
	now      func() time.Time
	logger   logrus.FieldLogger
}

// MultiOption configures a MultiClient.
type MultiOption func(*MultiClient)

// WithClock sets the clock used for FetchedAt.
func WithClock(now func() time.Time) MultiOption {
	return func(m *MultiClient) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) MultiOption {
	return func(m *MultiClient) {
		m.logger = l
	}
}

// NewMultiClient creates an empty MultiClient. Add sources in priority order.
func NewMultiClient(opts ...MultiOption) *MultiClient {
	m := &MultiClient{
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "marketdata")
	return m
}

// AddPairSource appends a market provider.
func (m *MultiClient) AddPairSource(src PairSource, timeout time.Duration, limiter *rate.Limiter) {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	m.markets = append(m.markets, pairEndpoint{src: src, timeout: timeout, limiter: limiter})
}

// SetSecuritySource sets the holder/contract provider.
func (m *MultiClient) SetSecuritySource(src SecuritySource, timeout time.Duration, limiter *rate.Limiter) {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	m.security = &securityEndpoint{src: src, timeout: timeout, limiter: limiter}
}

// New builds a MultiClient from provider configuration.
// Providers are used in configuration order; at most one security provider
// (goplus or solana_rpc) is allowed.
func New(cfgs []ProviderConfig, opts ...MultiOption) (*MultiClient, error) {
	m := NewMultiClient(opts...)
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		httpOpts := []ClientOption{WithTimeout(cfg.Timeout), WithMaxRetries(cfg.MaxRetries)}
		if cfg.APIKey != "" {
			httpOpts = append(httpOpts, WithHeader("Authorization", cfg.APIKey))
		}
		client := NewHTTPClient(httpOpts...)

		switch cfg.Kind {
		case KindDexScreener:
			m.AddPairSource(NewDexScreener(cfg.Name, cfg.BaseURL, cfg.Chain, client), cfg.Timeout, cfg.limiter())
		case KindGoPlus, KindSolanaRPC:
			if m.security != nil {
				return nil, fmt.Errorf("provider %s: only one security provider is supported", cfg.Name)
			}
			var src SecuritySource = NewGoPlus(cfg.Name, cfg.BaseURL, client)
			if cfg.Kind == KindSolanaRPC {
				src = NewSolanaRPC(cfg.Name, cfg.BaseURL, client)
			}
			m.SetSecuritySource(src, cfg.Timeout, cfg.limiter())
		}
	}
	if len(m.markets) == 0 {
		return nil, errors.New("no market data provider configured")
	}
	return m, nil
}

type pairResult struct {
	pairs []Pair
	err   error
}

// Fetch implements Client.
func (m *MultiClient) Fetch(ctx context.Context, token domain.TokenID) (*domain.MarketSnapshot, error) {
	results := make([]pairResult, len(m.markets))
	var (
		sec    *Security
		secErr error
	)

	var g errgroup.Group
	for i, ep := range m.markets {
		g.Go(func() error {
			pairs, err := callBounded(ctx, ep.src.Name(), ep.timeout, ep.limiter, func(cctx context.Context) ([]Pair, error) {
				return ep.src.Pairs(cctx, token)
			})
			results[i] = pairResult{pairs: pairs, err: err}
			return nil
		})
	}
	if m.security != nil {
		ep := m.security
		g.Go(func() error {
			sec, secErr = callBounded(ctx, ep.src.Name(), ep.timeout, ep.limiter, func(cctx context.Context) (*Security, error) {
				return ep.src.Security(cctx, token)
			})
			return nil
		})
	}
	_ = g.Wait()

	snap, err := m.merge(token, results)
	if err != nil {
		return nil, err
	}

	if sec != nil {
		snap.HolderDataAvailable = true
		snap.HolderCount = sec.HolderCount
		snap.TopHolderShare = sec.TopHolderShare
		snap.Top10HolderShare = sec.Top10HolderShare
		snap.ContractDataAvailable = true
		snap.Mintable = sec.Mintable
		snap.Freezable = sec.Freezable
		snap.OwnershipRenounced = sec.OwnershipRenounced
		snap.MintAuthority = sec.MintAuthority
		snap.Sources = append(snap.Sources, m.security.src.Name())
	} else if secErr != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": m.security.src.Name(),
			"token":    token,
		}).WithError(secErr).Warn("security data unavailable")
	}

	return snap, nil
}

// merge folds market provider answers. The most liquid pair wins, ties go to
// the lexicographically smaller pair address.
func (m *MultiClient) merge(token domain.TokenID, results []pairResult) (*domain.MarketSnapshot, error) {
	var (
		best     *Pair
		sources  []string
		seen     = make(map[string]struct{})
		firstErr error
		allNA    = true
	)

	for i, r := range results {
		if r.err != nil {
			m.logger.WithFields(logrus.Fields{
				"provider": m.markets[i].src.Name(),
				"token":    token,
			}).WithError(r.err).Debug("provider failed")
			if !errors.Is(r.err, domain.ErrDataUnavailable) {
				allNA = false
				if firstErr == nil {
					firstErr = r.err
				}
			}
			continue
		}

		sources = append(sources, m.markets[i].src.Name())
		for j := range r.pairs {
			p := &r.pairs[j]
			seen[p.Address] = struct{}{}
			if best == nil || p.LiquidityUSD > best.LiquidityUSD ||
				(p.LiquidityUSD == best.LiquidityUSD && p.Address < best.Address) {
				best = p
			}
		}
	}

	if best == nil {
		if allNA || firstErr == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrDataUnavailable, token)
		}
		return nil, firstErr
	}

	addresses := make([]string, 0, len(seen))
	for a := range seen {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)

	return &domain.MarketSnapshot{
		TokenID:       token,
		PairAddress:   best.Address,
		PairAddresses: addresses,
		DEX:           best.DEX,
		PriceUSD:      best.PriceUSD,
		LiquidityUSD:  best.LiquidityUSD,
		Volume24hUSD:  best.Volume24hUSD,
		PairCreatedAt: best.CreatedAt,
		Sources:       sources,
		FetchedAt:     m.now().UTC(),
	}, nil
}

// callBounded waits for the limiter and calls fn under the provider timeout.
func callBounded[T any](ctx context.Context, provider string, timeout time.Duration, limiter *rate.Limiter, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		observability.RecordProviderFetch(provider, time.Since(start).Seconds(), string(domain.KindTimeout))
		return zero, fmt.Errorf("%s: %w: rate limiter: %v", provider, domain.ErrTimeout, err)
	}

	v, err := fn(ctx)
	kind := ""
	if err != nil {
		kind = string(domain.KindOf(err))
	}
	observability.RecordProviderFetch(provider, time.Since(start).Seconds(), kind)
	if err != nil {
		return zero, err
	}
	return v, nil
}
