package vetting

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"token-vetting/internal/domain"
	"token-vetting/internal/observability"
)

// DefaultRefreshInterval is the watchlist tick used when none is configured.
const DefaultRefreshInterval = 5 * time.Minute

// Refresher re-vets a watchlist of tokens on a fixed interval. It issues
// non-forced runs, so only stale verdicts are recomputed.
type Refresher struct {
	svc         *Service
	tokens      []domain.TokenID
	interval    time.Duration
	concurrency int
	logger      logrus.FieldLogger

	running atomic.Bool
	mu      sync.Mutex
	last    RefreshReport
}

// RefresherOptions contains configuration for creating a Refresher.
type RefresherOptions struct {
	Tokens      []domain.TokenID
	Interval    time.Duration // Default: 5m
	Concurrency int           // Default: 4 tokens at a time
	Logger      logrus.FieldLogger
}

// RefreshReport summarizes one pass over the watchlist.
type RefreshReport struct {
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
	Computed  int       `json:"computed"`
	Cached    int       `json:"cached"`
	Failed    int       `json:"failed"`
}

// NewRefresher creates a Refresher over svc.
func NewRefresher(svc *Service, opts RefresherOptions) *Refresher {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Refresher{
		svc:         svc,
		tokens:      append([]domain.TokenID(nil), opts.Tokens...),
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.WithField("component", "refresher"),
	}
}

// Run refreshes immediately and then on every tick. It blocks until ctx is
// cancelled. A tick that fires while the previous pass is still running is skipped.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"tokens":   len(r.tokens),
		"interval": r.interval,
	}).Info("refresher started")

	go r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopping")
			return ctx.Err()
		case <-ticker.C:
			go r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if _, ok := r.RefreshOnce(ctx); !ok {
		r.logger.Warn("previous refresh still running, skipping tick")
	}
}

// RefreshOnce makes one pass over the watchlist. It returns false without
// doing anything if another pass is in progress.
func (r *Refresher) RefreshOnce(ctx context.Context) (RefreshReport, bool) {
	if !r.running.CompareAndSwap(false, true) {
		return RefreshReport{}, false
	}
	defer r.running.Store(false)

	start := r.svc.now()
	var computed, cached, failed atomic.Int64

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
loop:
	for _, token := range r.tokens {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		wg.Add(1)
		go func(token domain.TokenID) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := r.svc.RunAutomatedChecks(ctx, token, RunOptions{})
			switch {
			case err != nil:
				failed.Add(1)
				r.logger.WithField("token", token).WithError(err).Warn("refresh failed")
			case res.RanChecks:
				computed.Add(1)
			default:
				cached.Add(1)
			}
		}(token)
	}
	wg.Wait()

	report := RefreshReport{
		StartedAt: start,
		Duration:  r.svc.now().Sub(start).String(),
		Computed:  int(computed.Load()),
		Cached:    int(cached.Load()),
		Failed:    int(failed.Load()),
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	observability.RecordRefresh(float64(r.svc.now().Unix()))
	r.logger.WithFields(logrus.Fields{
		"computed": report.Computed,
		"cached":   report.Cached,
		"failed":   report.Failed,
	}).Info("refresh pass complete")
	return report, true
}

// LastReport returns the most recent completed pass.
func (r *Refresher) LastReport() RefreshReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
