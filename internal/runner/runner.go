// Package runner executes a registry of checks against one market snapshot.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"token-vetting/internal/checks"
	"token-vetting/internal/domain"
)

// DefaultCheckTimeout bounds a check with no timeout override.
const DefaultCheckTimeout = 5 * time.Second

// Runner fans checks out concurrently and joins their results.
type Runner struct {
	defaultTimeout time.Duration
	now            func() time.Time
	logger         logrus.FieldLogger
	observe        func(domain.CheckResult)
}

// Option configures a Runner.
type Option func(*Runner)

// WithDefaultTimeout sets the per-check timeout used when an entry has none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithClock sets the clock that stamps ComputedAt and measures durations.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithObserver registers a callback invoked once per result, e.g. for metrics.
func WithObserver(fn func(domain.CheckResult)) Option {
	return func(r *Runner) {
		r.observe = fn
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		defaultTimeout: DefaultCheckTimeout,
		now:            time.Now,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithField("component", "runner")
	return r
}

// outcome is what an evaluation goroutine reports back.
type outcome struct {
	out checks.Outcome
	err error
}

// Run evaluates every registered check against snap and returns exactly one
// result per check, in registry order. It never fails: timeouts, errors and
// panics become error-status results.
func (r *Runner) Run(ctx context.Context, token domain.TokenID, snap *domain.MarketSnapshot, reg *checks.Registry) []domain.CheckResult {
	entries := reg.Entries()
	results := make([]domain.CheckResult, len(entries))
	computedAt := r.now().UTC().Truncate(time.Millisecond)

	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			results[i] = r.runOne(ctx, token, snap.Clone(), e, computedAt)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if r.observe != nil {
			r.observe(res)
		}
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, token domain.TokenID, snap *domain.MarketSnapshot, e checks.Entry, computedAt time.Time) domain.CheckResult {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned evaluation can still deliver and exit.
	done := make(chan outcome, 1)
	start := r.now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", domain.ErrCheckExecution, p)}
			}
		}()
		out, err := e.Check.Evaluate(cctx, token, snap)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-cctx.Done():
		o = outcome{err: cctx.Err()}
	}

	res := domain.CheckResult{
		Name:       e.Name(),
		DurationMs: r.now().Sub(start).Milliseconds(),
		ComputedAt: computedAt,
	}

	if o.err != nil {
		res.Status = domain.StatusError
		res.Detail = describeError(o.err, timeout)
		r.logger.WithFields(logrus.Fields{
			"check": res.Name,
			"token": token,
		}).WithError(o.err).Warn("check did not complete")
		return res
	}

	// Checks report pass, fail or warn; error is the runner's to assign.
	if st, err := domain.ParseStatus(string(o.out.Status)); err != nil || st == domain.StatusError {
		res.Status = domain.StatusError
		res.Detail = fmt.Sprintf("check returned invalid status %q", o.out.Status)
		return res
	}

	res.Status = o.out.Status
	res.Score = domain.ClampScore(o.out.Score)
	res.Detail = o.out.Detail
	return res
}

func describeError(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
