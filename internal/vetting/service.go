// Package vetting is the entry point of the engine. It sequences
// store lookup → market fetch → check run → aggregation → save.
package vetting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"token-vetting/internal/checks"
	"token-vetting/internal/domain"
	"token-vetting/internal/marketdata"
	"token-vetting/internal/observability"
	"token-vetting/internal/runner"
	"token-vetting/internal/storage"
	"token-vetting/internal/verdict"
)

// DefaultTTL is how long a stored verdict is reused without re-running checks.
const DefaultTTL = 10 * time.Minute

// Run outcomes reported to metrics besides the error kinds.
const (
	outcomeCached   = "cached"
	outcomeComputed = "computed"
)

// Publisher receives every verdict right after it is saved.
type Publisher interface {
	Publish(v *domain.Verdict)
}

// RunOptions tunes one RunAutomatedChecks call.
type RunOptions struct {
	// ForceRefresh skips the fresh-verdict shortcut.
	ForceRefresh bool
}

// Result is the envelope returned by RunAutomatedChecks.
type Result struct {
	Success   bool            `json:"success"`
	Verdict   *domain.Verdict `json:"verdict"`
	RanChecks bool            `json:"ranChecks"`
}

// Service runs automated checks for tokens and caches their verdicts.
type Service struct {
	store      storage.VettingStore
	market     marketdata.Client
	registry   *checks.Registry
	runner     *runner.Runner
	aggregator verdict.Aggregator
	resultLog  storage.CheckResultLog
	publisher  Publisher

	ttl      time.Duration
	now      func() time.Time
	newRunID func() string
	logger   logrus.FieldLogger

	inflight flightGroup
}

// Options contains configuration for creating a Service.
type Options struct {
	// Required
	Store    storage.VettingStore
	Market   marketdata.Client
	Registry *checks.Registry

	// Optional
	Runner     *runner.Runner         // Default: runner.New()
	Aggregator verdict.Aggregator     // Default: 0.75 confidence threshold
	ResultLog  storage.CheckResultLog // analytics sink, written after each save
	Publisher  Publisher
	TTL        time.Duration    // Default: 10m
	Clock      func() time.Time // Default: time.Now
	RunIDs     func() string    // Default: random UUIDs
	Logger     logrus.FieldLogger
}

// New creates a Service. It panics if a required collaborator is missing.
func New(opts Options) *Service {
	if opts.Store == nil || opts.Market == nil || opts.Registry == nil {
		panic("vetting: Store, Market and Registry are required")
	}

	s := &Service{
		store:      opts.Store,
		market:     opts.Market,
		registry:   opts.Registry,
		runner:     opts.Runner,
		aggregator: opts.Aggregator,
		resultLog:  opts.ResultLog,
		publisher:  opts.Publisher,
		ttl:        opts.TTL,
		now:        opts.Clock,
		newRunID:   opts.RunIDs,
		logger:     opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRunID == nil {
		s.newRunID = func() string { return uuid.NewString() }
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("component", "vetting")
	if s.runner == nil {
		s.runner = runner.New(runner.WithLogger(s.logger), runner.WithClock(s.now))
	}
	return s
}

// TTL returns the freshness window.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// RunAutomatedChecks returns a fresh stored verdict for token or computes a new one.
//
// Failures wrap domain.ErrDataUnavailable, ErrProviderError, ErrTimeout or
// ErrInsufficientData. Nothing is persisted on failure, so the previous
// verdict stays the last known good one.
func (s *Service) RunAutomatedChecks(ctx context.Context, token domain.TokenID, opts RunOptions) (*Result, error) {
	start := s.now()
	res, err := s.runAutomatedChecks(ctx, token, opts)

	outcome := outcomeComputed
	switch {
	case err != nil:
		outcome = string(domain.KindOf(err))
	case !res.RanChecks:
		outcome = outcomeCached
	}
	observability.RecordRun(outcome, s.now().Sub(start).Seconds())
	return res, err
}

func (s *Service) runAutomatedChecks(ctx context.Context, token domain.TokenID, opts RunOptions) (*Result, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty identifier", domain.ErrInvalidToken)
	}

	if !opts.ForceRefresh {
		cached, err := s.freshVerdict(ctx, token)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			observability.RecordCacheHit()
			return &Result{Success: true, Verdict: cached, RanChecks: false}, nil
		}
	}

	// Concurrent runs for one token share a single fetch and save. A caller
	// that stops waiting gets a failure only while the shared run has not
	// started saving, and the run is cancelled once nobody waits for it.
	v, err := s.inflight.do(ctx, token.String(), func(runCtx context.Context, commit func() bool) (*domain.Verdict, error) {
		return s.compute(runCtx, token, commit)
	})
	if err != nil {
		if err == ctx.Err() && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return nil, err
	}
	return &Result{Success: true, Verdict: v.Clone(), RanChecks: true}, nil
}

// freshVerdict returns the stored verdict if it is younger than the TTL, or
// nil if there is none or it is stale.
func (s *Service) freshVerdict(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	v, err := s.store.GetLatest(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stored verdict: %w", err)
	}
	if !v.IsFreshAt(s.now(), s.ttl) {
		return nil, nil
	}
	v.Fresh = true
	return v, nil
}

// compute fetches, runs and aggregates, then saves if commit allows it.
func (s *Service) compute(ctx context.Context, token domain.TokenID, commit func() bool) (*domain.Verdict, error) {
	logger := s.logger.WithField("token", token)

	snap, err := s.market.Fetch(ctx, token)
	if err != nil {
		logger.WithError(err).Warn("market data fetch failed")
		return nil, fmt.Errorf("fetch market data: %w", err)
	}

	results := s.runner.Run(ctx, token, snap, s.registry)

	v, err := s.aggregator.Aggregate(results)
	if err != nil {
		logger.WithError(err).Warn("no check executed")
		return nil, err
	}
	v.TokenID = token
	v.RunID = s.newRunID()

	if !commit() {
		logger.Debug("run abandoned before save")
		return nil, context.Cause(ctx)
	}
	if err := s.store.Save(ctx, token, v); err != nil {
		return nil, fmt.Errorf("save verdict: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"run_id":     v.RunID,
		"score":      v.Score,
		"status":     v.Status,
		"confidence": v.Confidence,
	}).Info("verdict saved")
	observability.RecordVerdict(string(v.Status), v.Score, float64(v.ComputedAt.Unix()))

	if s.resultLog != nil {
		if err := s.resultLog.Append(ctx, v); err != nil {
			logger.WithError(err).Warn("check result log append failed")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(v.Clone())
	}

	v.Fresh = true
	return v, nil
}

// GetVerdict returns the stored verdict with Fresh set against the TTL.
// It never runs checks. Returns storage.ErrNotFound if none.
func (s *Service) GetVerdict(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	v, err := s.store.GetLatest(ctx, token)
	if err != nil {
		return nil, err
	}
	v.Fresh = v.IsFreshAt(s.now(), s.ttl)
	return v, nil
}

// History returns superseded verdicts, newest first.
func (s *Service) History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	return s.store.History(ctx, token, limit)
}
