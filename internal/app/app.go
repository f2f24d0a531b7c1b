// Package app wires a loaded configuration into a running vetting engine.
// Both the server and the CLI build their engine here.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"token-vetting/internal/checks"
	"token-vetting/internal/config"
	"token-vetting/internal/domain"
	"token-vetting/internal/marketdata"
	"token-vetting/internal/observability"
	"token-vetting/internal/runner"
	"token-vetting/internal/storage"
	chstore "token-vetting/internal/storage/clickhouse"
	"token-vetting/internal/storage/memory"
	"token-vetting/internal/storage/migrations"
	pgstore "token-vetting/internal/storage/postgres"
	redisstore "token-vetting/internal/storage/redis"
	"token-vetting/internal/storage/sqlite"
	"token-vetting/internal/verdict"
	"token-vetting/internal/vetting"
)

// Engine is a fully wired vetting service and the resources it holds.
type Engine struct {
	Service   *vetting.Service
	Store     storage.VettingStore
	ResultLog storage.CheckResultLog // nil when analytics is disabled
	Backend   string

	closers []func()
}

// Option overrides a collaborator Build would otherwise create from config.
type Option func(*buildOptions)

type buildOptions struct {
	market    marketdata.Client
	publisher vetting.Publisher
}

// WithMarket replaces the configured providers with client.
func WithMarket(client marketdata.Client) Option {
	return func(o *buildOptions) { o.market = client }
}

// WithPublisher sends every saved verdict to p.
func WithPublisher(p vetting.Publisher) Option {
	return func(o *buildOptions) { o.publisher = p }
}

// Build opens the configured store and analytics log, loads the check
// policy and returns the assembled engine. The caller must Close it.
func Build(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, opts ...Option) (*Engine, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	store, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closer)
	e.Backend = cfg.Store.Driver
	e.Store = storage.Instrument(cfg.Store.Driver, store)

	if cfg.Analytics.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Analytics.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		e.closers = append(e.closers, func() { _ = conn.Close() })
		if err := conn.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		e.ResultLog = chstore.NewCheckResultLog(conn)
	}

	reg, err := loadRegistry(cfg.Vetting.PolicyFile)
	if err != nil {
		return nil, err
	}

	market := bo.market
	if market == nil {
		multi, err := marketdata.New(cfg.Providers, marketdata.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build market data client: %w", err)
		}
		market = multi
	}

	r := runner.New(
		runner.WithDefaultTimeout(cfg.Vetting.CheckTimeout),
		runner.WithLogger(logger),
		runner.WithObserver(func(res domain.CheckResult) {
			observability.RecordCheck(res.Name, string(res.Status), float64(res.DurationMs)/1000)
		}),
	)

	svcOpts := vetting.Options{
		Store:      e.Store,
		Market:     market,
		Registry:   reg,
		Runner:     r,
		Aggregator: verdict.Aggregator{ConfidenceThreshold: cfg.Vetting.ConfidenceThreshold},
		ResultLog:  e.ResultLog,
		Publisher:  bo.publisher,
		TTL:        cfg.Vetting.TTL,
		Logger:     logger,
	}
	e.Service = vetting.New(svcOpts)

	ok = true
	return e, nil
}

// Close releases every resource in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// openStore connects the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.VettingStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.NewVettingStore(cfg.HistoryLimit), func() {}, nil

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pgstore.NewVettingStore(pool, cfg.HistoryLimit), pool.Close, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewVettingStore(db, cfg.HistoryLimit), func() { _ = db.Close() }, nil

	case config.DriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		var opts []redisstore.Option
		if cfg.RedisPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(cfg.RedisPrefix))
		}
		return redisstore.NewVettingStore(client, cfg.HistoryLimit, opts...), func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func loadRegistry(policyFile string) (*checks.Registry, error) {
	policy := checks.DefaultPolicy()
	if policyFile != "" {
		p, err := checks.LoadPolicy(policyFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	reg, err := checks.FromPolicy(policy)
	if err != nil {
		return nil, fmt.Errorf("build check registry: %w", err)
	}
	return reg, nil
}
