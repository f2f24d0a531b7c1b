// Package main runs the vetting HTTP service:
// - API: run checks, read verdicts and history per token
// - Feed: websocket stream of saved verdicts
// - Refresher (scheduled): keeps watchlist verdicts fresh
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"token-vetting/internal/api"
	"token-vetting/internal/app"
	"token-vetting/internal/config"
	"token-vetting/internal/notify"
	"token-vetting/internal/observability"
	"token-vetting/internal/vetting"
)

// Server holds the running components.
type Server struct {
	cfg       config.Config
	engine    *app.Engine
	hub       *notify.Hub
	refresher *vetting.Refresher // nil without a watchlist
	limiter   *api.RateLimiter   // nil when rate limiting is off
	logger    *logrus.Logger

	mu      sync.Mutex
	started time.Time
}

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	addr := flag.String("addr", "", "listen address, overrides config")
	flag.Parse()

	bootLog := logrus.New()
	if err := config.LoadDotEnv(*envFile); err != nil {
		bootLog.WithError(err).Fatal("load env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.WithError(err).Fatal("load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		bootLog.WithError(err).Fatal("configure logger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubCfg := notify.DefaultHubConfig()
	hubCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	hub := notify.NewHub(&hubCfg, logger)
	engine, err := app.Build(ctx, cfg, logger, app.WithPublisher(hub))
	if err != nil {
		logger.WithError(err).Fatal("build engine")
	}
	defer engine.Close()

	s := &Server{
		cfg:    cfg,
		engine: engine,
		hub:    hub,
		logger: logger,
	}
	if len(cfg.Vetting.Watchlist) > 0 {
		tokens, err := cfg.WatchlistTokens()
		if err != nil {
			logger.WithError(err).Fatal("parse watchlist")
		}
		s.refresher = vetting.NewRefresher(engine.Service, vetting.RefresherOptions{
			Tokens:   tokens,
			Interval: cfg.Vetting.RefreshInterval,
			Logger:   logger,
		})
	}
	if cfg.Server.RateLimit > 0 {
		s.limiter = api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		// A second signal exits immediately.
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
			logger.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = s.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("shutdown complete")
}

// Run serves HTTP and runs the refresher until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":  s.cfg.Server.Addr,
			"store": s.engine.Backend,
		}).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.refresher != nil {
		go func() {
			if err := s.refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Error("refresher stopped")
			}
		}()
	}
	if s.limiter != nil {
		go s.limiter.RunSweeper(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("http shutdown")
	}
	return runErr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	protected := http.NewServeMux()
	handler := api.NewHandler(s.engine.Service, s.logger)
	if s.engine.ResultLog != nil {
		handler.WithStats(s.engine.ResultLog)
	}
	handler.Register(protected)
	protected.Handle("GET /ws/verdicts", s.hub)

	var h http.Handler = api.BearerAuth(s.cfg.Server.APITokens, protected)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	mux.Handle("/api/", h)
	mux.Handle("/ws/", h)

	return api.RequestLogger(s.logger, mux)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string                 `json:"status"`
	Uptime      string                 `json:"uptime"`
	Store       string                 `json:"store"`
	Analytics   bool                   `json:"analytics"`
	VerdictTTL  string                 `json:"verdict_ttl"`
	FeedClients int                    `json:"feed_clients"`
	Watchlist   int                    `json:"watchlist"`
	LastRefresh *vetting.RefreshReport `json:"last_refresh,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(started).Round(time.Second).String(),
		Store:       s.engine.Backend,
		Analytics:   s.engine.ResultLog != nil,
		VerdictTTL:  s.engine.Service.TTL().String(),
		FeedClients: s.hub.Clients(),
		Watchlist:   len(s.cfg.Vetting.Watchlist),
	}
	if s.refresher != nil {
		if last := s.refresher.LastReport(); !last.StartedAt.IsZero() {
			resp.LastRefresh = &last
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
