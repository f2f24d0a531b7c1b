// Package api exposes the vetting engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"token-vetting/internal/domain"
	"token-vetting/internal/reporting"
	"token-vetting/internal/storage"
	"token-vetting/internal/vetting"
)

// Vetter is the part of vetting.Service the handlers call.
type Vetter interface {
	RunAutomatedChecks(ctx context.Context, token domain.TokenID, opts vetting.RunOptions) (*vetting.Result, error)
	GetVerdict(ctx context.Context, token domain.TokenID) (*domain.Verdict, error)
	History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error)
}

// StatsSource aggregates logged check results.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) ([]storage.CheckStat, error)
}

// defaultStatsWindow is used when the stats request has no window.
const defaultStatsWindow = 24 * time.Hour

// VerdictResponse is the envelope of GET .../verdict.
type VerdictResponse struct {
	Success bool            `json:"success"`
	Verdict *domain.Verdict `json:"verdict"`
}

// HistoryResponse is the envelope of GET .../history.
type HistoryResponse struct {
	Success bool              `json:"success"`
	Token   domain.TokenID    `json:"token"`
	History []*domain.Verdict `json:"history"`
}

// StatsResponse is the envelope of GET /api/v1/stats/checks.
type StatsResponse struct {
	Success bool                `json:"success"`
	Since   time.Time           `json:"since"`
	Stats   []storage.CheckStat `json:"stats"`
}

// Handler serves the token routes.
type Handler struct {
	vetter Vetter
	stats  StatsSource
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewHandler creates a Handler. A nil logger uses the standard logger.
func NewHandler(vetter Vetter, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		vetter: vetter,
		logger: logger.WithField("component", "api"),
		now:    time.Now,
	}
}

// WithStats serves check statistics from src. A nil src leaves the route
// answering 404.
func (h *Handler) WithStats(src StatsSource) *Handler {
	h.stats = src
	return h
}

// Register mounts the token routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tokens/{token}/vet", h.handleVet)
	mux.HandleFunc("GET /api/v1/tokens/{token}/verdict", h.handleVerdict)
	mux.HandleFunc("GET /api/v1/tokens/{token}/history", h.handleHistory)
	mux.HandleFunc("GET /api/v1/stats/checks", h.handleStats)
}

// handleVet runs the automated checks, reusing a fresh verdict unless
// force=true.
func (h *Handler) handleVet(w http.ResponseWriter, r *http.Request) {
	token, err := domain.ParseTokenID(r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}

	force, err := parseBool(r.URL.Query().Get("force"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: force: %v", errBadRequest, err))
		return
	}

	res, err := h.vetter.RunAutomatedChecks(r.Context(), token, vetting.RunOptions{ForceRefresh: force})
	if err != nil {
		h.logFailure(token, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleVerdict returns the stored verdict without running checks. The
// format parameter selects json (the default), md or csv.
func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	token, err := domain.ParseTokenID(r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	format, err := reporting.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	v, err := h.vetter.GetVerdict(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	if format == reporting.FormatJSON {
		writeJSON(w, http.StatusOK, VerdictResponse{Success: true, Verdict: v})
		return
	}

	history, err := h.vetter.History(r.Context(), token, storage.DefaultHistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := reporting.Render(format, reporting.NewReport(v, history, h.now()))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	token, err := domain.ParseTokenID(r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := storage.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}

	history, err := h.vetter.History(r.Context(), token, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []*domain.Verdict{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Token: token, History: history})
}

// handleStats aggregates check results over the window given as a duration,
// e.g. window=6h.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeProblem(w, http.StatusNotFound, kindNotFound, "check analytics are disabled")
		return
	}

	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, fmt.Errorf("%w: window must be a positive duration", errBadRequest))
			return
		}
		window = d
	}

	since := h.now().Add(-window).UTC()
	stats, err := h.stats.Stats(r.Context(), since)
	if err != nil {
		h.logger.WithError(err).Error("check stats failed")
		writeError(w, err)
		return
	}
	if stats == nil {
		stats = []storage.CheckStat{}
	}
	writeJSON(w, http.StatusOK, StatsResponse{Success: true, Since: since, Stats: stats})
}

func (h *Handler) logFailure(token domain.TokenID, err error) {
	entry := h.logger.WithFields(logrus.Fields{
		"token": token,
		"kind":  domain.KindOf(err),
	}).WithError(err)
	if domain.KindOf(err) == domain.KindInternal {
		entry.Error("vetting run failed")
		return
	}
	entry.Info("vetting run failed")
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
