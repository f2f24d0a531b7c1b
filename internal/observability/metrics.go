// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	CacheHits    prometheus.Counter
	VerdictScore *prometheus.HistogramVec

	// Check metrics
	CheckResults  *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	// Store metrics
	StoreOpDuration *prometheus.HistogramVec
	StoreOpErrors   *prometheus.CounterVec

	// Feed metrics
	FeedClients prometheus.Gauge

	// Health metrics
	LastSuccessfulRun     prometheus.Gauge
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "token_vetting"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vetting",
			Name:      "runs_total",
			Help:      "Total number of vetting runs by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vetting",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of vetting runs that executed checks",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vetting",
			Name:      "cache_hits_total",
			Help:      "Total number of requests served from a fresh stored verdict",
		}),
		VerdictScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vetting",
			Name:      "verdict_score",
			Help:      "Distribution of verdict scores by status",
			Buckets:   prometheus.LinearBuckets(-200, 50, 9),
		}, []string{"status"}),

		CheckResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "results_total",
			Help:      "Total number of check results by check and status",
		}, []string{"check", "status"}),
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checks",
			Name:      "duration_seconds",
			Help:      "Check evaluation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_latency_seconds",
			Help:      "Market data provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed provider calls by kind",
		}, []string{"provider", "kind"}),

		StoreOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Verdict store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StoreOpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Total number of verdict store operation errors",
		}, []string{"backend", "operation"}),

		FeedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Number of connected verdict feed clients",
		}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last vetting run that persisted a verdict",
		}),
		LastSuccessfulRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last completed watchlist refresh",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRun records a vetting run outcome ("computed", "cached" or an error kind).
func RecordRun(outcome string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == "computed" {
		DefaultMetrics.RunDuration.Observe(durationSeconds)
	}
}

// RecordCacheHit increments the fresh-verdict counter.
func RecordCacheHit() {
	DefaultMetrics.CacheHits.Inc()
	DefaultMetrics.RunsTotal.WithLabelValues("cached").Inc()
}

// RecordVerdict records a computed verdict's score.
func RecordVerdict(status string, score int, unixSeconds float64) {
	DefaultMetrics.VerdictScore.WithLabelValues(status).Observe(float64(score))
	DefaultMetrics.LastSuccessfulRun.Set(unixSeconds)
}

// RecordCheck records one check result.
func RecordCheck(check, status string, seconds float64) {
	DefaultMetrics.CheckResults.WithLabelValues(check, status).Inc()
	DefaultMetrics.CheckDuration.WithLabelValues(check).Observe(seconds)
}

// RecordProviderFetch records a provider call. kind is empty on success.
func RecordProviderFetch(provider string, seconds float64, kind string) {
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
	if kind != "" {
		DefaultMetrics.ProviderErrors.WithLabelValues(provider, kind).Inc()
	}
}

// RecordStoreOp records store operation metrics.
func RecordStoreOp(backend, operation string, seconds float64, err error) {
	DefaultMetrics.StoreOpDuration.WithLabelValues(backend, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.StoreOpErrors.WithLabelValues(backend, operation).Inc()
	}
}

// SetFeedClients updates the connected feed client gauge.
func SetFeedClients(n int) {
	DefaultMetrics.FeedClients.Set(float64(n))
}

// RecordRefresh records a completed watchlist refresh.
func RecordRefresh(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulRefresh.Set(unixSeconds)
}
