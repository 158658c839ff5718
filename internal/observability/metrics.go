package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prasetyowira/sportsync/internal/config"
	"github.com/prasetyowira/sportsync/internal/platform/logging"
)

// Metrics aggregates the sync engine's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobRetries       *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	UpstreamRequests *prometheus.CounterVec
	QuotaUsedToday   prometheus.Gauge
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	StaleReclaimed   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsync_jobs_total",
			Help: "Sync jobs by type and terminal status.",
		}, []string{"type", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sportsync_job_duration_seconds",
			Help:    "Handler execution time by job type.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"type"}),
		JobRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsync_job_retries_total",
			Help: "Retry deliveries by job type.",
		}, []string{"type"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sportsync_queue_depth",
			Help: "Jobs waiting in the dispatch queue.",
		}),
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsync_upstream_requests_total",
			Help: "Upstream provider calls by outcome.",
		}, []string{"outcome"}),
		QuotaUsedToday: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sportsync_quota_used_today",
			Help: "Upstream calls consumed in the current UTC day.",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsync_cache_hits_total",
			Help: "Cache gate hits by resource.",
		}, []string{"resource"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportsync_cache_misses_total",
			Help: "Cache gate misses by resource.",
		}, []string{"resource"}),
		StaleReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sportsync_stale_jobs_reclaimed_total",
			Help: "Processing jobs reclaimed by the watchdog.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer exposes /metrics when enabled.
func StartMetricsServer(cfg config.Config, metrics *Metrics, logger *logging.Logger) (*http.Server, error) {
	if logger == nil {
		logger = logging.Default()
	}

	if !cfg.MetricsEnabled || metrics == nil {
		logger.Info("metrics disabled", "reason", "METRICS_ENABLED=false")
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return srv, nil
}
