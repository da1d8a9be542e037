package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Stream store metrics
	ConcurrencyConflicts *prometheus.CounterVec
	ConstraintViolations *prometheus.CounterVec
	DeleteRetries        prometheus.Counter
	DeleteExhausted      prometheus.Counter

	// Tenant routing metrics
	TenantPoolsActive prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projects_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"operation", "tenant_id"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "projects_request_duration_seconds",
				Help:    "Duration of request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projects_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projects_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		ConcurrencyConflicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projects_concurrency_conflicts_total",
				Help: "Total number of optimistic concurrency conflicts",
			},
			[]string{"operation"},
		),

		ConstraintViolations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "projects_constraint_violations_total",
				Help: "Total number of uniqueness constraint violations",
			},
			[]string{"field"},
		),

		DeleteRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "projects_delete_retries_total",
				Help: "Total number of soft-delete retry attempts",
			},
		),

		DeleteExhausted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "projects_delete_retry_exhausted_total",
				Help: "Total number of soft-deletes that exhausted their retry budget",
			},
		),

		TenantPoolsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "projects_tenant_pools_active",
				Help: "Number of active tenant connection pools",
			},
		),
	}
}
