package observability

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Copy-on-write metrics
	ForksTotal            *prometheus.CounterVec
	CascadeActionsTotal   *prometheus.CounterVec
	CascadeDuration       *prometheus.HistogramVec
	ForkConflictsSuppressed prometheus.Counter

	// Subscription metrics
	SubscriptionsTotal *prometheus.CounterVec

	// Cleanup metrics
	OrphansDeletedTotal      prometheus.Counter
	JunctionRowsDeletedTotal prometheus.Counter
	CleanupRunsTotal         *prometheus.CounterVec

	// Access cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// creates a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ForksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_forks_total",
				Help: "Copy-on-write forks performed, by resource type and outcome",
			},
			[]string{"resource_type", "outcome"},
		),
		CascadeActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_cascade_actions_total",
				Help: "Actions taken by cascade forks",
			},
			[]string{"action"},
		),
		CascadeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "larder_cascade_duration_seconds",
				Help:    "Duration of cascade fork operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ForkConflictsSuppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "larder_fork_conflicts_suppressed_total",
				Help: "Concurrent duplicate forks collapsed into one execution",
			},
		),
		SubscriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_subscriptions_total",
				Help: "Subscription operations, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OrphansDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "larder_orphaned_ingredients_deleted_total",
				Help: "Orphaned ingredient copies garbage-collected",
			},
		),
		JunctionRowsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "larder_recipe_ingredient_rows_deleted_total",
				Help: "Recipe-ingredient junction rows removed during cleanup",
			},
		),
		CleanupRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_cleanup_runs_total",
				Help: "Cleanup runs, by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_access_cache_hits_total",
				Help: "Access-context cache hits by level",
			},
			[]string{"level"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "larder_access_cache_misses_total",
				Help: "Access-context cache misses by level",
			},
			[]string{"level"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "larder_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "larder_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ForksTotal,
		m.CascadeActionsTotal,
		m.CascadeDuration,
		m.ForkConflictsSuppressed,
		m.SubscriptionsTotal,
		m.OrphansDeletedTotal,
		m.JunctionRowsDeletedTotal,
		m.CleanupRunsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats records current pool statistics.
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
