package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// Tile cache metrics
	TileCacheHitsTotal      prometheus.Counter
	TileCacheMissesTotal    prometheus.Counter
	TileCacheEvictionsTotal prometheus.Counter
	TileCacheCoalescedTotal prometheus.Counter
	TileCacheEntries        prometheus.Gauge

	// Render metrics
	RenderDuration      prometheus.Histogram
	RenderErrorsTotal   *prometheus.CounterVec
	ExtractionsTotal    *prometheus.CounterVec
	ExtractionDuration  *prometheus.HistogramVec

	// Synchronization metrics
	SelectorMovesTotal      *prometheus.CounterVec
	LinkPropagationsTotal   prometheus.Counter
	LinkGroupRebuildsTotal  prometheus.Counter
	LinkedSelectors         *prometheus.GaugeVec

	// Feature-info metrics
	FeatureInfoQueriesTotal    prometheus.Counter
	FeatureInfoSupersededTotal prometheus.Counter
	FeatureInfoDuration        prometheus.Histogram

	// Database metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	// Scheduler metrics
	WorkerQueueDepth *prometheus.GaugeVec
	TasksTotal       *prometheus.CounterVec

	// API metrics
	APIRequestDuration *prometheus.HistogramVec
	APIRequestsTotal   *prometheus.CounterVec
	APIErrorsTotal     *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	return &Collector{
		TileCacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_hits_total",
				Help:      "Total number of tile cache hits",
			},
		),

		TileCacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_misses_total",
				Help:      "Total number of tile cache misses",
			},
		),

		TileCacheEvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_evictions_total",
				Help:      "Total number of tile cache entries evicted",
			},
		),

		TileCacheCoalescedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tile_cache_coalesced_total",
				Help:      "Total number of tile requests coalesced into an in-flight computation",
			},
		),

		TileCacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tile_cache_entries",
				Help:      "Current number of entries in the tile cache",
			},
		),

		RenderDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Tile render duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0},
			},
		),

		RenderErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_errors_total",
				Help:      "Total number of tile render failures by type",
			},
			[]string{"error_type"},
		),

		ExtractionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Total number of catalogue extractions by kind",
			},
			[]string{"kind"},
		),

		ExtractionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "Catalogue extraction duration in seconds by kind",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
			},
			[]string{"kind"},
		),

		SelectorMovesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selector_moves_total",
				Help:      "Total number of selector moves by axis",
			},
			[]string{"axis"},
		),

		LinkPropagationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_propagations_total",
				Help:      "Total number of selector updates propagated to linked views",
			},
		),

		LinkGroupRebuildsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_group_rebuilds_total",
				Help:      "Total number of link group rebuilds after structural changes",
			},
		),

		LinkedSelectors: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "linked_selectors",
				Help:      "Current number of selectors participating in link groups by axis",
			},
			[]string{"axis"},
		),

		FeatureInfoQueriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_info_queries_total",
				Help:      "Total number of feature-info point queries issued",
			},
		),

		FeatureInfoSupersededTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_info_superseded_total",
				Help:      "Total number of feature-info queries superseded before completion",
			},
		),

		FeatureInfoDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "feature_info_duration_seconds",
				Help:      "Feature-info query duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		WorkerQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Number of tasks waiting in the worker pool by priority",
			},
			[]string{"priority"}, // "interactive", "background"
		),

		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks executed by the worker pool",
			},
			[]string{"priority"},
		),

		APIRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds by endpoint",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
			},
			[]string{"endpoint"},
		),

		APIRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type and endpoint",
			},
			[]string{"error_type", "endpoint"},
		),
	}
}

// RecordAPIRequest increments the API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments the API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordExtraction increments the extraction counter for the given kind
func (c *Collector) RecordExtraction(kind string) {
	c.ExtractionsTotal.WithLabelValues(kind).Inc()
}

// RecordRenderError increments the render error counter
func (c *Collector) RecordRenderError(errorType string) {
	c.RenderErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
