package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threads_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrors counts failed repository calls by operation and error code.
	DatabaseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_database_errors_total",
		Help: "Total number of failed repository calls",
	}, []string{"operation", "code"})

	// PageCacheResults counts page cache lookups by result (hit, miss, bypass).
	PageCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_page_cache_results_total",
		Help: "Page cache lookups by result",
	}, []string{"result"})

	// PageInvalidations counts page invalidation requests by outcome.
	PageInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_page_invalidations_total",
		Help: "Page cache invalidations by outcome",
	}, []string{"outcome"})

	// Uploads counts upload attempts by backend and outcome.
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_uploads_total",
		Help: "Upload attempts by backend and outcome",
	}, []string{"backend", "outcome"})

	// UploadBytes records the size of normalized uploads.
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "threads_upload_bytes",
		Help:    "Size of stored uploads in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
