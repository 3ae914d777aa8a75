// Package metrics provides Prometheus metrics collection for the offline core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheOperations tracks cache operations by operation and result.
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	// CacheEntries tracks the current number of live cache entries.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of live cache entries",
		},
	)

	// CacheBytes tracks the current total size of cached values.
	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_bytes",
			Help: "Current total size of cached values in bytes",
		},
	)

	// SyncItems tracks sync queue items by terminal result.
	SyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Total number of sync queue items by result",
		},
		[]string{"result"},
	)

	// SyncQueueDepth tracks the current number of pending sync items.
	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Current number of pending sync items",
		},
	)

	// SyncPassDuration tracks sync pass duration in seconds.
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Sync pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MemoryUsagePercent tracks the last sampled memory usage percentage.
	MemoryUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_percent",
			Help: "Last sampled memory usage percentage",
		},
	)

	// MemoryAlerts tracks memory alerts by level.
	MemoryAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_alerts_total",
			Help: "Total number of memory alerts by level",
		},
		[]string{"level"},
	)

	// CleanupBytesFreed tracks bytes freed by cleanup strategies.
	CleanupBytesFreed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_bytes_freed_total",
			Help: "Total bytes freed by cleanup strategies",
		},
		[]string{"strategy"},
	)
)

// RecordCacheOperation records a cache operation with its result.
func RecordCacheOperation(operation, result string) {
	CacheOperations.WithLabelValues(operation, result).Inc()
}
