package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seer_cache_hits_total",
			Help: "Total number of chunk cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seer_cache_misses_total",
			Help: "Total number of chunk cache misses",
		},
	)

	// CacheSize tracks bytes moved through the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seer_cache_size_bytes",
			Help: "Bytes written to and served from the chunk cache",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheSkipped tracks entries Set refused to store
	CacheSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seer_cache_skipped_total",
			Help: "Chunks not cached, by reason",
		},
		[]string{"reason"}, // "too_large"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seer_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
