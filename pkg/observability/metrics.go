// Package observability exports prometheus collectors for cache operations.
// Tiers increment them only when metrics are enabled in the configuration.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Layer label values.
const (
	LayerMemory  = "memory"
	LayerRemote  = "remote"
	LayerDurable = "durable"
	LayerStream  = "stream"
)

var (
	// Hits tracks cache hits by layer.
	Hits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	// Misses tracks cache misses by layer.
	Misses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"layer"},
	)

	// Evictions tracks evictions by layer.
	Evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"layer"},
	)

	// MemoryUsage tracks live cache size in bytes by layer.
	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_cache_memory_bytes",
			Help: "Current cache memory usage in bytes",
		},
		[]string{"layer"},
	)

	// Errors tracks cache operation errors by operation.
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"},
	)
)
