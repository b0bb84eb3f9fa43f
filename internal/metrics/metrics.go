// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TapsTotal counts card taps by outcome (entry, exit, unregistered).
	TapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_taps_total",
		Help: "Card taps processed, labeled by outcome.",
	}, []string{"result"})

	// MonthlyCacheHits counts monthly stat reads served from the cache.
	MonthlyCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_monthly_cache_hits_total",
		Help: "Monthly aggregations answered from a fresh cache record.",
	})

	// MonthlyCacheMisses counts monthly stat reads that recomputed.
	MonthlyCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_monthly_cache_misses_total",
		Help: "Monthly aggregations recomputed after a stale or absent cache.",
	})

	// AggregationSeconds observes full-month recomputation latency.
	AggregationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kiosk_monthly_aggregation_seconds",
		Help:    "Wall time of full monthly recomputations.",
		Buckets: prometheus.DefBuckets,
	})
)
