package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirana_analyses_total",
			Help: "Total number of product analyses by outcome",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kirana_provider_request_duration_seconds",
			Help:    "Duration of analysis provider calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"provider", "status"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kirana_cache_lookups_total",
			Help: "Total number of analysis cache lookups by result",
		},
		[]string{"result"},
	)

	GroundingSourcesReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kirana_grounding_sources_returned",
			Help:    "Number of deduplicated grounding sources per analysis",
			Buckets: prometheus.LinearBuckets(0, 5, 8),
		},
	)
)
