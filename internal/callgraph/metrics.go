package callgraph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// exploreTotal counts Explore invocations by direction and outcome
	exploreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartographer_explore_total",
		Help: "Total call graph explorations by direction and result",
	}, []string{"direction", "result"})

	// exploreDuration tracks wall time of a whole exploration
	exploreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chartographer_explore_duration_seconds",
		Help:    "Call graph exploration duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"direction"})

	// resolveDuration tracks a single resolver query
	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chartographer_resolve_duration_seconds",
		Help:    "Resolver query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"direction"})

	// resolveErrors counts failed resolver queries
	resolveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartographer_resolve_errors_total",
		Help: "Total resolver failures by direction",
	}, []string{"direction"})

	edgesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartographer_edges_emitted_total",
		Help: "Total call edges emitted by direction",
	}, []string{"direction"})

	// neighborsFiltered counts neighbors dropped by the path filter
	neighborsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartographer_neighbors_filtered_total",
		Help: "Total neighbors rejected by the path filter by reason",
	}, []string{"reason"})
)
