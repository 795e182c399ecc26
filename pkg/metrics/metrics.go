package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolveCycles = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "depsviz_collision_resolve_cycles",
		Help:    "Settle cycles used per collision resolve.",
		Buckets: []float64{1, 2, 3, 5, 8, 12, 20, 30, 40, 60},
	})

	ResolvesNotConverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depsviz_collision_resolves_not_converged_total",
		Help: "Total number of collision resolves that hit the cycle limit.",
	})

	VisibleEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "depsviz_virtualization_visible_edges",
		Help: "Edges kept visible by the last virtualization pass.",
	})

	StaleResultsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depsviz_stale_results_dropped_total",
		Help: "Total number of superseded async results dropped, labelled by source.",
	}, []string{"source"})

	WorkerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depsviz_virtualization_worker_fallbacks_total",
		Help: "Total number of switches from the background worker to the frame scheduler.",
	})

	ViewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "depsviz_view_pipeline_duration_ms",
		Help:    "Graph view pipeline latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)

// Label values for StaleResultsDropped.
const (
	SourceLayout         = "layout"
	SourceVirtualization = "virtualization"
)

// ObserveResolve records the outcome of one collision resolve.
func ObserveResolve(cycles int, converged bool) {
	ResolveCycles.Observe(float64(cycles))
	if !converged {
		ResolvesNotConverged.Inc()
	}
}
