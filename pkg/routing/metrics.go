package routing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ch_router_queries_total",
		Help: "Total CH queries by kind and outcome",
	}, []string{"kind", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ch_router_query_duration_seconds",
		Help:    "CH query duration",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"kind"})

	querySettled = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ch_router_query_settled_vertices",
		Help:    "Vertices settled per point-to-point query",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
	})

	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ch_router_resolve_total",
		Help: "Coordinate resolutions by result",
	}, []string{"result"})
)

const (
	kindPointToPoint = "point_to_point"
	kindMatrix       = "matrix"

	outcomeFound     = "found"
	outcomeNotFound  = "not_found"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)
