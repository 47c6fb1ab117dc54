package function

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fragmentsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cirrus",
			Name:      "fragments_total",
			Help:      "Fragments collected by a function, by collect status",
		},
		[]string{"function", "status"},
	)
	windowsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cirrus",
			Name:      "windows_executed_total",
			Help:      "Complete windows executed by a function",
		},
		[]string{"function"},
	)
	failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cirrus",
			Name:      "function_failures_total",
			Help:      "Function invocations failed, by stage",
		},
		[]string{"function", "stage"},
	)
)

// MetricsHandler serves the prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
