package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every watchpost collector. It is separate from the default
// registry so tests can read values without process-level noise.
var Registry = prometheus.NewRegistry()

var (
	FrameLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "watchpost",
		Subsystem: "extractor",
		Name:      "frame_latency_ms",
		Help:      "Per-frame signal extraction latency in milliseconds.",
		Buckets:   []float64{1, 2, 5, 10, 20, 35, 50, 75, 100, 150, 250, 500},
	})
	LatencyViolations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "extractor",
		Name:      "latency_violations_total",
		Help:      "Processed frames that exceeded the latency target.",
	})
	Analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Analyses by outcome.",
	}, []string{"outcome"})
	Incidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "engine",
		Name:      "incidents_total",
		Help:      "Final incidents emitted by type.",
	}, []string{"type"})
	Sanitized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "engine",
		Name:      "sanitized_total",
		Help:      "Incidents rewritten by the safety filter.",
	})
	ReasoningFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "engine",
		Name:      "reasoning_fallbacks_total",
		Help:      "External reasoning calls that produced no usable response, by mode.",
	}, []string{"mode"})
	FastPathPredictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchpost",
		Subsystem: "fastpath",
		Name:      "predictions_total",
		Help:      "Fast-path predictions by availability.",
	}, []string{"available"})
)

func init() {
	Registry.MustRegister(
		FrameLatency,
		LatencyViolations,
		Analyses,
		Incidents,
		Sanitized,
		ReasoningFallbacks,
		FastPathPredictions,
	)
}

// MetricsHandler serves the watchpost registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
