// Package metrics exposes Prometheus instrumentation for the
// capture-and-dispatch loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "camapp"

var (
	// TicksTotal counts dispatch cycles that actually ran.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "ticks_total",
		Help:      "Dispatch cycles executed.",
	})

	// TicksSkipped counts timer firings dropped by the in-flight guard.
	TicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "ticks_skipped_total",
		Help:      "Timer firings skipped because a request was in flight.",
	})

	// EmptyCaptures counts ticks where the camera produced no frame.
	EmptyCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "empty_captures_total",
		Help:      "Ticks skipped because the camera was not ready.",
	})

	// DispatchErrors counts ticks that ended in an inference error.
	DispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "dispatch_errors_total",
		Help:      "Dispatch cycles that failed at the inference step.",
	})

	// RequestDuration tracks inference round-trip time.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "inference",
		Name:      "request_duration_seconds",
		Help:      "Inference request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
