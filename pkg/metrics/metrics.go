// Package metrics exposes daemon counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of Corrections.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeInvalid      = "invalid"
	OutcomeSuperseded   = "superseded"
	OutcomeCancelled    = "cancelled"
)

// Metrics is a set of collectors bound to their own registry.
type Metrics struct {
	registry *prometheus.Registry

	Corrections   *prometheus.CounterVec
	Iterations    prometheus.Histogram
	Duration      prometheus.Histogram
	Sessions      prometheus.Gauge
	DroppedEvents prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lcqe",
			Name:      "corrections_total",
			Help:      "Corrections run, by outcome.",
		}, []string{"outcome"}),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lcqe",
			Name:      "correction_iterations",
			Help:      "Fixed-point iterations per finished correction.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lcqe",
			Name:      "correction_duration_seconds",
			Help:      "Wall time per correction.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lcqe",
			Name:      "sessions",
			Help:      "Sessions currently held by the daemon.",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lcqe",
			Name:      "events_dropped_total",
			Help:      "Events not delivered to a slow subscriber.",
		}),
	}
	m.registry.MustRegister(
		m.Corrections,
		m.Iterations,
		m.Duration,
		m.Sessions,
		m.DroppedEvents,
		prometheus.NewGoCollector(),
	)
	return m
}

// Observe records one finished correction.
func (m *Metrics) Observe(outcome string, iterations int, took time.Duration) {
	if m == nil {
		return
	}
	m.Corrections.WithLabelValues(outcome).Inc()
	if iterations > 0 {
		m.Iterations.Observe(float64(iterations))
	}
	m.Duration.Observe(took.Seconds())
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
