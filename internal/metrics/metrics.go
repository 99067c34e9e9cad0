// Package metrics provides Prometheus instrumentation for the Confidence
// client.
//
// All metrics are registered in a custom [prometheus.Registry] (not the
// global default) so that embedding applications can expose or discard them
// independently of their own collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors used by the client.
type Metrics struct {
	Registry *prometheus.Registry

	ResolvesTotal     *prometheus.CounterVec
	ResolveDuration   prometheus.Histogram
	ApplyBatchesTotal *prometheus.CounterVec
	PendingApplies    prometheus.Gauge
	StateInstalls     *prometheus.CounterVec
}

// New creates and registers all client metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confidence_resolves_total",
			Help: "Total number of flag resolutions.",
		}, []string{"outcome"}),

		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "confidence_resolve_duration_seconds",
			Help:    "Flag resolution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		ApplyBatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confidence_apply_batches_total",
			Help: "Total number of apply batches sent, by status.",
		}, []string{"status"}),

		PendingApplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confidence_pending_applies",
			Help: "Number of applied-flag events waiting for the next flush.",
		}),

		StateInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confidence_state_installs_total",
			Help: "Total number of resolver state installations, by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.ResolvesTotal,
		m.ResolveDuration,
		m.ApplyBatchesTotal,
		m.PendingApplies,
		m.StateInstalls,
	)
	return m
}
