package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the registry's Prometheus collectors.
type Metrics struct {
	ActiveMounts  prometheus.Gauge
	Activations   *prometheus.CounterVec
	Deactivations *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	ToolCallTime  *prometheus.HistogramVec
	Refreshes     *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveMounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcpreg",
			Name:      "active_mounts",
			Help:      "Number of currently active mounts.",
		}),
		Activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpreg",
			Name:      "activations_total",
			Help:      "Mount activations by outcome.",
		}, []string{"outcome"}),
		Deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpreg",
			Name:      "deactivations_total",
			Help:      "Mount deactivations by outcome.",
		}, []string{"outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpreg",
			Name:      "tool_calls_total",
			Help:      "Routed tool invocations by prefix and outcome.",
		}, []string{"prefix", "outcome"}),
		ToolCallTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpreg",
			Name:      "tool_call_seconds",
			Help:      "Routed tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"prefix"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpreg",
			Name:      "source_refreshes_total",
			Help:      "Catalog source refreshes by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActiveMounts,
			m.Activations,
			m.Deactivations,
			m.ToolCalls,
			m.ToolCallTime,
			m.Refreshes,
		)
	}
	return m
}

// NopMetrics returns unregistered collectors for tests and optional wiring.
func NopMetrics() *Metrics {
	return NewMetrics(nil)
}
