// Package metrics exposes the agent's Prometheus collectors.
//
// All observe methods are nil-safe so components can be built without
// metrics in tests and tools.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crib"

// Metrics holds the agent's collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	Dispatches       *prometheus.CounterVec
	ShadowUpdates    *prometheus.CounterVec
	ShadowRejections prometheus.Counter
	DeltasReceived   prometheus.Counter
	DeltasDropped    prometheus.Counter
	ConnectionEvents *prometheus.CounterVec
	Connected        prometheus.Gauge
	TaskRestarts     *prometheus.CounterVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Attribute dispatches by outcome (applied, unknown, failed)",
			},
			[]string{"attribute", "outcome"},
		),

		ShadowUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "shadow",
				Name:      "updates_total",
				Help:      "Shadow update publishes by acknowledgement outcome",
			},
			[]string{"outcome"},
		),

		ShadowRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "shadow",
				Name:      "rejected_total",
				Help:      "Shadow updates rejected by the cloud",
			},
		),

		DeltasReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "shadow",
				Name:      "deltas_received_total",
				Help:      "Delta documents received from the cloud",
			},
		),

		DeltasDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "shadow",
				Name:      "deltas_dropped_total",
				Help:      "Delta documents that could not be parsed or queued",
			},
		),

		ConnectionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connection_events_total",
				Help:      "Connection lifecycle events (interrupted, resumed, resubscribed, failed)",
			},
			[]string{"event"},
		),

		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connected",
				Help:      "1 while the broker connection is up",
			},
		),

		TaskRestarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "restarts_total",
				Help:      "Supervised task restarts",
			},
			[]string{"task"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Dispatches,
		m.ShadowUpdates,
		m.ShadowRejections,
		m.DeltasReceived,
		m.DeltasDropped,
		m.ConnectionEvents,
		m.Connected,
		m.TaskRestarts,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDispatch counts one dispatch outcome.
func (m *Metrics) ObserveDispatch(attribute, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(attribute, outcome).Inc()
}

// ObserveShadowUpdate counts a publish acknowledgement ("ok" or "error").
func (m *Metrics) ObserveShadowUpdate(outcome string) {
	if m == nil {
		return
	}
	m.ShadowUpdates.WithLabelValues(outcome).Inc()
}

// ObserveShadowRejected counts an update/rejected message.
func (m *Metrics) ObserveShadowRejected() {
	if m == nil {
		return
	}
	m.ShadowRejections.Inc()
}

// ObserveDelta counts a received delta; dropped marks one that was discarded.
func (m *Metrics) ObserveDelta(dropped bool) {
	if m == nil {
		return
	}
	m.DeltasReceived.Inc()
	if dropped {
		m.DeltasDropped.Inc()
	}
}

// ObserveConnection records a lifecycle event and the resulting link state.
func (m *Metrics) ObserveConnection(event string, connected bool) {
	if m == nil {
		return
	}
	m.ConnectionEvents.WithLabelValues(event).Inc()
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// ObserveRestart counts a supervised task restart.
func (m *Metrics) ObserveRestart(task string) {
	if m == nil {
		return
	}
	m.TaskRestarts.WithLabelValues(task).Inc()
}
