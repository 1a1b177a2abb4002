// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tv_bridge"

// Metrics groups every collector the bridge records into.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec // channel, outcome
	KeySendsTotal   *prometheus.CounterVec // key, outcome
	MacroQueueDepth prometheus.Gauge
	PublishesTotal  *prometheus.CounterVec // channel, outcome
	SessionEvents   *prometheus.CounterVec // kind
	Powered         prometheus.Gauge
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// New creates and registers the bridge metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Bus commands handled, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		KeySendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "key_sends_total",
			Help:      "Key presses sent to the television, by key and outcome.",
		}, []string{"key", "outcome"}),
		MacroQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "macro_queue_depth",
			Help:      "Macros waiting for the scheduler.",
		}),
		PublishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "publishes_total",
			Help:      "Messages published by the power bridge, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "session_events_total",
			Help:      "Remote session notifications, by kind.",
		}, []string{"kind"}),
		Powered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "powered",
			Help:      "Last reported television power state (1 on, 0 off).",
		}),
	}
	reg.MustRegister(
		m.CommandsTotal,
		m.KeySendsTotal,
		m.MacroQueueDepth,
		m.PublishesTotal,
		m.SessionEvents,
		m.Powered,
	)
	return m
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)
