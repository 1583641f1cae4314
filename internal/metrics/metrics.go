// Package metrics exposes Prometheus collectors for the relay and the host.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prompt outcomes
const (
	PromptAnswered = "answered"
	PromptClosed   = "closed"
	PromptTimeout  = "timeout"
	PromptError    = "error"
)

// Metrics owns a private registry so tests can create as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequests    *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	relayChannels  prometheus.Gauge
	relayRejected  *prometheus.CounterVec
	promptOutcomes *prometheus.CounterVec
	stateWrites    prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dw_rpc_requests_total",
			Help: "Connector RPC requests by method and outcome code.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dw_rpc_duration_seconds",
			Help:    "Connector RPC latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		relayChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dw_relay_channels",
			Help: "Open relay channels.",
		}),
		relayRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dw_relay_rejected_total",
			Help: "Relay messages rejected before forwarding, by reason.",
		}, []string{"reason"}),
		promptOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dw_permission_prompts_total",
			Help: "Permission prompts by terminal outcome.",
		}, []string{"outcome"}),
		stateWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dw_state_writes_total",
			Help: "Encrypted wallet state writes.",
		}),
	}

	m.registry.MustRegister(
		m.rpcRequests,
		m.rpcDuration,
		m.relayChannels,
		m.relayRejected,
		m.promptOutcomes,
		m.stateWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRPC records one completed request. outcome is "ok" or an error code.
func (m *Metrics) ObserveRPC(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ChannelOpened counts a new relay channel.
func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.relayChannels.Inc()
}

// ChannelClosed counts a closed relay channel.
func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.relayChannels.Dec()
}

// RelayRejected counts a relay rejection by reason.
func (m *Metrics) RelayRejected(reason string) {
	if m == nil {
		return
	}
	m.relayRejected.WithLabelValues(reason).Inc()
}

// PromptResolved counts a finished prompt by outcome.
func (m *Metrics) PromptResolved(outcome string) {
	if m == nil {
		return
	}
	m.promptOutcomes.WithLabelValues(outcome).Inc()
}

// StateWritten counts a persisted state write.
func (m *Metrics) StateWritten() {
	if m == nil {
		return
	}
	m.stateWrites.Inc()
}
