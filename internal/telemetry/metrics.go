// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the assistant. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deskclaw"

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	approvals     *prometheus.CounterVec
	quotaDenials  prometheus.Counter
	tokens        prometheus.Counter
	turnDuration  prometheus.Histogram
	toolDurations *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Confirmation requests by outcome.",
		}, []string{"outcome"}),
		quotaDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Messages refused by quota admission.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens consumed.",
		}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of a conversation turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		toolDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration, including confirmation wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}

	reg.MustRegister(
		m.turns, m.toolCalls, m.approvals, m.quotaDenials, m.tokens,
		m.turnDuration, m.toolDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// ObserveToolCall records a finished tool call.
func (m *Metrics) ObserveToolCall(toolName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName, outcome).Inc()
	m.toolDurations.WithLabelValues(toolName).Observe(d.Seconds())
}

// ObserveApproval records a resolved confirmation request.
func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(outcome).Inc()
}

// ObserveQuotaDenial records a refused message.
func (m *Metrics) ObserveQuotaDenial() {
	if m == nil {
		return
	}
	m.quotaDenials.Inc()
}

// AddTokens records consumed tokens.
func (m *Metrics) AddTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokens.Add(float64(n))
}
