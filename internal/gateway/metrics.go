package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rfontaine/sundog/internal/agent"
	"github.com/rfontaine/sundog/internal/conversation"
)

const metricsNamespace = "sundog"

// Metrics holds the Prometheus instruments for loop activity. It
// implements agent.Sink and observes every turn and status transition.
type Metrics struct {
	registry *prometheus.Registry

	statusTransitions *prometheus.CounterVec
	turns             *prometheus.CounterVec
	toolCalls         *prometheus.CounterVec
	toolDuration      *prometheus.HistogramVec
}

// NewMetrics creates the instruments on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		statusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "job_status_transitions_total",
			Help:      "Job status transitions by target status.",
		}, []string{"status"}),
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "turns_total",
			Help:      "Conversation turns appended, by kind.",
		}, []string{"kind"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

// Registry exposes the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Emit implements agent.Sink.
func (m *Metrics) Emit(ev agent.Event) {
	switch ev.Type {
	case agent.EventStatus:
		m.statusTransitions.WithLabelValues(string(ev.Status)).Inc()

	case agent.EventTurn:
		if ev.Turn == nil {
			return
		}
		m.turns.WithLabelValues(string(ev.Turn.Kind)).Inc()

		if ev.Turn.Kind == conversation.KindToolOutcome {
			outcome := "success"
			if !ev.Turn.Success {
				outcome = "failure"
			}
			m.toolCalls.WithLabelValues(ev.Turn.ToolName, outcome).Inc()
			m.toolDuration.WithLabelValues(ev.Turn.ToolName).
				Observe(float64(ev.Turn.DurationMs) / 1000)
		}
	}
}

var _ agent.Sink = (*Metrics)(nil)
