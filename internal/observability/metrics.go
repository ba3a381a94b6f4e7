package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the orchestration core:
// request flow, provider latency, tool execution, and session counts.
type Metrics struct {
	// RequestCounter counts orchestrator requests.
	// Labels: status (success|error), mode (sync|streaming)
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures end-to-end request latency in seconds.
	// Labels: mode
	RequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts completions by provider and model.
	// Labels: provider, model, status (success|error)
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderRequestDuration measures provider call latency in seconds.
	// Labels: provider, model
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderTokens tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ProviderTokens *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// PlanExecutionCounter counts executed plans.
	// Labels: status (success|error), rollback (true|false)
	PlanExecutionCounter *prometheus.CounterVec

	// ActiveSessions gauges sessions currently held in memory.
	ActiveSessions prometheus.Gauge

	// ErrorCounter tracks errors by component and code.
	// Labels: component (orchestrator|planner|executor|sessions), code
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given
// registerer. Pass prometheus.DefaultRegisterer for the global
// registry or a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_requests_total",
			Help: "Total orchestrator requests processed",
		}, []string{"status", "mode"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "halcyon_request_duration_seconds",
			Help:    "End-to-end orchestrator request latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode"}),

		ProviderRequestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_provider_requests_total",
			Help: "Total model provider requests",
		}, []string{"provider", "model", "status"}),

		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "halcyon_provider_request_duration_seconds",
			Help:    "Model provider call latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		ProviderTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_provider_tokens_total",
			Help: "Token consumption by provider and model",
		}, []string{"provider", "model", "type"}),

		ToolExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_tool_executions_total",
			Help: "Total tool invocations",
		}, []string{"tool", "status"}),

		ToolExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "halcyon_tool_execution_duration_seconds",
			Help:    "Tool execution time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),

		PlanExecutionCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_plan_executions_total",
			Help: "Total execution plans run",
		}, []string{"status", "rollback"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "halcyon_active_sessions",
			Help: "Sessions currently held in memory",
		}),

		ErrorCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_errors_total",
			Help: "Errors by component and code",
		}, []string{"component", "code"}),
	}
}

// ToolExecuted records one tool invocation outcome.
func (m *Metrics) ToolExecuted(tool string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RequestProcessed records one orchestrator request outcome.
func (m *Metrics) RequestProcessed(mode string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestCounter.WithLabelValues(status, mode).Inc()
	m.RequestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// ProviderCall records one provider completion outcome with usage.
func (m *Metrics) ProviderCall(provider, model string, success bool, duration time.Duration, promptTokens, completionTokens int) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// PlanExecuted records one plan execution outcome.
func (m *Metrics) PlanExecuted(success, rollback bool) {
	status := "success"
	if !success {
		status = "error"
	}
	rb := "false"
	if rollback {
		rb = "true"
	}
	m.PlanExecutionCounter.WithLabelValues(status, rb).Inc()
}

// ErrorRecorded counts one classified error.
func (m *Metrics) ErrorRecorded(component, code string) {
	m.ErrorCounter.WithLabelValues(component, code).Inc()
}
