package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the bridge's Prometheus metrics.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests and one-shot CLI commands.
type Metrics struct {
	// CommandCounter counts dispatched commands.
	// Labels: action, result (ok|error)
	CommandCounter *prometheus.CounterVec

	// CommandDuration measures time from dispatch to reply in seconds.
	// Labels: action
	CommandDuration *prometheus.HistogramVec

	// HubRequestCounter counts Home Assistant API requests.
	// Labels: method, endpoint, status
	HubRequestCounter *prometheus.CounterVec

	// HubRequestDuration measures Home Assistant API latency in seconds.
	// Labels: method, endpoint
	HubRequestDuration *prometheus.HistogramVec

	// SessionCounter counts accepted TCP sessions.
	SessionCounter prometheus.Counter

	// ActiveSessions is the number of currently connected sessions.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures session lifetime in seconds.
	SessionDuration prometheus.Histogram

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (bridge|hub|http), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg. A nil reg
// registers with prometheus.DefaultRegisterer; call it once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatcp_commands_total",
				Help: "Total number of bridge commands by action and result",
			},
			[]string{"action", "result"},
		),

		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hatcp_command_duration_seconds",
				Help:    "Duration of bridge command handling in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"action"},
		),

		HubRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatcp_hub_requests_total",
				Help: "Total number of Home Assistant API requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),

		HubRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hatcp_hub_request_duration_seconds",
				Help:    "Duration of Home Assistant API requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "endpoint"},
		),

		SessionCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hatcp_sessions_total",
				Help: "Total number of accepted TCP sessions",
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hatcp_active_sessions",
				Help: "Current number of connected TCP sessions",
			},
		),

		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hatcp_session_duration_seconds",
				Help:    "Duration of TCP sessions in seconds",
				Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hatcp_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordCommand records a dispatched command and its handling time.
func (m *Metrics) RecordCommand(action, result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CommandCounter.WithLabelValues(action, result).Inc()
	m.CommandDuration.WithLabelValues(action).Observe(durationSeconds)
}

// RecordHubRequest records one Home Assistant API call.
func (m *Metrics) RecordHubRequest(method, endpoint, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HubRequestCounter.WithLabelValues(method, endpoint, status).Inc()
	m.HubRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// SessionStarted increments the session counters.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionCounter.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge and records the lifetime.
func (m *Metrics) SessionEnded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordError increments the error counter for a component and error type.
//
// Example:
//
//	metrics.RecordError("bridge", "read_timeout")
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
