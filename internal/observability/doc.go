// Package observability provides the logging, metrics and tracing used by the
// bridge.
//
// # Logging
//
// NewLogger builds a *slog.Logger whose handler redacts bearer tokens and
// other secrets before records reach the output. Components receive the
// logger explicitly and tag themselves with a "component" attribute:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	logger = logger.With("component", "bridge")
//
// # Metrics
//
// Metrics are Prometheus collectors registered on a caller-supplied
// registerer so tests can use an isolated registry:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordCommand("ON", "ok", time.Since(start).Seconds())
//
// # Tracing
//
// NewTracer returns an OpenTelemetry tracer. With no OTLP endpoint configured
// the tracer is a no-op and the shutdown function does nothing.
package observability
