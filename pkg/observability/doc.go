// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, panic recovery, and graceful shutdown for the
// tally metering service.
//
// # Logging
//
// Logger wraps log/slog with JSON output and field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithTenant(tenantID).Infof("recorded %d cents", amount)
//
// Loggers travel through context so handlers and background tasks share
// request/tenant fields:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("cache unavailable, failing open")
//
// # Metrics
//
// NewMetrics registers the metering counters (events recorded, buffer
// depth, flush outcomes, admission decisions, alerts) on a private
// prometheus.Registry; expose it with Handler.
//
// # Tracing
//
// InitTracing sets up an OTLP/gRPC tracer provider when enabled and is a
// no-op otherwise. HTTP spans come from otelhttp at the server layer.
package observability
