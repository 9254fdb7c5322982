// Package observability provides structured logging, Prometheus metrics,
// and OpenTelemetry tracing for the Larder service.
//
// Logging is JSON via stdlib slog with field chaining and context plumbing
// for request and household ids. Metrics cover fork operations, cascade
// actions, orphan sweeps, subscriptions, cache effectiveness, and database
// pool state. Tracing is optional and exports over OTLP gRPC when enabled.
package observability
