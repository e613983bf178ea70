// Package observability provides the structured logger and OpenTelemetry
// tracing bootstrap shared by Atrium components. Logging is JSON via stdlib
// slog; traces export over OTLP gRPC when enabled.
package observability
