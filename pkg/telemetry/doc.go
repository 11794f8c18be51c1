// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog construction, request-scoped attributes, license key masking
//   - metrics: Prometheus collector and /metrics handler
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness checks
package telemetry
