// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// This package implements middleware functions that handle common functionality
// across all HTTP requests including request ID generation, logging, CORS,
// panic recovery, timeout enforcement, and license authentication.
//
// # Middleware Chain
//
// The server installs the middleware on the chi router in this order:
//
//	r.Use(RequestIDMiddleware)
//	r.Use(tracing.HTTPMiddleware(tracer))
//	r.Use(LoggingMiddleware(logger, collector))
//	r.Use(RecoveryMiddleware(logger))
//	r.Use(CORSMiddleware(cfg.Server.CORS))
//	r.Use(TimeoutMiddleware(cfg.Server.RequestTimeout))
//
// LicenseMiddleware is installed per route group, on the usage and limits
// endpoints. The chat handler authenticates through the gate itself so the
// license check, limit check, and provider call form one traced pipeline.
//
// # Request ID
//
// RequestIDMiddleware reuses a client-provided X-Request-ID or generates a
// UUID v4. The ID is stored with logging.WithRequestID, so every log line
// written with a *Context method carries it.
//
// # Logging and Metrics
//
// LoggingMiddleware logs one line per request and records the request in the
// Prometheus HTTP metrics. The route label is the chi route pattern, such as
// /api/usage/{license_key}, never the raw path.
//
// # License Context
//
// Handlers behind LicenseMiddleware read the authenticated license with
// LicenseFromContext and its plan with PlanFromContext.
//
// # Thread Safety
//
// All middleware functions are thread-safe and can be called concurrently
// from multiple goroutines.
package middleware
