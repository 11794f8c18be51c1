// Package health provides liveness and readiness checks for the gateway.
//
// Liveness only reports that the process is serving. Readiness checks every
// registered component concurrently, each bounded by the checker timeout.
// A failed critical component (the license store) answers 503 with status
// "unavailable"; a failed optional component (the usage cache) answers 200
// with status "degraded", since the gate falls back to the store.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("storage", store.Ping)
//	checker.RegisterOptionalCheck("cache", cache.Ping)
//	r.Get("/api/health", checker.LivenessHandler())
//	r.Get("/health/ready", checker.ReadinessHandler())
package health
