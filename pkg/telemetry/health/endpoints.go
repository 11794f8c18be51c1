package health

import (
	"encoding/json"
	"net/http"
)

// LivenessHandler serves the liveness endpoint. It always answers 200.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler serves the readiness endpoint, for example:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "storage": {"status": "ok", "critical": true, "duration_ms": 0.4},
//	        "cache": {"status": "unhealthy", "critical": false, "message": "dial tcp: connection refused", "duration_ms": 1.2}
//	    },
//	    "timestamp": "2026-01-01T00:00:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, c.CheckReadiness(r.Context()))
	}
}

func respond(w http.ResponseWriter, r *http.Request, status HealthStatus) {
	code := http.StatusOK
	if !status.Serving() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(status)
}
