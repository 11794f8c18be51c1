package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/telemetry/logging"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and answers with
// a generic 500 JSON body. The panic is logged with its stack trace but no
// internal details reach the client.
//
// Example usage:
//
//	r.Use(RecoveryMiddleware(logger))
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logging.OrDefault(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					logger.ErrorContext(r.Context(), "panic in handler",
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					_ = proxy.WriteErrorResponse(w, http.StatusInternalServerError, proxy.MessageInternal)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
