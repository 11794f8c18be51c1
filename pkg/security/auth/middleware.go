package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/telemetry/logging"
)

// DefaultHeader carries the admin key when none is configured.
const DefaultHeader = "X-Admin-Key"

// Middleware rejects requests without a valid admin key in header.
func Middleware(v *Validator, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	logger = logging.OrDefault(logger).With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := v.Validate(r.Header.Get(header))
			if err != nil {
				logger.WarnContext(r.Context(), "admin authentication failed",
					"error", err,
					"remote_addr", proxy.ClientIP(r),
					"path", r.URL.Path,
				)
				msg := "Invalid admin key"
				if errors.Is(err, ErrMissingKey) {
					msg = "Admin key required"
				}
				_ = proxy.WriteErrorResponse(w, http.StatusUnauthorized, msg)
				return
			}

			logger.DebugContext(r.Context(), "admin authenticated", "admin", key.Name, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
		})
	}
}

type contextKey struct{}

// WithKey returns a copy of ctx carrying the authenticated admin key.
func WithKey(ctx context.Context, key *AdminKey) context.Context {
	return context.WithValue(ctx, contextKey{}, key)
}

// KeyFromContext returns the admin key stored by Middleware.
func KeyFromContext(ctx context.Context) (*AdminKey, bool) {
	key, ok := ctx.Value(contextKey{}).(*AdminKey)
	return key, ok
}
