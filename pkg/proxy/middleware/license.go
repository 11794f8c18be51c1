package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/telemetry/logging"
)

// Authenticator resolves a license key to an active license and its plan.
// *gate.Gate implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, key string, now time.Time) (*licensing.License, *licensing.Plan, error)
	Now() time.Time
}

// LicenseMiddleware authenticates the license key carried in header and
// stores the license and its plan in the request context. Missing, unknown,
// inactive, and expired licenses are answered with 401 before the handler
// runs.
//
// Example usage:
//
//	r.With(LicenseMiddleware(g, "X-License-Key", logger)).Get("/api/usage/current", h)
func LicenseMiddleware(auth Authenticator, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logging.OrDefault(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := proxy.ExtractLicenseKey(r, header)

			lic, plan, err := auth.Authenticate(r.Context(), key, auth.Now())
			if err != nil {
				if gerr, ok := gate.AsError(err); ok && !gerr.Expected() {
					logger.ErrorContext(r.Context(), "license authentication failed",
						"path", r.URL.Path,
						"error", err,
					)
				}
				proxy.HandleError(w, r, err, logger)
				return
			}

			ctx := WithLicense(r.Context(), lic, plan)
			ctx = logging.WithLicenseID(ctx, lic.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
