package middleware

import (
	"context"

	"chatello/gateway/pkg/licensing"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// Context keys for storing values in request context.
const (
	// StartTimeKey stores the request start time for latency calculation.
	StartTimeKey contextKey = "start_time"

	// LicenseKey stores the authenticated license.
	LicenseKey contextKey = "license"

	// PlanKey stores the plan of the authenticated license.
	PlanKey contextKey = "plan"
)

// WithLicense stores an authenticated license and its plan in ctx.
func WithLicense(ctx context.Context, lic *licensing.License, plan *licensing.Plan) context.Context {
	ctx = context.WithValue(ctx, LicenseKey, lic)
	return context.WithValue(ctx, PlanKey, plan)
}

// LicenseFromContext returns the license stored by LicenseMiddleware.
func LicenseFromContext(ctx context.Context) (*licensing.License, bool) {
	lic, ok := ctx.Value(LicenseKey).(*licensing.License)
	return lic, ok && lic != nil
}

// PlanFromContext returns the plan stored by LicenseMiddleware.
func PlanFromContext(ctx context.Context) (*licensing.Plan, bool) {
	plan, ok := ctx.Value(PlanKey).(*licensing.Plan)
	return plan, ok && plan != nil
}
