package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// LicenseIDKey is the context key for the gated license ID.
	LicenseIDKey contextKey = "license_id"

	// ProviderKey is the context key for provider names.
	ProviderKey contextKey = "provider"

	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLicenseID adds a license ID to the context.
func WithLicenseID(ctx context.Context, licenseID string) context.Context {
	return context.WithValue(ctx, LicenseIDKey, licenseID)
}

// GetLicenseID retrieves the license ID from the context.
func GetLicenseID(ctx context.Context) string {
	if id, ok := ctx.Value(LicenseIDKey).(string); ok {
		return id
	}
	return ""
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider name from the context.
func GetProvider(ctx context.Context) string {
	if p, ok := ctx.Value(ProviderKey).(string); ok {
		return p
	}
	return ""
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		fields = append(fields, slog.String(string(RequestIDKey), v))
	}
	if v := GetLicenseID(ctx); v != "" {
		fields = append(fields, slog.String(string(LicenseIDKey), v))
	}
	if v := GetProvider(ctx); v != "" {
		fields = append(fields, slog.String(string(ProviderKey), v))
	}
	if v := GetTraceID(ctx); v != "" {
		fields = append(fields, slog.String(string(TraceIDKey), v))
	}
	return fields
}

// contextHandler decorates records with the fields carried by the context.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if fields := extractContextFields(ctx); len(fields) > 0 {
		r.AddAttrs(fields...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
