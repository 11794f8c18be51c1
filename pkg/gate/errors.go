package gate

import (
	"errors"
	"net/http"
	"time"

	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/limits/enforcement"
)

// Kind classifies a gate rejection.
type Kind string

const (
	KindUnauthenticated     Kind = "unauthenticated"
	KindInvalidLicense      Kind = "invalid_license"
	KindInactiveLicense     Kind = "inactive_license"
	KindExpiredLicense      Kind = "expired_license"
	KindFeatureNotIncluded  Kind = "feature_not_included"
	KindLimitExceeded       Kind = "limit_exceeded"
	KindValidation          Kind = "validation"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindUpstream            Kind = "upstream"
	KindInternal            Kind = "internal"
)

// Client-facing messages.
const (
	MessageLicenseRequired  = "License key required"
	MessageInvalidLicense   = "Invalid or inactive license"
	MessageExpiredLicense   = "License expired"
	MessageAINotIncluded    = "AI not included in your plan"
	MessageUpgradeForAI     = "Upgrade to Pro or Agency plan for included AI"
	MessageProviderError    = "AI provider error"
	MessageInternal         = "Internal server error"
	MessageValidationFailed = "License validation failed"
)

// Error is a request rejected or failed by the gate. Status is the HTTP
// status the caller should answer with; Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Status  int
	Message string

	// State is the last state the request reached.
	State State

	// Reason refines KindLimitExceeded: quota, rate, or budget.
	Reason enforcement.Reason

	// Detail is an optional human-readable hint.
	Detail string

	// Blocking lists every failing limit dimension for KindLimitExceeded.
	Blocking   []string
	Evaluation *limits.Evaluation
	RetryAfter time.Duration

	// Plan names the license's plan once known.
	Plan string

	// Cause is the underlying error. It is never shown to clients.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Expected reports whether the error is a client-side rejection rather than
// an infrastructure failure.
func (e *Error) Expected() bool {
	return e.Kind != KindInternal && e.Kind != KindUpstream
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	ok := errors.As(err, &gerr)
	return gerr, ok
}

func internalError(state State, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: MessageInternal,
		State:   state,
		Cause:   cause,
	}
}
