package enforcement

import "time"

// Action defines what happens to a request after its limits are checked.
type Action string

const (
	// ActionAllow permits the request to proceed.
	ActionAllow Action = "allow"

	// ActionAlert permits the request but reports an approaching limit.
	ActionAlert Action = "alert"

	// ActionBlock rejects the request with 429 Too Many Requests.
	ActionBlock Action = "block"

	// ActionRequirePayment rejects the request with 402 Payment Required.
	ActionRequirePayment Action = "require_payment"
)

// Reason classifies why a request was blocked.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonQuotaExceeded  Reason = "quota_exceeded"
	ReasonRateExceeded   Reason = "rate_exceeded"
	ReasonBudgetExceeded Reason = "budget_exceeded"
)

// Result contains the result of an enforcement decision.
type Result struct {
	// Allowed indicates if the request should proceed.
	Allowed bool

	// Action is the enforcement action that was taken.
	Action Action

	// Status is the HTTP status for a blocked request, or 200.
	Status int

	// Reason classifies the block (if Allowed=false).
	Reason Reason

	// Message is the client-facing error message (if Allowed=false).
	Message string

	// Detail is an optional second sentence for the client.
	Detail string

	// Blocking lists the failing dimensions in reporting order.
	Blocking []string

	// RetryAfter suggests how long to wait before retrying (if action=block).
	RetryAfter time.Duration

	// Warnings holds approaching-limit messages (if action=alert).
	Warnings []string
}
