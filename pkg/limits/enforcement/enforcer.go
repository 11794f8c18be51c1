package enforcement

import (
	"net/http"

	"chatello/gateway/pkg/limits"
)

// Client-facing messages for blocked requests.
const (
	MessageQuotaExceeded  = "Monthly usage limit exceeded"
	MessageRatePerMinute  = "Rate limit exceeded: too many requests per minute"
	MessageRatePerHour    = "Rate limit exceeded: too many requests per hour"
	MessageBudgetExceeded = "Monthly budget exceeded"
	DetailBudgetExceeded  = "API budget limit reached. Upgrade your plan or wait for next month."
)

// Enforcer maps limit evaluations to enforcement results.
type Enforcer struct{}

// NewEnforcer creates a new enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{}
}

// Enforce decides what happens to a request given its evaluation. stats may
// be nil, in which case no warnings are produced.
func (e *Enforcer) Enforce(ev *limits.Evaluation, stats *limits.UsageStats) *Result {
	if ev.Allowed() {
		return e.enforceAllow(stats)
	}

	blocking := make([]string, len(ev.Blocking))
	for i, d := range ev.Blocking {
		blocking[i] = string(d)
	}

	if ev.Blocks(limits.DimensionMonthlyBudget) {
		return &Result{
			Action:     ActionRequirePayment,
			Status:     http.StatusPaymentRequired,
			Reason:     ReasonBudgetExceeded,
			Message:    MessageBudgetExceeded,
			Detail:     DetailBudgetExceeded,
			Blocking:   blocking,
			RetryAfter: ev.RetryAfter(),
		}
	}

	res := &Result{
		Action:     ActionBlock,
		Status:     http.StatusTooManyRequests,
		Blocking:   blocking,
		RetryAfter: ev.RetryAfter(),
	}
	switch ev.Blocking[0] {
	case limits.DimensionMonthlyRequests:
		res.Reason = ReasonQuotaExceeded
		res.Message = MessageQuotaExceeded
	case limits.DimensionRequestsPerMinute:
		res.Reason = ReasonRateExceeded
		res.Message = MessageRatePerMinute
	default:
		res.Reason = ReasonRateExceeded
		res.Message = MessageRatePerHour
	}
	return res
}

// enforceAllow allows the request, raising an alert when a monthly limit is
// close.
func (e *Enforcer) enforceAllow(stats *limits.UsageStats) *Result {
	res := &Result{
		Allowed: true,
		Action:  ActionAllow,
		Status:  http.StatusOK,
	}
	if stats != nil {
		if w := limits.Warnings(stats); len(w) > 0 {
			res.Action = ActionAlert
			res.Warnings = w
		}
	}
	return res
}
