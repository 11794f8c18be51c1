package limits

import (
	"time"

	"chatello/gateway/pkg/limits/window"
)

// Dimension names one limit a plan can impose.
type Dimension string

const (
	// DimensionMonthlyRequests caps requests per calendar month.
	DimensionMonthlyRequests Dimension = "monthly_requests"

	// DimensionRequestsPerMinute caps requests in the trailing minute.
	DimensionRequestsPerMinute Dimension = "requests_per_minute"

	// DimensionRequestsPerHour caps requests in the trailing hour.
	DimensionRequestsPerHour Dimension = "requests_per_hour"

	// DimensionMonthlyBudget caps spend per calendar month.
	DimensionMonthlyBudget Dimension = "monthly_budget"
)

// Dimensions returns every dimension in reporting order.
func Dimensions() []Dimension {
	return []Dimension{
		DimensionMonthlyRequests,
		DimensionRequestsPerMinute,
		DimensionRequestsPerHour,
		DimensionMonthlyBudget,
	}
}

// Period is a half-open reporting interval [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MonthUsage is the ledger rollup for the current calendar month. Cost is
// rounded for reporting.
type MonthUsage struct {
	Requests          int64   `json:"requests"`
	Tokens            int64   `json:"tokens"`
	Cost              float64 `json:"cost_eur"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
}

// WindowUsage is the request count in a sliding window.
type WindowUsage struct {
	Requests int64 `json:"requests"`
}

// PlanLimits echoes the plan limits the stats were computed against.
type PlanLimits struct {
	MonthlyRequests   int64   `json:"monthly_requests"`
	RequestsPerMinute int64   `json:"requests_per_minute"`
	RequestsPerHour   int64   `json:"requests_per_hour"`
	MonthlyBudget     float64 `json:"monthly_budget_eur"`
}

// Percentages reports monthly usage as a share of the plan limits.
type Percentages struct {
	Requests float64 `json:"requests"`
	Budget   float64 `json:"budget"`
}

// UsageStats is a snapshot of one license's usage at AsOf.
type UsageStats struct {
	LicenseID     string      `json:"license_id"`
	Plan          string      `json:"plan"`
	AsOf          time.Time   `json:"as_of"`
	Period        Period      `json:"period"`
	CurrentMonth  MonthUsage  `json:"current_month"`
	CurrentHour   WindowUsage `json:"current_hour"`
	CurrentMinute WindowUsage `json:"current_minute"`
	Limits        PlanLimits  `json:"limits"`
	Percentages   Percentages `json:"usage_percentages"`
}

// DimensionStatus is the outcome of one limit predicate.
type DimensionStatus struct {
	Passed     bool    `json:"passed"`
	Current    float64 `json:"current"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// Evaluation is the result of checking every limit of a plan.
type Evaluation struct {
	AsOf     time.Time                     `json:"-"`
	Statuses map[Dimension]DimensionStatus `json:"limits_status"`
	Blocking []Dimension                   `json:"blocking_factors"`
	Resets   window.ResetTimes             `json:"reset_times"`
}

// Allowed reports whether no dimension blocks.
func (e *Evaluation) Allowed() bool {
	return len(e.Blocking) == 0
}

// Blocks reports whether d is among the blocking dimensions.
func (e *Evaluation) Blocks(d Dimension) bool {
	for _, b := range e.Blocking {
		if b == d {
			return true
		}
	}
	return false
}

// RetryAfter returns the wait until every blocking window has reset. It is
// zero when nothing blocks.
func (e *Evaluation) RetryAfter() time.Duration {
	var reset time.Time
	for _, d := range e.Blocking {
		var r time.Time
		switch d {
		case DimensionRequestsPerMinute:
			r = e.Resets.NextMinute
		case DimensionRequestsPerHour:
			r = e.Resets.NextHour
		default:
			r = e.Resets.NextMonth
		}
		if reset.IsZero() || r.After(reset) {
			reset = r
		}
	}
	if reset.IsZero() {
		return 0
	}
	return window.RetryAfter(e.AsOf, reset)
}
