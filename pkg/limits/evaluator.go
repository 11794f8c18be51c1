package limits

import (
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits/budget"
	"chatello/gateway/pkg/limits/window"
)

// MonthlyRequestsOK reports whether one more request fits the monthly
// quota. A limit of zero is unlimited.
func MonthlyRequestsOK(count, limit int64) bool {
	return limit == 0 || count < limit
}

// RatePerMinuteOK reports whether one more request fits the per-minute
// limit. A limit of zero is unlimited.
func RatePerMinuteOK(count, limit int64) bool {
	return limit == 0 || count < limit
}

// RatePerHourOK reports whether one more request fits the per-hour limit.
// A limit of zero is unlimited.
func RatePerHourOK(count, limit int64) bool {
	return limit == 0 || count < limit
}

// BudgetOK reports whether spend is still below the monthly budget. A
// budget of zero is unlimited. The request about to be made is not priced
// in; the check is made before its cost is known.
func BudgetOK(cost, budget float64) bool {
	return budget == 0 || cost < budget
}

// Evaluate checks stats against every limit of plan. Spend is recomputed
// from the month's tokens so the budget comparison is unrounded. Blocking
// lists the failing dimensions in the order returned by Dimensions.
func Evaluate(plan *licensing.Plan, stats *UsageStats, asOf time.Time) *Evaluation {
	asOf = asOf.UTC()
	month := stats.CurrentMonth
	cost := budget.Cost(month.Tokens, plan.CostPer1KTokens)

	statuses := map[Dimension]DimensionStatus{
		DimensionMonthlyRequests: {
			Passed:     MonthlyRequestsOK(month.Requests, plan.MonthlyRequestLimit),
			Current:    float64(month.Requests),
			Limit:      float64(plan.MonthlyRequestLimit),
			Percentage: budget.Percentage(float64(month.Requests), float64(plan.MonthlyRequestLimit)),
		},
		DimensionRequestsPerMinute: {
			Passed:     RatePerMinuteOK(stats.CurrentMinute.Requests, plan.RequestsPerMinute),
			Current:    float64(stats.CurrentMinute.Requests),
			Limit:      float64(plan.RequestsPerMinute),
			Percentage: budget.Percentage(float64(stats.CurrentMinute.Requests), float64(plan.RequestsPerMinute)),
		},
		DimensionRequestsPerHour: {
			Passed:     RatePerHourOK(stats.CurrentHour.Requests, plan.RequestsPerHour),
			Current:    float64(stats.CurrentHour.Requests),
			Limit:      float64(plan.RequestsPerHour),
			Percentage: budget.Percentage(float64(stats.CurrentHour.Requests), float64(plan.RequestsPerHour)),
		},
		DimensionMonthlyBudget: {
			Passed:     BudgetOK(cost, plan.MonthlyBudget),
			Current:    budget.Round(cost, budget.CostPlaces),
			Limit:      plan.MonthlyBudget,
			Percentage: budget.Percentage(cost, plan.MonthlyBudget),
		},
	}

	ev := &Evaluation{
		AsOf:     asOf,
		Statuses: statuses,
		Blocking: []Dimension{},
		Resets:   window.Resets(asOf),
	}
	for _, d := range Dimensions() {
		if !statuses[d].Passed {
			ev.Blocking = append(ev.Blocking, d)
		}
	}
	return ev
}
