// Package budget converts metered tokens into spend and reports usage
// against a plan's limits.
//
// # Cost
//
// Spend is linear in tokens: tokens / 1000 * cost per thousand tokens.
// Comparisons against the monthly budget use the unrounded value; Round is
// applied only when a value is reported.
//
// # Percentages
//
// Percentage returns the share of a limit in use, rounded to two decimals.
// An unlimited (zero) limit always reports 0.
//
//	cost := budget.Cost(12_500, 0.002)           // 0.025
//	pct := budget.Percentage(cost, 5.0)          // 0.5
//	warn := pct >= budget.WarningThreshold       // false
package budget
