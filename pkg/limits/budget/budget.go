package budget

import "math"

// WarningThreshold is the usage percentage at which callers are warned that
// a limit is approaching.
const WarningThreshold = 80.0

// Decimal places used when reporting values.
const (
	CostPlaces       = 4
	PercentagePlaces = 2
)

// Cost returns the spend for tokens at costPer1K per thousand tokens.
func Cost(tokens int64, costPer1K float64) float64 {
	if tokens <= 0 || costPer1K <= 0 {
		return 0
	}
	return float64(tokens) / 1000 * costPer1K
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Percentage returns current as a percentage of limit, rounded to two
// places. A limit of zero or less is unlimited and reports 0.
func Percentage(current, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return Round(current/limit*100, PercentagePlaces)
}

// Approaching reports whether pct has reached the warning threshold.
func Approaching(pct float64) bool {
	return pct >= WarningThreshold
}
