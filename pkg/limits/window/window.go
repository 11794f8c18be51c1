// Package window computes the time ranges limits are evaluated over.
//
// All boundaries are UTC. Calendar months run from the first of the month
// at midnight up to, but excluding, the first of the next month. Sliding
// windows end at the evaluation instant and include both endpoints, so a
// record created exactly one minute before asOf still counts against the
// per-minute limit.
package window

import "time"

// MonthBounds returns the start of the calendar month containing t and the
// start of the following month.
func MonthBounds(t time.Time) (start, next time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	next = start.AddDate(0, 1, 0)
	return start, next
}

// Trailing returns the sliding window [asOf-d, asOf].
func Trailing(asOf time.Time, d time.Duration) (from, to time.Time) {
	asOf = asOf.UTC()
	return asOf.Add(-d), asOf
}

// Since returns the window [asOf-days, asOf] used by usage history.
func Since(asOf time.Time, days int) (from, to time.Time) {
	asOf = asOf.UTC()
	return asOf.AddDate(0, 0, -days), asOf
}

// ResetTimes holds the instants at which each limit window rolls over.
type ResetTimes struct {
	NextMinute time.Time `json:"next_minute"`
	NextHour   time.Time `json:"next_hour"`
	NextMonth  time.Time `json:"next_month"`
}

// Resets returns the next top of minute, the next top of hour, and the
// first of next month after asOf.
func Resets(asOf time.Time) ResetTimes {
	asOf = asOf.UTC()
	_, nextMonth := MonthBounds(asOf)
	return ResetTimes{
		NextMinute: asOf.Truncate(time.Minute).Add(time.Minute),
		NextHour:   asOf.Truncate(time.Hour).Add(time.Hour),
		NextMonth:  nextMonth,
	}
}

// RetryAfter returns how long a caller blocked by the given window should
// wait, rounded up to whole seconds and never less than one second.
func RetryAfter(asOf, reset time.Time) time.Duration {
	d := reset.Sub(asOf)
	if d < time.Second {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
