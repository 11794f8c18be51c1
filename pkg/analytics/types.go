package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a date.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// PlanRevenue is the active-license count and revenue of one plan.
type PlanRevenue struct {
	Count   int64   `json:"count"`
	Revenue float64 `json:"revenue"`
}

// DailySnapshot is the business state of one UTC day.
type DailySnapshot struct {
	// Date is the UTC day formatted as YYYY-MM-DD.
	Date string `json:"date"`

	TotalCustomers  int64 `json:"total_customers"`
	ActiveLicenses  int64 `json:"active_licenses"`
	PayingCustomers int64 `json:"paying_customers"`

	MRR            float64                `json:"mrr"`
	ARR            float64                `json:"arr"`
	OneTimeRevenue float64                `json:"one_time_revenue"`
	RevenueByPlan  map[string]PlanRevenue `json:"revenue_by_plan"`

	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`

	GeneratedAt time.Time `json:"generated_at"`
}

// SnapshotStore persists daily snapshots keyed by date.
type SnapshotStore interface {
	// SaveSnapshot inserts s or replaces the snapshot with the same date.
	SaveSnapshot(ctx context.Context, s *DailySnapshot) error

	// GetSnapshot returns the snapshot of date or ErrSnapshotNotFound.
	GetSnapshot(ctx context.Context, date string) (*DailySnapshot, error)

	// ListSnapshots returns snapshots with from <= date <= to, newest first.
	ListSnapshots(ctx context.Context, from, to string) ([]*DailySnapshot, error)

	// PruneSnapshots deletes snapshots dated before the given day.
	PruneSnapshots(ctx context.Context, before string) (int64, error)

	Close() error
}

// DayKey formats t as a snapshot date.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// dayBounds returns the first instant of t's UTC day and of the next day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
