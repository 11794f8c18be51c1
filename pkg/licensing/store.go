package licensing

import (
	"context"
	"time"
)

// PlanStore is the read side of plan persistence.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	GetPlanByName(ctx context.Context, name string) (*Plan, error)
	ListPlans(ctx context.Context) ([]*Plan, error)
}

// LicenseStore is the license persistence used by the directory and the
// allocator.
type LicenseStore interface {
	GetLicenseByKey(ctx context.Context, key string) (*License, error)

	// UpdateLicenseStatus moves a license from status from to status to.
	// It returns ErrStatusConflict, leaving the license untouched, when the
	// stored status is no longer from.
	UpdateLicenseStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	TouchLastCheck(ctx context.Context, id string, at time.Time) error

	// CreateLicense inserts a license. It returns ErrDuplicateKey when the
	// key is taken.
	CreateLicense(ctx context.Context, l *License) error

	// CreateLicenseWithinSeatLimit inserts a license only if fewer than
	// limit seat-holding licenses exist on its plan, as a single atomic
	// step. It returns ErrSeatsExhausted when the plan is full.
	CreateLicenseWithinSeatLimit(ctx context.Context, l *License, limit int64) error

	// CountSeats returns the number of seat-holding licenses on a plan.
	CountSeats(ctx context.Context, planID string) (int64, error)
}

// CustomerStore is the customer lookup used by the allocator.
type CustomerStore interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}
