package licensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatello/gateway/pkg/telemetry/logging"
	"chatello/gateway/pkg/telemetry/metrics"

	"github.com/google/uuid"
)

// maxKeyAttempts bounds key generation retries on collision.
const maxKeyAttempts = 10

// AllocateRequest describes a license to issue.
type AllocateRequest struct {
	CustomerID string
	PlanName   string
	Domain     string
	ExpiresAt  *time.Time
	Metadata   map[string]string
}

// SeatUsage reports allocation on a seat-limited plan.
type SeatUsage struct {
	Sold      int64 `json:"sold"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// Allocator issues licenses.
type Allocator struct {
	licenses  LicenseStore
	plans     PlanStore
	customers CustomerStore
	prefix    string
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewAllocator creates an allocator generating keys with the given prefix.
func NewAllocator(licenses LicenseStore, plans PlanStore, customers CustomerStore, prefix string, logger *slog.Logger, collector *metrics.Collector) *Allocator {
	return &Allocator{
		licenses:  licenses,
		plans:     plans,
		customers: customers,
		prefix:    prefix,
		logger:    logging.OrDefault(logger),
		metrics:   collector,
		now:       time.Now,
	}
}

// Allocate creates a new active license for a customer on a named plan.
//
// On seat-limited plans the store inserts the license only while seats
// remain, in one atomic step, so concurrent allocations can never exceed
// the limit. Allocation fails with ErrSeatsExhausted once the plan is full.
func (a *Allocator) Allocate(ctx context.Context, req AllocateRequest) (*License, error) {
	if _, err := a.customers.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	plan, err := a.plans.GetPlanByName(ctx, req.PlanName)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	l := &License{
		CustomerID:  req.CustomerID,
		PlanID:      plan.ID,
		Domain:      req.Domain,
		Status:      StatusActive,
		ActivatedAt: now,
		ExpiresAt:   req.ExpiresAt,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if plan.IsLifetime {
		l.ExpiresAt = nil
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := GenerateKey(a.prefix)
		if err != nil {
			return nil, err
		}
		l.ID = uuid.NewString()
		l.Key = key

		if plan.SeatLimited() {
			err = a.licenses.CreateLicenseWithinSeatLimit(ctx, l, plan.LifetimeSeatLimit)
		} else {
			err = a.licenses.CreateLicense(ctx, l)
		}

		switch {
		case err == nil:
			a.metrics.RecordAllocation(plan.Name, "ok")
			a.logger.InfoContext(ctx, "license allocated",
				"license_id", l.ID,
				"plan", plan.Name,
				"customer_id", l.CustomerID,
			)
			return l, nil
		case errors.Is(err, ErrDuplicateKey):
			continue
		case errors.Is(err, ErrSeatsExhausted):
			a.metrics.RecordAllocation(plan.Name, "sold_out")
			return nil, err
		default:
			a.metrics.RecordAllocation(plan.Name, "error")
			return nil, fmt.Errorf("failed to create license: %w", err)
		}
	}

	a.metrics.RecordAllocation(plan.Name, "error")
	return nil, ErrKeyGeneration
}

// Seats reports allocation on a seat-limited plan. Plans without a seat
// limit report a zero Limit and Remaining of -1.
func (a *Allocator) Seats(ctx context.Context, plan *Plan) (SeatUsage, error) {
	sold, err := a.licenses.CountSeats(ctx, plan.ID)
	if err != nil {
		return SeatUsage{}, err
	}
	if !plan.SeatLimited() {
		return SeatUsage{Sold: sold, Remaining: -1}, nil
	}
	remaining := plan.LifetimeSeatLimit - sold
	if remaining < 0 {
		remaining = 0
	}
	return SeatUsage{Sold: sold, Limit: plan.LifetimeSeatLimit, Remaining: remaining}, nil
}
