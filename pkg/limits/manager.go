package limits

import (
	"context"
	"log/slog"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits/ratelimit"
	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/telemetry/logging"
	"chatello/gateway/pkg/telemetry/metrics"
)

// Manager coordinates usage aggregation, limit evaluation, and in-flight
// reservations for licenses.
//
// Check is read-only and serves reporting endpoints. Admit is used before a
// metered call: it evaluates with the license's in-flight requests counted
// and, when the request passes, hands back a slot. The caller settles the
// slot with Record once the call succeeds, or releases it when the call is
// abandoned.
//
// # Example
//
//	manager := limits.NewManager(store, collector, logger)
//
//	admission, err := manager.Admit(ctx, license.ID, plan, time.Now())
//	if err != nil {
//	    return err
//	}
//	if !admission.Evaluation.Allowed() {
//	    // reject with admission.Evaluation.Blocking
//	}
//	defer admission.Slot.Release()
//	// ... call the provider ...
//	err = manager.Record(ctx, admission.Slot, rec)
type Manager struct {
	ledger       storage.Ledger
	aggregator   *Aggregator
	reservations *ratelimit.Reservations
	collector    *metrics.Collector
	logger       *slog.Logger
}

// Admission is the outcome of Manager.Admit.
type Admission struct {
	Stats      *UsageStats
	Evaluation *Evaluation

	// Slot is held by an allowed request until its usage is recorded. It
	// is nil when the request is blocked.
	Slot *ratelimit.Slot
}

// NewManager creates a limits manager over ledger. collector may be nil.
func NewManager(ledger storage.Ledger, collector *metrics.Collector, logger *slog.Logger) *Manager {
	return &Manager{
		ledger:       ledger,
		aggregator:   NewAggregator(ledger),
		reservations: ratelimit.NewReservations(),
		collector:    collector,
		logger:       logging.OrDefault(logger),
	}
}

// Aggregator returns the aggregator backing the manager.
func (m *Manager) Aggregator() *Aggregator {
	return m.aggregator
}

// Check evaluates the limits of licenseID as of asOf without reserving.
func (m *Manager) Check(ctx context.Context, licenseID string, plan *licensing.Plan, asOf time.Time) (*UsageStats, *Evaluation, error) {
	stats, err := m.aggregator.UsageStats(ctx, licenseID, plan, asOf)
	if err != nil {
		return nil, nil, err
	}
	return stats, Evaluate(plan, stats, asOf), nil
}

// Admit evaluates the limits of licenseID with requests already admitted by
// this process counted, and reserves a slot when every limit passes.
// Admissions for the same license are serialized.
func (m *Manager) Admit(ctx context.Context, licenseID string, plan *licensing.Plan, asOf time.Time) (*Admission, error) {
	guard := m.reservations.Lock(licenseID)
	defer guard.Unlock()

	stats, err := m.aggregator.UsageStats(ctx, licenseID, plan, asOf)
	if err != nil {
		return nil, err
	}

	inflight := guard.InFlight()
	ev := Evaluate(plan, withInFlight(stats, inflight), asOf)

	adm := &Admission{Stats: stats, Evaluation: ev}
	if !ev.Allowed() {
		for _, d := range ev.Blocking {
			m.collector.RecordLimitRejection(string(d))
		}
		m.logger.Info("request blocked by limits",
			"license_id", licenseID,
			"plan", plan.Name,
			"blocking", ev.Blocking,
			"in_flight", inflight,
		)
		return adm, nil
	}

	adm.Slot = guard.Reserve()
	m.logger.Debug("request admitted",
		"license_id", licenseID,
		"plan", plan.Name,
		"monthly_requests", stats.CurrentMonth.Requests,
		"in_flight", inflight,
	)
	return adm, nil
}

// Record appends rec and releases slot as one step under the license's
// admission lock, so a concurrent Admit never counts the request twice.
// The slot is released even when the append fails.
func (m *Manager) Record(ctx context.Context, slot *ratelimit.Slot, rec *licensing.UsageRecord) error {
	return slot.Settle(func() error {
		return m.ledger.AppendUsage(ctx, rec)
	})
}

// InFlight returns the number of admitted, unrecorded requests of licenseID.
func (m *Manager) InFlight(licenseID string) int64 {
	return m.reservations.InFlight(licenseID)
}
