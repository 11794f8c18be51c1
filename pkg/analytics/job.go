package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits/budget"
	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/telemetry/metrics"
)

// Source is the read side of the primary store used by the job.
// storage.Store implements it.
type Source interface {
	Counts(ctx context.Context) (storage.Counts, error)
	ListPlans(ctx context.Context) ([]*licensing.Plan, error)
	ListLicenses(ctx context.Context, f storage.LicenseFilter) ([]*licensing.License, error)
	SumUsage(ctx context.Context, licenseID string, r storage.TimeRange) (storage.UsageTotals, error)
	SumUsageAll(ctx context.Context, r storage.TimeRange) (storage.UsageTotals, error)
}

// Job computes and stores daily snapshots.
type Job struct {
	source        Source
	store         SnapshotStore
	retentionDays int
	metrics       *metrics.Collector
	logger        *slog.Logger
	now           func() time.Time
}

// NewJob creates an analytics job. retentionDays <= 0 disables pruning.
func NewJob(source Source, store SnapshotStore, retentionDays int, collector *metrics.Collector, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		source:        source,
		store:         store,
		retentionDays: retentionDays,
		metrics:       collector,
		logger:        logger.With("component", "analytics.job"),
		now:           time.Now,
	}
}

// Run computes the snapshot of day's UTC date, saves it, and prunes
// snapshots past the retention window. Counts and revenue reflect the state
// at the time of the run; usage covers the whole day.
func (j *Job) Run(ctx context.Context, day time.Time) (*DailySnapshot, error) {
	snap, err := j.Compute(ctx, day)
	if err != nil {
		j.metrics.RecordAnalyticsRun("error")
		return nil, err
	}

	if err := j.store.SaveSnapshot(ctx, snap); err != nil {
		j.metrics.RecordAnalyticsRun("error")
		return nil, fmt.Errorf("failed to save snapshot %s: %w", snap.Date, err)
	}

	if j.retentionDays > 0 {
		cutoff := DayKey(day.AddDate(0, 0, -j.retentionDays))
		deleted, err := j.store.PruneSnapshots(ctx, cutoff)
		if err != nil {
			// The snapshot is already saved; pruning catches up next run.
			j.logger.Warn("failed to prune snapshots", "before", cutoff, "error", err)
		} else if deleted > 0 {
			j.logger.Info("pruned old snapshots", "before", cutoff, "deleted_count", deleted)
		}
	}

	j.metrics.RecordAnalyticsRun("ok")
	j.logger.Info("daily analytics saved",
		"date", snap.Date,
		"total_customers", snap.TotalCustomers,
		"paying_customers", snap.PayingCustomers,
		"mrr", snap.MRR,
		"requests", snap.Requests,
	)
	return snap, nil
}

// Compute builds the snapshot of day without saving it.
func (j *Job) Compute(ctx context.Context, day time.Time) (*DailySnapshot, error) {
	start, end := dayBounds(day)
	usageRange := storage.TimeRange{From: start, To: end.Add(-time.Nanosecond)}

	counts, err := j.source.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count collections: %w", err)
	}

	plans, err := j.source.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	byID := make(map[string]*licensing.Plan, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
	}

	active, err := j.source.ListLicenses(ctx, storage.LicenseFilter{Status: licensing.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to list active licenses: %w", err)
	}

	snap := &DailySnapshot{
		Date:           DayKey(start),
		TotalCustomers: counts.Customers,
		ActiveLicenses: int64(len(active)),
		RevenueByPlan:  map[string]PlanRevenue{},
		GeneratedAt:    j.now().UTC(),
	}

	paying := map[string]struct{}{}
	for _, l := range active {
		p, ok := byID[l.PlanID]
		if !ok {
			j.logger.Warn("active license on unknown plan", "license_id", l.ID, "plan_id", l.PlanID)
			continue
		}
		rev := snap.RevenueByPlan[p.Name]
		rev.Count++
		rev.Revenue += p.Price
		snap.RevenueByPlan[p.Name] = rev

		if p.Price > 0 {
			paying[l.CustomerID] = struct{}{}
		}
		if p.IsLifetime {
			snap.OneTimeRevenue += p.Price
		} else {
			snap.MRR += p.Price
		}
	}
	snap.PayingCustomers = int64(len(paying))

	totals, err := j.source.SumUsageAll(ctx, usageRange)
	if err != nil {
		return nil, fmt.Errorf("failed to sum daily usage: %w", err)
	}
	snap.Requests = totals.Requests
	snap.Tokens = totals.Tokens

	// Cost is priced per license at its plan's rate, so only licenses whose
	// plan charges for tokens are summed individually.
	all, err := j.source.ListLicenses(ctx, storage.LicenseFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	var cost float64
	for _, l := range all {
		p, ok := byID[l.PlanID]
		if !ok || p.CostPer1KTokens <= 0 {
			continue
		}
		t, err := j.source.SumUsage(ctx, l.ID, usageRange)
		if err != nil {
			return nil, fmt.Errorf("failed to sum usage of license %s: %w", l.ID, err)
		}
		cost += budget.Cost(t.Tokens, p.CostPer1KTokens)
	}

	snap.MRR = budget.Round(snap.MRR, 2)
	snap.ARR = budget.Round(snap.MRR*12, 2)
	snap.OneTimeRevenue = budget.Round(snap.OneTimeRevenue, 2)
	snap.Cost = budget.Round(cost, budget.CostPlaces)
	for name, rev := range snap.RevenueByPlan {
		rev.Revenue = budget.Round(rev.Revenue, 2)
		snap.RevenueByPlan[name] = rev
	}
	return snap, nil
}

// Recent returns the snapshots of the days days up to and including asOf,
// newest first.
func (j *Job) Recent(ctx context.Context, days int, asOf time.Time) ([]*DailySnapshot, error) {
	if days <= 0 {
		days = 30
	}
	to := DayKey(asOf)
	from := DayKey(asOf.AddDate(0, 0, -(days - 1)))
	return j.store.ListSnapshots(ctx, from, to)
}
