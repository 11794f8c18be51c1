package limits

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits/budget"
	"chatello/gateway/pkg/limits/window"
	"chatello/gateway/pkg/storage"
)

// Aggregator rolls the usage ledger up into UsageStats.
type Aggregator struct {
	ledger storage.Ledger
}

// NewAggregator creates an aggregator reading from ledger.
func NewAggregator(ledger storage.Ledger) *Aggregator {
	return &Aggregator{ledger: ledger}
}

// UsageStats computes the usage of licenseID as of asOf: the calendar month
// so far, and the trailing minute and hour. The three ledger reads run
// concurrently against the same asOf.
func (a *Aggregator) UsageStats(ctx context.Context, licenseID string, plan *licensing.Plan, asOf time.Time) (*UsageStats, error) {
	asOf = asOf.UTC()
	monthStart, nextMonth := window.MonthBounds(asOf)
	minuteFrom, _ := window.Trailing(asOf, time.Minute)
	hourFrom, _ := window.Trailing(asOf, time.Hour)

	var (
		totals    storage.UsageTotals
		perMinute int64
		perHour   int64
		g, gctx   = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		totals, err = a.ledger.SumUsage(gctx, licenseID, storage.TimeRange{From: monthStart, To: asOf})
		if err != nil {
			return fmt.Errorf("failed to sum monthly usage: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		perMinute, err = a.ledger.CountRequests(gctx, licenseID, storage.TimeRange{From: minuteFrom, To: asOf})
		if err != nil {
			return fmt.Errorf("failed to count requests in last minute: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		perHour, err = a.ledger.CountRequests(gctx, licenseID, storage.TimeRange{From: hourFrom, To: asOf})
		if err != nil {
			return fmt.Errorf("failed to count requests in last hour: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cost := budget.Cost(totals.Tokens, plan.CostPer1KTokens)
	return &UsageStats{
		LicenseID: licenseID,
		Plan:      plan.Name,
		AsOf:      asOf,
		Period:    Period{Start: monthStart, End: nextMonth},
		CurrentMonth: MonthUsage{
			Requests:          totals.Requests,
			Tokens:            totals.Tokens,
			Cost:              budget.Round(cost, budget.CostPlaces),
			AvgResponseTimeMS: budget.Round(totals.AvgResponseTimeMS, budget.PercentagePlaces),
		},
		CurrentHour:   WindowUsage{Requests: perHour},
		CurrentMinute: WindowUsage{Requests: perMinute},
		Limits: PlanLimits{
			MonthlyRequests:   plan.MonthlyRequestLimit,
			RequestsPerMinute: plan.RequestsPerMinute,
			RequestsPerHour:   plan.RequestsPerHour,
			MonthlyBudget:     plan.MonthlyBudget,
		},
		Percentages: Percentages{
			Requests: budget.Percentage(float64(totals.Requests), float64(plan.MonthlyRequestLimit)),
			Budget:   budget.Percentage(cost, plan.MonthlyBudget),
		},
	}, nil
}

// Warnings returns the approaching-limit messages for stats.
func Warnings(stats *UsageStats) []string {
	warnings := []string{}
	if budget.Approaching(stats.Percentages.Requests) {
		warnings = append(warnings, "Monthly request limit approaching (>80%)")
	}
	if budget.Approaching(stats.Percentages.Budget) {
		warnings = append(warnings, "Monthly budget limit approaching (>80%)")
	}
	return warnings
}

// withInFlight returns a copy of stats with n pending requests added to
// every request count. Pending requests carry no cost yet.
func withInFlight(stats *UsageStats, n int64) *UsageStats {
	if n == 0 {
		return stats
	}
	cp := *stats
	cp.CurrentMonth.Requests += n
	cp.CurrentHour.Requests += n
	cp.CurrentMinute.Requests += n
	return &cp
}
