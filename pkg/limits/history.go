package limits

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"chatello/gateway/pkg/limits/budget"
	"chatello/gateway/pkg/limits/window"
	"chatello/gateway/pkg/storage"
)

// History window bounds.
const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 90
	RecentRequestLimit = 50
)

// ClampHistoryDays maps a requested day count onto the supported range.
// Non-positive values select the default.
func ClampHistoryDays(days int) int {
	if days <= 0 {
		return DefaultHistoryDays
	}
	if days > MaxHistoryDays {
		return MaxHistoryDays
	}
	return days
}

// HistoryQuery selects a usage history.
type HistoryQuery struct {
	Days int
	// Provider filters by provider name when non-empty.
	Provider string
}

// HistoryPeriod is the interval a history covers.
type HistoryPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// ProviderUsage is one provider's share of a day.
type ProviderUsage struct {
	Requests        int64   `json:"requests"`
	Tokens          int64   `json:"tokens"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// DayUsage is the usage of one UTC day.
type DayUsage struct {
	Date            string                   `json:"date"`
	TotalRequests   int64                    `json:"total_requests"`
	TotalTokens     int64                    `json:"total_tokens"`
	AvgResponseTime float64                  `json:"avg_response_time"`
	ByProvider      map[string]ProviderUsage `json:"by_provider"`
}

// RecentRequest is one ledger record as shown in a history.
type RecentRequest struct {
	Timestamp      time.Time `json:"timestamp"`
	Endpoint       string    `json:"endpoint"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Tokens         int64     `json:"tokens"`
	Estimated      bool      `json:"estimated,omitempty"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// HistorySummary totals a history.
type HistorySummary struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalTokens       int64   `json:"total_tokens"`
	DaysWithUsage     int     `json:"days_with_usage"`
	AvgRequestsPerDay float64 `json:"avg_requests_per_day"`
}

// History is a per-day breakdown of a license's usage.
type History struct {
	Period         HistoryPeriod   `json:"period"`
	Provider       string          `json:"provider,omitempty"`
	DailyUsage     []DayUsage      `json:"daily_usage"`
	RecentRequests []RecentRequest `json:"recent_requests"`
	Summary        HistorySummary  `json:"summary"`
}

// History returns the usage of licenseID over the q.Days days before asOf,
// grouped by UTC day (newest first) and provider, together with the most
// recent requests.
func (a *Aggregator) History(ctx context.Context, licenseID string, q HistoryQuery, asOf time.Time) (*History, error) {
	days := ClampHistoryDays(q.Days)
	from, to := window.Since(asOf, days)
	r := storage.TimeRange{From: from, To: to}

	var (
		buckets []storage.DailyBucket
		recent  []RecentRequest
		g, gctx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		buckets, err = a.ledger.DailyUsage(gctx, licenseID, r, q.Provider)
		if err != nil {
			return fmt.Errorf("failed to group daily usage: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		records, err := a.ledger.ListUsage(gctx, storage.UsageQuery{
			LicenseID: licenseID,
			Range:     r,
			Provider:  q.Provider,
			Limit:     RecentRequestLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list recent usage: %w", err)
		}
		recent = make([]RecentRequest, 0, len(records))
		for _, rec := range records {
			recent = append(recent, RecentRequest{
				Timestamp:      rec.CreatedAt,
				Endpoint:       rec.Endpoint,
				Provider:       rec.Provider,
				Model:          rec.Model,
				Tokens:         rec.TokensUsed,
				Estimated:      rec.Estimated,
				ResponseTimeMS: rec.ResponseTimeMS,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	daily := groupDays(buckets)
	h := &History{
		Period:         HistoryPeriod{Start: from, End: to, Days: days},
		Provider:       q.Provider,
		DailyUsage:     daily,
		RecentRequests: recent,
	}
	for _, d := range daily {
		h.Summary.TotalRequests += d.TotalRequests
		h.Summary.TotalTokens += d.TotalTokens
	}
	h.Summary.DaysWithUsage = len(daily)
	h.Summary.AvgRequestsPerDay = budget.Round(float64(h.Summary.TotalRequests)/float64(max(len(daily), 1)), 2)
	return h, nil
}

// groupDays folds provider buckets into days, keeping the bucket order.
// A day's average latency is the request-weighted mean of its providers.
func groupDays(buckets []storage.DailyBucket) []DayUsage {
	days := []DayUsage{}
	weighted := map[string]float64{}
	index := map[string]int{}

	for _, b := range buckets {
		i, ok := index[b.Date]
		if !ok {
			i = len(days)
			index[b.Date] = i
			days = append(days, DayUsage{Date: b.Date, ByProvider: map[string]ProviderUsage{}})
		}
		d := &days[i]
		d.TotalRequests += b.Requests
		d.TotalTokens += b.Tokens
		d.ByProvider[b.Provider] = ProviderUsage{
			Requests:        b.Requests,
			Tokens:          b.Tokens,
			AvgResponseTime: budget.Round(b.AvgResponseTimeMS, 2),
		}
		weighted[b.Date] += b.AvgResponseTimeMS * float64(b.Requests)
	}

	for i := range days {
		if days[i].TotalRequests > 0 {
			days[i].AvgResponseTime = budget.Round(weighted[days[i].Date]/float64(days[i].TotalRequests), 2)
		}
	}
	return days
}
