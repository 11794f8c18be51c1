package limits

import (
	"context"
	"testing"
	"time"

	"chatello/gateway/pkg/storage"
)

func TestClampHistoryDays(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 30},
		{-5, 30},
		{7, 7},
		{90, 90},
		{365, 90},
	}
	for _, tt := range tests {
		if got := ClampHistoryDays(tt.in); got != tt.want {
			t.Errorf("ClampHistoryDays(%d): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestAggregator_HistoryGroupsThreeDays(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewAggregator(store)
	day1 := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)

	record(t, store, "lic-1", "openai", 100, 100, day1)
	record(t, store, "lic-1", "openai", 50, 300, day1.Add(time.Hour))
	record(t, store, "lic-1", "anthropic", 20, 600, day1.Add(2*time.Hour))
	record(t, store, "lic-1", "deepseek", 70, 250, day2)
	record(t, store, "lic-1", "openai", 10, 90, day3)
	// Another license and an out-of-range record must not appear.
	record(t, store, "lic-2", "openai", 999, 1, day2)
	record(t, store, "lic-1", "openai", 999, 1, day1.AddDate(0, 0, -40))

	asOf := day3.Add(time.Hour)
	h, err := agg.History(context.Background(), "lic-1", HistoryQuery{Days: 30}, asOf)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(h.DailyUsage) != 3 {
		t.Fatalf("Expected 3 days, got %d", len(h.DailyUsage))
	}
	wantDates := []string{"2026-03-10", "2026-03-09", "2026-03-08"}
	for i, d := range h.DailyUsage {
		if d.Date != wantDates[i] {
			t.Errorf("Day %d: expected %s, got %s", i, wantDates[i], d.Date)
		}
	}

	first := h.DailyUsage[2]
	if first.TotalRequests != 3 || first.TotalTokens != 170 {
		t.Errorf("Expected 3 requests and 170 tokens on day 1, got %d and %d", first.TotalRequests, first.TotalTokens)
	}
	if first.AvgResponseTime != 333.33 {
		t.Errorf("Expected weighted average 333.33, got %v", first.AvgResponseTime)
	}
	openai := first.ByProvider["openai"]
	if openai.Requests != 2 || openai.Tokens != 150 || openai.AvgResponseTime != 200 {
		t.Errorf("Unexpected openai bucket: %+v", openai)
	}
	if len(first.ByProvider) != 2 {
		t.Errorf("Expected 2 providers on day 1, got %d", len(first.ByProvider))
	}

	if len(h.RecentRequests) != 5 {
		t.Errorf("Expected 5 recent requests, got %d", len(h.RecentRequests))
	}
	if !h.RecentRequests[0].Timestamp.Equal(day3) {
		t.Errorf("Expected newest request first, got %v", h.RecentRequests[0].Timestamp)
	}

	if h.Summary.TotalRequests != 5 || h.Summary.TotalTokens != 250 {
		t.Errorf("Unexpected summary totals: %+v", h.Summary)
	}
	if h.Summary.DaysWithUsage != 3 || h.Summary.AvgRequestsPerDay != 1.67 {
		t.Errorf("Unexpected summary days: %+v", h.Summary)
	}
	if h.Period.Days != 30 || !h.Period.End.Equal(asOf) {
		t.Errorf("Unexpected period: %+v", h.Period)
	}
}

func TestAggregator_HistoryProviderFilter(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewAggregator(store)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, store, "lic-1", "openai", 10, 100, now.Add(-time.Hour))
	record(t, store, "lic-1", "deepseek", 20, 100, now.Add(-2*time.Hour))

	h, err := agg.History(context.Background(), "lic-1", HistoryQuery{Days: 7, Provider: "deepseek"}, now)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if h.Summary.TotalRequests != 1 || h.Summary.TotalTokens != 20 {
		t.Errorf("Expected only deepseek usage, got %+v", h.Summary)
	}
	if len(h.RecentRequests) != 1 || h.RecentRequests[0].Provider != "deepseek" {
		t.Errorf("Expected one deepseek record, got %+v", h.RecentRequests)
	}
}

func TestAggregator_HistoryEmpty(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryStore())

	h, err := agg.History(context.Background(), "lic-1", HistoryQuery{}, time.Now())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if h.DailyUsage == nil || h.RecentRequests == nil {
		t.Error("Expected empty, non-nil slices")
	}
	if h.Summary.AvgRequestsPerDay != 0 {
		t.Errorf("Expected 0 average, got %v", h.Summary.AvgRequestsPerDay)
	}
	if h.Period.Days != DefaultHistoryDays {
		t.Errorf("Expected default %d days, got %d", DefaultHistoryDays, h.Period.Days)
	}
}

func TestAggregator_UsageStats(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewAggregator(store)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	plan := testPlan()

	record(t, store, "lic-1", "openai", 1500, 100, now.Add(-30*time.Second))
	record(t, store, "lic-1", "openai", 500, 300, now.Add(-30*time.Minute))
	record(t, store, "lic-1", "openai", 1000, 200, now.AddDate(0, 0, -5))
	// Previous month.
	record(t, store, "lic-1", "openai", 1000, 200, time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC))

	stats, err := agg.UsageStats(context.Background(), "lic-1", plan, now)
	if err != nil {
		t.Fatalf("UsageStats failed: %v", err)
	}

	if stats.CurrentMonth.Requests != 3 || stats.CurrentMonth.Tokens != 3000 {
		t.Errorf("Unexpected month usage: %+v", stats.CurrentMonth)
	}
	if stats.CurrentMonth.Cost != 0.006 {
		t.Errorf("Expected cost 0.006, got %v", stats.CurrentMonth.Cost)
	}
	if stats.CurrentMonth.AvgResponseTimeMS != 200 {
		t.Errorf("Expected avg 200ms, got %v", stats.CurrentMonth.AvgResponseTimeMS)
	}
	if stats.CurrentMinute.Requests != 1 || stats.CurrentHour.Requests != 2 {
		t.Errorf("Expected 1/2 windowed requests, got %d/%d", stats.CurrentMinute.Requests, stats.CurrentHour.Requests)
	}
	if stats.Percentages.Requests != 30 {
		t.Errorf("Expected 30%% of requests, got %v", stats.Percentages.Requests)
	}
	if stats.Percentages.Budget != 60 {
		t.Errorf("Expected 60%% of budget, got %v", stats.Percentages.Budget)
	}
	if !stats.Period.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected period start %v", stats.Period.Start)
	}
	if stats.Limits.MonthlyRequests != 10 || stats.Plan != "pro" {
		t.Errorf("Unexpected limits echo: %+v", stats.Limits)
	}
}
