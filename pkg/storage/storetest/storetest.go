// Package storetest holds a conformance suite run against every
// storage.Store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"Plans", testPlans},
		{"Customers", testCustomers},
		{"Licenses", testLicenses},
		{"SeatLimitConcurrent", testSeatLimitConcurrent},
		{"SeatReleasedOnCancel", testSeatReleasedOnCancel},
		{"StatusCompareAndSet", testStatusCompareAndSet},
		{"LedgerRanges", testLedgerRanges},
		{"LedgerListAndPatch", testLedgerListAndPatch},
		{"DailyUsage", testDailyUsage},
		{"PruneAndCounts", testPruneAndCounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

// Seed inserts a customer and a plan and returns them.
func Seed(t *testing.T, s storage.Store, plan *licensing.Plan) (*licensing.Customer, *licensing.Plan) {
	t.Helper()
	ctx := context.Background()

	c := &licensing.Customer{Email: fmt.Sprintf("%s@example.com", plan.Name), Name: "Test", Status: "active"}
	if err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := s.UpsertPlan(ctx, plan); err != nil {
		t.Fatalf("UpsertPlan failed: %v", err)
	}
	return c, plan
}

func newLicense(c *licensing.Customer, p *licensing.Plan, key string) *licensing.License {
	now := time.Now().UTC()
	return &licensing.License{
		Key:         key,
		CustomerID:  c.ID,
		PlanID:      p.ID,
		Status:      licensing.StatusActive,
		ActivatedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testPlans(t *testing.T, s storage.Store) {
	ctx := context.Background()

	pro := &licensing.Plan{
		Name:                "pro",
		DisplayName:         "Pro",
		Price:               7.99,
		MonthlyRequestLimit: 1000,
		RequestsPerMinute:   10,
		MonthlyBudget:       4.0,
		CostPer1KTokens:     0.0015,
		Features:            []licensing.Feature{licensing.FeatureAIIncluded},
		Metadata:            map[string]string{"badge": "x"},
		IsActive:            true,
	}
	if err := s.UpsertPlan(ctx, pro); err != nil {
		t.Fatalf("UpsertPlan failed: %v", err)
	}
	if pro.ID == "" {
		t.Fatal("Expected plan ID to be assigned")
	}
	if err := s.UpsertPlan(ctx, &licensing.Plan{Name: "starter", Price: 2.99}); err != nil {
		t.Fatalf("UpsertPlan failed: %v", err)
	}

	got, err := s.GetPlan(ctx, pro.ID)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if got.Name != "pro" || got.MonthlyRequestLimit != 1000 || got.CostPer1KTokens != 0.0015 {
		t.Errorf("Unexpected plan: %+v", got)
	}
	if !got.HasFeature(licensing.FeatureAIIncluded) {
		t.Error("Expected ai_included feature to round-trip")
	}
	if got.Metadata["badge"] != "x" {
		t.Errorf("Expected metadata badge x, got %q", got.Metadata["badge"])
	}

	// Upsert by name keeps the ID.
	update := &licensing.Plan{Name: "pro", Price: 8.99, MonthlyRequestLimit: 1500}
	if err := s.UpsertPlan(ctx, update); err != nil {
		t.Fatalf("UpsertPlan update failed: %v", err)
	}
	if update.ID != pro.ID {
		t.Errorf("Expected upsert to keep ID %s, got %s", pro.ID, update.ID)
	}
	got, err = s.GetPlanByName(ctx, "pro")
	if err != nil {
		t.Fatalf("GetPlanByName failed: %v", err)
	}
	if got.MonthlyRequestLimit != 1500 {
		t.Errorf("Expected updated limit 1500, got %d", got.MonthlyRequestLimit)
	}

	plans, err := s.ListPlans(ctx)
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}
	if len(plans) != 2 || plans[0].Name != "starter" {
		t.Errorf("Expected 2 plans ordered by price, got %d", len(plans))
	}

	if _, err := s.GetPlan(ctx, "missing"); !errors.Is(err, licensing.ErrPlanNotFound) {
		t.Errorf("Expected ErrPlanNotFound, got %v", err)
	}
	if _, err := s.GetPlanByName(ctx, "missing"); !errors.Is(err, licensing.ErrPlanNotFound) {
		t.Errorf("Expected ErrPlanNotFound, got %v", err)
	}
}

func testCustomers(t *testing.T, s storage.Store) {
	ctx := context.Background()

	c := &licensing.Customer{Email: "jane@example.com", Name: "Jane", Company: "Acme", Status: "active"}
	if err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if c.ID == "" {
		t.Fatal("Expected customer ID to be assigned")
	}

	dup := &licensing.Customer{Email: "JANE@example.com"}
	if err := s.CreateCustomer(ctx, dup); !errors.Is(err, licensing.ErrCustomerExists) {
		t.Errorf("Expected ErrCustomerExists, got %v", err)
	}

	got, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if got.Email != "jane@example.com" || got.Company != "Acme" {
		t.Errorf("Unexpected customer: %+v", got)
	}

	got, err = s.GetCustomerByEmail(ctx, "jane@example.com")
	if err != nil {
		t.Fatalf("GetCustomerByEmail failed: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("Expected customer %s, got %s", c.ID, got.ID)
	}

	if _, err := s.GetCustomer(ctx, "missing"); !errors.Is(err, licensing.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}
}

func testLicenses(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c, p := Seed(t, s, &licensing.Plan{Name: "pro", Price: 7.99})

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLicense(c, p, "CHA-00000001-00000002-00000003-00000004")
	l.ExpiresAt = &expires
	l.Domain = "example.com"
	if err := s.CreateLicense(ctx, l); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}

	dup := newLicense(c, p, l.Key)
	if err := s.CreateLicense(ctx, dup); !errors.Is(err, licensing.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := s.GetLicenseByKey(ctx, l.Key)
	if err != nil {
		t.Fatalf("GetLicenseByKey failed: %v", err)
	}
	if got.ID != l.ID || got.Domain != "example.com" || got.Status != licensing.StatusActive {
		t.Errorf("Unexpected license: %+v", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Errorf("Expected expiry %v, got %v", expires, got.ExpiresAt)
	}
	if got.LastCheck != nil {
		t.Errorf("Expected no last check, got %v", got.LastCheck)
	}

	checked := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := s.TouchLastCheck(ctx, l.ID, checked); err != nil {
		t.Fatalf("TouchLastCheck failed: %v", err)
	}
	if err := s.UpdateLicenseStatus(ctx, l.ID, licensing.StatusActive, licensing.StatusSuspended, checked); err != nil {
		t.Fatalf("UpdateLicenseStatus failed: %v", err)
	}
	got, err = s.GetLicense(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLicense failed: %v", err)
	}
	if got.Status != licensing.StatusSuspended {
		t.Errorf("Expected suspended, got %s", got.Status)
	}
	if got.LastCheck == nil || !got.LastCheck.Equal(checked) {
		t.Errorf("Expected last check %v, got %v", checked, got.LastCheck)
	}

	if err := s.UpdateLicenseStatus(ctx, "missing", licensing.StatusSuspended, licensing.StatusActive, checked); !errors.Is(err, licensing.ErrInvalidLicense) {
		t.Errorf("Expected ErrInvalidLicense, got %v", err)
	}
	if _, err := s.GetLicenseByKey(ctx, "CHA-MISSING"); !errors.Is(err, licensing.ErrInvalidLicense) {
		t.Errorf("Expected ErrInvalidLicense, got %v", err)
	}

	second := newLicense(c, p, "CHA-00000005-00000006-00000007-00000008")
	if err := s.CreateLicense(ctx, second); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}
	active, err := s.ListLicenses(ctx, storage.LicenseFilter{Status: licensing.StatusActive})
	if err != nil {
		t.Fatalf("ListLicenses failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != second.ID {
		t.Errorf("Expected only the second license to be active, got %d", len(active))
	}
	all, err := s.ListLicenses(ctx, storage.LicenseFilter{PlanID: p.ID})
	if err != nil {
		t.Fatalf("ListLicenses failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 licenses on plan, got %d", len(all))
	}
}

func testSeatLimitConcurrent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const limit = 5
	const attempts = 40
	c, p := Seed(t, s, &licensing.Plan{Name: "founders", Price: 29, IsLifetime: true, LifetimeSeatLimit: limit})

	var ok, soldOut atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := newLicense(c, p, fmt.Sprintf("CHA-%08X-00000000-00000000-00000000", i))
			err := s.CreateLicenseWithinSeatLimit(ctx, l, limit)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, licensing.ErrSeatsExhausted):
				soldOut.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != limit {
		t.Errorf("Expected %d allocations, got %d", limit, ok.Load())
	}
	if soldOut.Load() != attempts-limit {
		t.Errorf("Expected %d sold out, got %d", attempts-limit, soldOut.Load())
	}

	n, err := s.CountSeats(ctx, p.ID)
	if err != nil {
		t.Fatalf("CountSeats failed: %v", err)
	}
	if n != limit {
		t.Errorf("Expected %d seats, got %d", limit, n)
	}
}

func testSeatReleasedOnCancel(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c, p := Seed(t, s, &licensing.Plan{Name: "founders", IsLifetime: true, LifetimeSeatLimit: 1})

	first := newLicense(c, p, "CHA-00000001-00000000-00000000-00000000")
	if err := s.CreateLicenseWithinSeatLimit(ctx, first, 1); err != nil {
		t.Fatalf("CreateLicenseWithinSeatLimit failed: %v", err)
	}
	second := newLicense(c, p, "CHA-00000002-00000000-00000000-00000000")
	if err := s.CreateLicenseWithinSeatLimit(ctx, second, 1); !errors.Is(err, licensing.ErrSeatsExhausted) {
		t.Fatalf("Expected ErrSeatsExhausted, got %v", err)
	}

	// Suspended licenses still hold their seat.
	if err := s.UpdateLicenseStatus(ctx, first.ID, licensing.StatusActive, licensing.StatusSuspended, time.Now()); err != nil {
		t.Fatalf("UpdateLicenseStatus failed: %v", err)
	}
	if err := s.CreateLicenseWithinSeatLimit(ctx, second, 1); !errors.Is(err, licensing.ErrSeatsExhausted) {
		t.Fatalf("Expected ErrSeatsExhausted while suspended, got %v", err)
	}

	if err := s.UpdateLicenseStatus(ctx, first.ID, licensing.StatusSuspended, licensing.StatusCancelled, time.Now()); err != nil {
		t.Fatalf("UpdateLicenseStatus failed: %v", err)
	}
	if err := s.CreateLicenseWithinSeatLimit(ctx, second, 1); err != nil {
		t.Fatalf("Expected seat after cancel, got %v", err)
	}
	if n, _ := s.CountSeats(ctx, p.ID); n != 1 {
		t.Errorf("Expected 1 seat held, got %d", n)
	}
}

func testStatusCompareAndSet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c, p := Seed(t, s, &licensing.Plan{Name: "founders", IsLifetime: true, LifetimeSeatLimit: 1})

	first := newLicense(c, p, "CHA-0000000A-00000000-00000000-00000000")
	if err := s.CreateLicenseWithinSeatLimit(ctx, first, 1); err != nil {
		t.Fatalf("CreateLicenseWithinSeatLimit failed: %v", err)
	}
	if err := s.UpdateLicenseStatus(ctx, first.ID, licensing.StatusActive, licensing.StatusCancelled, time.Now()); err != nil {
		t.Fatalf("UpdateLicenseStatus failed: %v", err)
	}
	second := newLicense(c, p, "CHA-0000000B-00000000-00000000-00000000")
	if err := s.CreateLicenseWithinSeatLimit(ctx, second, 1); err != nil {
		t.Fatalf("Expected the freed seat to be sold, got %v", err)
	}

	// A stale writer that still believes first is active must not revive it.
	tests := []struct {
		name string
		to   licensing.Status
	}{
		{"expiry flip", licensing.StatusExpired},
		{"admin suspend", licensing.StatusSuspended},
		{"admin reactivate", licensing.StatusActive},
	}
	for _, tt := range tests {
		err := s.UpdateLicenseStatus(ctx, first.ID, licensing.StatusActive, tt.to, time.Now())
		if !errors.Is(err, licensing.ErrStatusConflict) {
			t.Errorf("%s: Expected ErrStatusConflict, got %v", tt.name, err)
		}
	}

	got, err := s.GetLicense(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetLicense failed: %v", err)
	}
	if got.Status != licensing.StatusCancelled {
		t.Errorf("Expected cancelled to stick, got %s", got.Status)
	}
	if n, _ := s.CountSeats(ctx, p.ID); n != 1 {
		t.Errorf("Expected 1 seat held, got %d", n)
	}
}

func appendAt(t *testing.T, s storage.Store, licenseID, provider string, at time.Time, tokens, latency int64) *licensing.UsageRecord {
	t.Helper()
	rec := &licensing.UsageRecord{
		LicenseID:      licenseID,
		Endpoint:       "/api/chat/" + provider,
		Provider:       provider,
		Model:          "m",
		TokensUsed:     tokens,
		ResponseTimeMS: latency,
		CreatedAt:      at,
	}
	if err := s.AppendUsage(context.Background(), rec); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}
	return rec
}

func testLedgerRanges(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	appendAt(t, s, "lic-a", "openai", base, 100, 200)
	appendAt(t, s, "lic-a", "openai", base.Add(30*time.Second), 300, 400)
	appendAt(t, s, "lic-a", "anthropic", base.Add(time.Minute), 600, 600)
	appendAt(t, s, "lic-b", "openai", base, 1000, 1000)

	n, err := s.CountRequests(ctx, "lic-a", storage.TimeRange{From: base, To: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("CountRequests failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 requests with inclusive bounds, got %d", n)
	}

	n, _ = s.CountRequests(ctx, "lic-a", storage.TimeRange{From: base.Add(time.Millisecond)})
	if n != 2 {
		t.Errorf("Expected 2 requests after base, got %d", n)
	}

	totals, err := s.SumUsage(ctx, "lic-a", storage.TimeRange{})
	if err != nil {
		t.Fatalf("SumUsage failed: %v", err)
	}
	if totals.Requests != 3 || totals.Tokens != 1000 || totals.AvgResponseTimeMS != 400 {
		t.Errorf("Unexpected totals: %+v", totals)
	}

	empty, err := s.SumUsage(ctx, "lic-none", storage.TimeRange{})
	if err != nil {
		t.Fatalf("SumUsage failed: %v", err)
	}
	if empty.Requests != 0 || empty.Tokens != 0 || empty.AvgResponseTimeMS != 0 {
		t.Errorf("Expected zero totals, got %+v", empty)
	}

	all, err := s.SumUsageAll(ctx, storage.TimeRange{From: base, To: base})
	if err != nil {
		t.Fatalf("SumUsageAll failed: %v", err)
	}
	if all.Requests != 2 || all.Tokens != 1100 {
		t.Errorf("Unexpected totals across licenses: %+v", all)
	}
}

func testLedgerListAndPatch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	var last *licensing.UsageRecord
	for i := 0; i < 5; i++ {
		provider := "openai"
		if i%2 == 1 {
			provider = "deepseek"
		}
		last = appendAt(t, s, "lic-a", provider, base.Add(time.Duration(i)*time.Second), int64(i), 10)
	}

	recs, err := s.ListUsage(ctx, storage.UsageQuery{LicenseID: "lic-a", Limit: 3})
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	if recs[0].ID != last.ID {
		t.Errorf("Expected newest record first")
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.After(recs[i-1].CreatedAt) {
			t.Errorf("Expected descending order at %d", i)
		}
	}

	ds, err := s.ListUsage(ctx, storage.UsageQuery{LicenseID: "lic-a", Provider: "deepseek"})
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(ds) != 2 {
		t.Errorf("Expected 2 deepseek records, got %d", len(ds))
	}

	if err := s.PatchTokens(ctx, last.ID, 999, true); err != nil {
		t.Fatalf("PatchTokens failed: %v", err)
	}
	recs, _ = s.ListUsage(ctx, storage.UsageQuery{LicenseID: "lic-a", Limit: 1})
	if recs[0].TokensUsed != 999 || !recs[0].Estimated {
		t.Errorf("Expected patched tokens 999 estimated, got %d %v", recs[0].TokensUsed, recs[0].Estimated)
	}
	if err := s.PatchTokens(ctx, "missing", 1, false); !errors.Is(err, licensing.ErrUsageNotFound) {
		t.Errorf("Expected ErrUsageNotFound, got %v", err)
	}
}

func testDailyUsage(t *testing.T, s storage.Store) {
	ctx := context.Background()
	day1 := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)

	appendAt(t, s, "lic-a", "openai", day1, 100, 100)
	appendAt(t, s, "lic-a", "openai", day1.Add(time.Hour), 200, 300)
	appendAt(t, s, "lic-a", "anthropic", day2, 50, 50)
	appendAt(t, s, "lic-a", "openai", day3, 10, 20)
	appendAt(t, s, "lic-a", "deepseek", day3.Add(time.Minute), 20, 40)
	appendAt(t, s, "lic-b", "openai", day3, 1, 1)

	buckets, err := s.DailyUsage(ctx, "lic-a", storage.TimeRange{From: day1.Add(-time.Hour)}, "")
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}

	want := []storage.DailyBucket{
		{Date: "2025-03-10", Provider: "deepseek", Requests: 1, Tokens: 20, AvgResponseTimeMS: 40},
		{Date: "2025-03-10", Provider: "openai", Requests: 1, Tokens: 10, AvgResponseTimeMS: 20},
		{Date: "2025-03-09", Provider: "anthropic", Requests: 1, Tokens: 50, AvgResponseTimeMS: 50},
		{Date: "2025-03-08", Provider: "openai", Requests: 2, Tokens: 300, AvgResponseTimeMS: 200},
	}
	if len(buckets) != len(want) {
		t.Fatalf("Expected %d buckets, got %d: %+v", len(want), len(buckets), buckets)
	}
	for i := range want {
		if buckets[i] != want[i] {
			t.Errorf("Bucket %d: expected %+v, got %+v", i, want[i], buckets[i])
		}
	}

	openai, err := s.DailyUsage(ctx, "lic-a", storage.TimeRange{}, "openai")
	if err != nil {
		t.Fatalf("DailyUsage failed: %v", err)
	}
	if len(openai) != 2 {
		t.Errorf("Expected 2 openai buckets, got %d", len(openai))
	}
}

func testPruneAndCounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c, p := Seed(t, s, &licensing.Plan{Name: "pro"})
	if err := s.CreateLicense(ctx, newLicense(c, p, "CHA-0000000A-00000000-00000000-00000000")); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}

	old := time.Now().UTC().AddDate(0, 0, -100)
	appendAt(t, s, "lic-a", "openai", old, 1, 1)
	appendAt(t, s, "lic-a", "openai", time.Now().UTC(), 1, 1)

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	want := storage.Counts{Plans: 1, Customers: 1, Licenses: 1, ActiveLicenses: 1, UsageRecords: 2}
	if counts != want {
		t.Errorf("Expected counts %+v, got %+v", want, counts)
	}

	n, err := s.PruneUsage(ctx, time.Now().UTC().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("PruneUsage failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned record, got %d", n)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
