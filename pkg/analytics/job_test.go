package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"
)

type fixture struct {
	store *storage.MemoryStore
	plans map[string]*licensing.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: storage.NewMemoryStore(), plans: map[string]*licensing.Plan{}}

	for _, p := range licensing.DefaultPlans(time.Now()) {
		if err := f.store.UpsertPlan(ctx, p); err != nil {
			t.Fatalf("UpsertPlan failed: %v", err)
		}
		f.plans[p.Name] = p
	}
	return f
}

func (f *fixture) customer(t *testing.T, email string) *licensing.Customer {
	t.Helper()
	c := &licensing.Customer{Email: email, Status: "active"}
	if err := f.store.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	return c
}

func (f *fixture) license(t *testing.T, c *licensing.Customer, plan string, status licensing.Status) *licensing.License {
	t.Helper()
	key, err := licensing.GenerateKey("CHA")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	l := &licensing.License{Key: key, CustomerID: c.ID, PlanID: f.plans[plan].ID, Status: status}
	if err := f.store.CreateLicense(context.Background(), l); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}
	return l
}

func (f *fixture) usage(t *testing.T, l *licensing.License, tokens int64, at time.Time) {
	t.Helper()
	rec := &licensing.UsageRecord{LicenseID: l.ID, Provider: "openai", TokensUsed: tokens, CreatedAt: at}
	if err := f.store.AppendUsage(context.Background(), rec); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}
}

func TestJob_Compute(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	alice := f.customer(t, "alice@example.com")
	bob := f.customer(t, "bob@example.com")
	carol := f.customer(t, "carol@example.com")

	pro := f.license(t, alice, "pro", licensing.StatusActive)
	f.license(t, alice, "starter", licensing.StatusActive)
	founders := f.license(t, bob, "founders", licensing.StatusActive)
	f.license(t, carol, "agency", licensing.StatusCancelled)

	f.usage(t, pro, 2000, day.Add(10*time.Hour))
	f.usage(t, founders, 1000, day.Add(23*time.Hour+59*time.Minute))
	f.usage(t, pro, 5000, day.Add(24*time.Hour))
	f.usage(t, pro, 5000, day.Add(-time.Minute))

	job := NewJob(f.store, NewMemoryStore(), 90, nil, nil)
	snap, err := job.Compute(context.Background(), day.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if snap.Date != "2026-03-10" {
		t.Errorf("Expected date 2026-03-10, got %s", snap.Date)
	}
	if snap.TotalCustomers != 3 {
		t.Errorf("Expected 3 customers, got %d", snap.TotalCustomers)
	}
	if snap.ActiveLicenses != 3 {
		t.Errorf("Expected 3 active licenses, got %d", snap.ActiveLicenses)
	}
	if snap.PayingCustomers != 2 {
		t.Errorf("Expected 2 paying customers, got %d", snap.PayingCustomers)
	}
	if snap.MRR != 10.98 {
		t.Errorf("Expected MRR 10.98, got %v", snap.MRR)
	}
	if snap.ARR != 131.76 {
		t.Errorf("Expected ARR 131.76, got %v", snap.ARR)
	}
	if snap.OneTimeRevenue != 29 {
		t.Errorf("Expected one-time revenue 29, got %v", snap.OneTimeRevenue)
	}
	if got := snap.RevenueByPlan["pro"]; got.Count != 1 || got.Revenue != 7.99 {
		t.Errorf("Unexpected pro revenue: %+v", got)
	}
	if _, ok := snap.RevenueByPlan["agency"]; ok {
		t.Error("Cancelled license counted towards revenue")
	}
	if snap.Requests != 2 || snap.Tokens != 3000 {
		t.Errorf("Expected 2 requests and 3000 tokens, got %d and %d", snap.Requests, snap.Tokens)
	}
	if snap.Cost != 0.0045 {
		t.Errorf("Expected cost 0.0045, got %v", snap.Cost)
	}
}

func TestJob_RunSavesAndPrunes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	snapshots := NewMemoryStore()
	day := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, offset := range []int{-120, -91, -90, -10} {
		old := &DailySnapshot{Date: DayKey(day.AddDate(0, 0, offset)), RevenueByPlan: map[string]PlanRevenue{}}
		if err := snapshots.SaveSnapshot(ctx, old); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	job := NewJob(f.store, snapshots, 90, nil, nil)
	if _, err := job.Run(ctx, day); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := snapshots.GetSnapshot(ctx, "2026-06-01"); err != nil {
		t.Errorf("Expected today's snapshot to be saved: %v", err)
	}

	all, _ := snapshots.ListSnapshots(ctx, "0000-00-00", "9999-99-99")
	if len(all) != 3 {
		t.Fatalf("Expected 3 snapshots after pruning, got %d", len(all))
	}
	if oldest := all[len(all)-1].Date; oldest != DayKey(day.AddDate(0, 0, -90)) {
		t.Errorf("Expected oldest kept snapshot at the retention edge, got %s", oldest)
	}
}

func TestJob_RunIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	snapshots := NewMemoryStore()
	job := NewJob(f.store, snapshots, 0, nil, nil)
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := job.Run(ctx, day); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	c := f.customer(t, "late@example.com")
	f.license(t, c, "pro", licensing.StatusActive)
	if _, err := job.Run(ctx, day.Add(time.Hour)); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	all, _ := snapshots.ListSnapshots(ctx, "2026-06-01", "2026-06-01")
	if len(all) != 1 {
		t.Fatalf("Expected a single snapshot for the day, got %d", len(all))
	}
	if all[0].ActiveLicenses != 1 {
		t.Errorf("Expected the rerun to replace the snapshot, got %d active licenses", all[0].ActiveLicenses)
	}
}

func TestJob_Recent(t *testing.T) {
	ctx := context.Background()
	snapshots := NewMemoryStore()
	asOf := time.Date(2026, 6, 30, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		date := DayKey(asOf.AddDate(0, 0, -i))
		if err := snapshots.SaveSnapshot(ctx, &DailySnapshot{Date: date}); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	job := NewJob(storage.NewMemoryStore(), snapshots, 90, nil, nil)
	tests := []struct {
		days int
		want int
	}{
		{7, 7},
		{30, 30},
		{0, 30},
		{60, 40},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("days=%d", tt.days), func(t *testing.T) {
			got, err := job.Recent(ctx, tt.days, asOf)
			if err != nil {
				t.Fatalf("Recent failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Expected %d snapshots, got %d", tt.want, len(got))
			}
			if len(got) > 0 && got[0].Date != "2026-06-30" {
				t.Errorf("Expected newest first, got %s", got[0].Date)
			}
		})
	}
}
