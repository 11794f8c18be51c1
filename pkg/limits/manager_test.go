package limits

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"
)

func record(t *testing.T, ledger storage.Ledger, licenseID, provider string, tokens, latency int64, at time.Time) {
	t.Helper()
	err := ledger.AppendUsage(context.Background(), &licensing.UsageRecord{
		LicenseID:      licenseID,
		Endpoint:       "/api/chat",
		Provider:       provider,
		Model:          provider + "-model",
		TokensUsed:     tokens,
		ResponseTimeMS: latency,
		CreatedAt:      at,
	})
	if err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}
}

func TestManager_ExactlyNMonthlyRequests(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "tiny", MonthlyRequestLimit: 3}
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	allowed := 0
	for i := 0; i < 6; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		adm, err := m.Admit(ctx, "lic-1", plan, now)
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !adm.Evaluation.Allowed() {
			if !reflect.DeepEqual(adm.Evaluation.Blocking, []Dimension{DimensionMonthlyRequests}) {
				t.Errorf("Expected monthly_requests to block, got %v", adm.Evaluation.Blocking)
			}
			if adm.Slot != nil {
				t.Error("Expected no slot for a blocked request")
			}
			continue
		}
		allowed++
		record(t, store, "lic-1", "openai", 10, 100, now)
		adm.Slot.Release()
	}

	if allowed != 3 {
		t.Errorf("Expected exactly 3 admitted requests, got %d", allowed)
	}

	// The quota is per calendar month.
	adm, err := m.Admit(ctx, "lic-1", plan, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !adm.Evaluation.Allowed() {
		t.Errorf("Expected a new month to reset the quota, blocked by %v", adm.Evaluation.Blocking)
	}
	adm.Slot.Release()
}

func TestManager_SlidingMinuteBoundary(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "rate", RequestsPerMinute: 2}
	ctx := context.Background()
	t0 := time.Date(2026, 3, 10, 12, 0, 10, 0, time.UTC)

	record(t, store, "lic-1", "openai", 10, 100, t0)
	record(t, store, "lic-1", "openai", 10, 100, t0.Add(time.Second))

	tests := []struct {
		name    string
		asOf    time.Time
		allowed bool
	}{
		{"second 59", t0.Add(59 * time.Second), false},
		{"exactly one minute", t0.Add(60 * time.Second), false},
		{"second 61", t0.Add(61 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ev, err := m.Check(ctx, "lic-1", plan, tt.asOf)
			if err != nil {
				t.Fatalf("Check failed: %v", err)
			}
			if ev.Allowed() != tt.allowed {
				t.Errorf("Expected allowed=%v, got blocking %v", tt.allowed, ev.Blocking)
			}
		})
	}
}

func TestManager_SlidingHour(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "rate", RequestsPerHour: 1}
	t0 := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	record(t, store, "lic-1", "openai", 10, 100, t0)

	_, ev, err := m.Check(context.Background(), "lic-1", plan, t0.Add(59*time.Minute))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ev.Blocks(DimensionRequestsPerHour) {
		t.Errorf("Expected requests_per_hour to block, got %v", ev.Blocking)
	}

	_, ev, err = m.Check(context.Background(), "lic-1", plan, t0.Add(61*time.Minute))
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ev.Allowed() {
		t.Errorf("Expected hour window to roll over, got %v", ev.Blocking)
	}
}

func TestManager_BudgetBlocksBeforeCall(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "pro", MonthlyBudget: 0.01, CostPer1KTokens: 0.002}
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, store, "lic-1", "openai", 4999, 100, now.Add(-time.Hour))

	stats, ev, err := m.Check(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ev.Allowed() {
		t.Fatalf("Expected spend below budget to pass, got %v", ev.Blocking)
	}
	if stats.CurrentMonth.Cost != 0.01 {
		t.Errorf("Expected reported cost 0.01, got %v", stats.CurrentMonth.Cost)
	}

	record(t, store, "lic-1", "openai", 1, 100, now.Add(-time.Minute*30))

	stats, ev, err = m.Check(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !reflect.DeepEqual(ev.Blocking, []Dimension{DimensionMonthlyBudget}) {
		t.Errorf("Expected monthly_budget to block, got %v", ev.Blocking)
	}
	if stats.Percentages.Budget != 100 {
		t.Errorf("Expected budget percentage 100, got %v", stats.Percentages.Budget)
	}
}

func TestManager_UnlimitedPlan(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "starter", CostPer1KTokens: 0.002}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 200; i++ {
		record(t, store, "lic-1", "openai", 1000, 50, now.Add(-time.Duration(i)*time.Second))
	}

	stats, ev, err := m.Check(context.Background(), "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !ev.Allowed() {
		t.Errorf("Expected unlimited plan to pass, got %v", ev.Blocking)
	}
	if stats.Percentages.Requests != 0 || stats.Percentages.Budget != 0 {
		t.Errorf("Expected zero percentages, got %+v", stats.Percentages)
	}
	if stats.CurrentMinute.Requests != 61 {
		t.Errorf("Expected 61 requests in the inclusive minute window, got %d", stats.CurrentMinute.Requests)
	}
	if w := Warnings(stats); len(w) != 0 {
		t.Errorf("Expected no warnings, got %v", w)
	}
}

func TestManager_InFlightCounted(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "rate", RequestsPerMinute: 1}
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first, err := m.Admit(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !first.Evaluation.Allowed() {
		t.Fatalf("Expected first request to pass, got %v", first.Evaluation.Blocking)
	}

	second, err := m.Admit(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if second.Evaluation.Allowed() {
		t.Error("Expected second request to be blocked by the in-flight first")
	}
	if second.Stats.CurrentMinute.Requests != 0 {
		t.Errorf("Expected reported stats to exclude in-flight requests, got %d", second.Stats.CurrentMinute.Requests)
	}

	// An abandoned call releases its slot without a ledger record.
	first.Slot.Release()
	if m.InFlight("lic-1") != 0 {
		t.Errorf("Expected 0 in flight, got %d", m.InFlight("lic-1"))
	}

	third, err := m.Admit(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !third.Evaluation.Allowed() {
		t.Errorf("Expected request to pass after release, got %v", third.Evaluation.Blocking)
	}
	third.Slot.Release()
}

func TestManager_ConcurrentAdmitNoOvershoot(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "tiny", MonthlyRequestLimit: 5}
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		slots []*Admission
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := m.Admit(ctx, "lic-1", plan, now)
			if err != nil {
				t.Errorf("Admit failed: %v", err)
				return
			}
			if !adm.Evaluation.Allowed() {
				return
			}
			mu.Lock()
			slots = append(slots, adm)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(slots) != 5 {
		t.Errorf("Expected exactly 5 admitted, got %d", len(slots))
	}
	if m.InFlight("lic-1") != int64(len(slots)) {
		t.Errorf("Expected %d in flight, got %d", len(slots), m.InFlight("lic-1"))
	}
	for _, adm := range slots {
		adm.Slot.Release()
	}
}

func TestWarnings(t *testing.T) {
	stats := &UsageStats{Percentages: Percentages{Requests: 80, Budget: 95.5}}
	want := []string{
		"Monthly request limit approaching (>80%)",
		"Monthly budget limit approaching (>80%)",
	}
	if got := Warnings(stats); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// blockingLedger holds AppendUsage until release is closed.
type blockingLedger struct {
	storage.Ledger
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLedger) AppendUsage(ctx context.Context, rec *licensing.UsageRecord) error {
	close(l.entered)
	<-l.release
	return l.Ledger.AppendUsage(ctx, rec)
}

func TestManager_RecordNeverDoubleCounts(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := &blockingLedger{Ledger: store, entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(ledger, nil, nil)
	plan := &licensing.Plan{Name: "tiny", MonthlyRequestLimit: 3}
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, store, "lic-1", "openai", 10, 100, now.Add(-time.Hour))

	a, err := m.Admit(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !a.Evaluation.Allowed() {
		t.Fatalf("Expected first request to be admitted, blocked by %v", a.Evaluation.Blocking)
	}

	recorded := make(chan error, 1)
	go func() {
		recorded <- m.Record(ctx, a.Slot, &licensing.UsageRecord{
			LicenseID: "lic-1", Endpoint: "/api/chat", Provider: "openai", TokensUsed: 10, CreatedAt: now,
		})
	}()
	<-ledger.entered

	admitted := make(chan *Admission, 1)
	go func() {
		b, err := m.Admit(ctx, "lic-1", plan, now)
		if err != nil {
			t.Errorf("Admit failed: %v", err)
		}
		admitted <- b
	}()

	select {
	case <-admitted:
		t.Fatal("Expected Admit to wait while the usage record is being written")
	case <-time.After(50 * time.Millisecond):
	}

	close(ledger.release)
	if err := <-recorded; err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	b := <-admitted
	if b == nil {
		t.FailNow()
	}
	if !b.Evaluation.Allowed() {
		t.Fatalf("Expected 2 of 3 used to admit a third request, blocked by %v (in flight %d)",
			b.Evaluation.Blocking, m.InFlight("lic-1"))
	}
	if got := m.InFlight("lic-1"); got != 1 {
		t.Errorf("Expected 1 in flight, got %d", got)
	}
	b.Slot.Release()
}

func TestManager_RecordReleasesOnDirectLedger(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewManager(store, nil, nil)
	plan := &licensing.Plan{Name: "tiny", MonthlyRequestLimit: 3}
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record(t, store, "lic-1", "openai", 10, 100, now.Add(-time.Hour))

	for i := 0; i < 2; i++ {
		adm, err := m.Admit(ctx, "lic-1", plan, now)
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !adm.Evaluation.Allowed() {
			t.Fatalf("Expected request %d to be admitted, blocked by %v", i+2, adm.Evaluation.Blocking)
		}
		rec := &licensing.UsageRecord{LicenseID: "lic-1", Endpoint: "/api/chat", Provider: "openai", CreatedAt: now}
		if err := m.Record(ctx, adm.Slot, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if got := m.InFlight("lic-1"); got != 0 {
			t.Errorf("Expected 0 in flight after Record, got %d", got)
		}
	}

	adm, err := m.Admit(ctx, "lic-1", plan, now)
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if adm.Evaluation.Allowed() {
		t.Error("Expected the fourth request to be blocked at 3 of 3")
	}
}
