package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"

	"github.com/go-chi/chi/v5"
)

func TestAdminHandlers_RequireAdminKey(t *testing.T) {
	f := newFixture(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/admin/customers"},
		{http.MethodPost, "/api/admin/licenses"},
		{http.MethodPatch, "/api/admin/licenses/abc/status"},
		{http.MethodPatch, "/api/admin/usage/abc/tokens"},
		{http.MethodGet, "/api/admin/plans"},
		{http.MethodGet, "/api/admin/analytics"},
		{http.MethodGet, "/admin/health"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			requireStatus(t, f.do(request{method: p.method, path: p.path}), http.StatusUnauthorized)
			requireStatus(t, f.do(request{method: p.method, path: p.path, headers: map[string]string{"X-Admin-Key": "wrong"}}), http.StatusUnauthorized)
		})
	}
}

func TestAdminHandlers_CreateCustomer(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"new customer", map[string]string{"email": "New@Example.com", "name": "New"}, http.StatusCreated, ""},
		{"duplicate email", map[string]string{"email": "OWNER@example.com"}, http.StatusConflict, "Customer already exists"},
		{"invalid email", map[string]string{"email": "not-an-email"}, http.StatusBadRequest, ""},
		{"missing body", nil, http.StatusBadRequest, "Missing JSON data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			body := requireStatus(t, f.do(request{method: http.MethodPost, path: "/api/admin/customers", body: tt.body, headers: withAdmin()}), tt.wantStatus)

			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			cust, _ := body["customer"].(map[string]any)
			if cust["email"] != "new@example.com" {
				t.Errorf("Expected normalized email, got %v", cust["email"])
			}
			if cust["id"] == "" {
				t.Error("Expected a customer ID")
			}
		})
	}
}

func TestAdminHandlers_CreateLicense(t *testing.T) {
	f := newFixture(t, func(plans map[string]*licensing.Plan) {
		plans["founders"].LifetimeSeatLimit = 1
	})

	body := requireStatus(t, f.do(request{
		method:  http.MethodPost,
		path:    "/api/admin/licenses",
		body:    map[string]string{"customer_id": f.customer.ID, "plan": "Pro", "domain": "shop.example.com"},
		headers: withAdmin(),
	}), http.StatusCreated)

	lic, _ := body["license"].(map[string]any)
	key, _ := lic["license_key"].(string)
	if !licensing.ValidKeyFormat(key) {
		t.Errorf("Expected a generated license key, got %q", key)
	}
	if lic["status"] != "active" || lic["domain"] != "shop.example.com" {
		t.Errorf("Unexpected license %v", lic)
	}

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantError  string
	}{
		{"first founders seat", map[string]string{"customer_id": f.customer.ID, "plan": "founders"}, http.StatusCreated, ""},
		{"founders sold out", map[string]string{"customer_id": f.customer.ID, "plan": "founders"}, http.StatusConflict, "No licenses remaining for this plan"},
		{"unknown plan", map[string]string{"customer_id": f.customer.ID, "plan": "enterprise"}, http.StatusNotFound, "Plan not found"},
		{"unknown customer", map[string]string{"customer_id": "nobody", "plan": "pro"}, http.StatusNotFound, "Customer not found"},
		{"missing plan", map[string]string{"customer_id": f.customer.ID}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := requireStatus(t, f.do(request{method: http.MethodPost, path: "/api/admin/licenses", body: tt.body, headers: withAdmin()}), tt.wantStatus)
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestAdminHandlers_UpdateLicenseStatus(t *testing.T) {
	f := newFixture(t, nil)
	lic := f.license("pro", nil)
	path := "/api/admin/licenses/" + lic.ID + "/status"

	steps := []struct {
		name       string
		path       string
		status     string
		wantStatus int
		wantError  string
	}{
		{"suspend", path, "suspended", http.StatusOK, ""},
		{"reactivate", path, "active", http.StatusOK, ""},
		{"same status", path, "active", http.StatusOK, ""},
		{"unknown status", path, "paused", http.StatusBadRequest, MessageInvalidStatus},
		{"cancel", path, "cancelled", http.StatusOK, ""},
		{"cancelled is terminal", path, "active", http.StatusConflict, MessageStatusTransition},
		{"unknown license", "/api/admin/licenses/missing/status", "active", http.StatusNotFound, "License not found"},
	}

	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			body := requireStatus(t, f.do(request{method: http.MethodPatch, path: s.path, body: map[string]string{"status": s.status}, headers: withAdmin()}), s.wantStatus)
			if s.wantError != "" {
				if body["error"] != s.wantError {
					t.Errorf("Expected error %q, got %v", s.wantError, body["error"])
				}
				return
			}
			got, _ := body["license"].(map[string]any)
			if got["status"] != s.status {
				t.Errorf("Expected status %s, got %v", s.status, got["status"])
			}
		})
	}

	// A suspended license is refused by the gate.
	other := f.license("pro", nil)
	requireStatus(t, f.do(request{method: http.MethodPatch, path: "/api/admin/licenses/" + other.ID + "/status", body: map[string]string{"status": "suspended"}, headers: withAdmin()}), http.StatusOK)
	requireStatus(t, f.do(request{method: http.MethodPost, path: "/api/chat", body: chatBody(), headers: withLicense(other.Key)}), http.StatusUnauthorized)
}

// staleStore hands out the license as it was, then cancels it underneath,
// the way a concurrent PATCH or expiry flip would.
type staleStore struct {
	*storage.MemoryStore
	once bool
}

func (s *staleStore) GetLicense(ctx context.Context, id string) (*licensing.License, error) {
	lic, err := s.MemoryStore.GetLicense(ctx, id)
	if err != nil || s.once {
		return lic, err
	}
	s.once = true
	if err := s.MemoryStore.UpdateLicenseStatus(ctx, id, lic.Status, licensing.StatusCancelled, testNow); err != nil {
		return nil, err
	}
	return lic, nil
}

func TestAdminHandlers_UpdateLicenseStatusStaleRead(t *testing.T) {
	f := newFixture(t, nil)
	lic := f.license("pro", nil)

	admin := NewAdminHandlers(AdminDependencies{Store: &staleStore{MemoryStore: f.store}, Version: "test"})
	r := chi.NewRouter()
	r.Patch("/api/admin/licenses/{id}/status", admin.UpdateLicenseStatus)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/licenses/"+lic.ID+"/status", strings.NewReader(`{"status":"suspended"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	body := requireStatus(t, rec, http.StatusConflict)
	if body["error"] != "License status changed, retry the request" {
		t.Errorf("Expected status conflict error, got %v", body["error"])
	}

	got, err := f.store.GetLicense(context.Background(), lic.ID)
	if err != nil {
		t.Fatalf("GetLicense failed: %v", err)
	}
	if got.Status != licensing.StatusCancelled {
		t.Errorf("Expected license to stay cancelled, got %s", got.Status)
	}
}

func TestAdminHandlers_PatchUsageTokens(t *testing.T) {
	f := newFixture(t, nil)
	lic := f.license("pro", nil)
	f.usage(lic, "openai", 120, testNow)

	recs, err := f.store.ListUsage(context.Background(), storage.UsageQuery{LicenseID: lic.ID})
	if err != nil || len(recs) != 1 {
		t.Fatalf("Expected 1 usage record, got %d (%v)", len(recs), err)
	}
	path := "/api/admin/usage/" + recs[0].ID + "/tokens"

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"correct estimate", path, map[string]any{"tokens": 480}, http.StatusOK, ""},
		{"zero tokens", path, map[string]any{"tokens": 0, "estimated": true}, http.StatusOK, ""},
		{"negative tokens", path, map[string]any{"tokens": -1}, http.StatusBadRequest, ""},
		{"missing tokens", path, map[string]any{"estimated": true}, http.StatusBadRequest, ""},
		{"unknown record", "/api/admin/usage/missing/tokens", map[string]any{"tokens": 1}, http.StatusNotFound, "Usage record not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := requireStatus(t, f.do(request{method: http.MethodPatch, path: tt.path, body: tt.body, headers: withAdmin()}), tt.wantStatus)
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}

	recs, err = f.store.ListUsage(context.Background(), storage.UsageQuery{LicenseID: lic.ID})
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if recs[0].TokensUsed != 0 || !recs[0].Estimated {
		t.Errorf("Expected 0 estimated tokens, got %d (estimated=%v)", recs[0].TokensUsed, recs[0].Estimated)
	}
	if got := f.records(lic); got != 1 {
		t.Errorf("Expected the correction not to add records, got %d", got)
	}
}

func TestAdminHandlers_ListPlans(t *testing.T) {
	f := newFixture(t, func(plans map[string]*licensing.Plan) {
		plans["founders"].LifetimeSeatLimit = 5
	})
	f.license("founders", nil)
	f.license("founders", nil)

	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/admin/plans", headers: withAdmin()}), http.StatusOK)

	plans, _ := body["plans"].([]any)
	if len(plans) != 4 {
		t.Fatalf("Expected 4 plans, got %d", len(plans))
	}
	for _, p := range plans {
		plan := p.(map[string]any)
		seats, hasSeats := plan["seats"].(map[string]any)
		if plan["name"] != "founders" {
			if hasSeats {
				t.Errorf("Expected no seats on %v", plan["name"])
			}
			continue
		}
		if !hasSeats {
			t.Fatal("Expected seats on founders")
		}
		if seats["sold"] != float64(2) || seats["remaining"] != float64(3) {
			t.Errorf("Unexpected founders seats %v", seats)
		}
	}
}

func TestAdminHandlers_Analytics(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, date := range []string{"2026-03-15", "2026-03-14", "2026-03-10", "2026-01-01"} {
		if err := f.snapshots.SaveSnapshot(ctx, &analytics.DailySnapshot{Date: date, MRR: 7.99}); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?days=2", 2},
		{"?days=abc", 3},
		{"?days=1000", 4},
	}
	for _, tt := range tests {
		t.Run("days"+tt.query, func(t *testing.T) {
			body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/admin/analytics" + tt.query, headers: withAdmin()}), http.StatusOK)
			snaps, _ := body["snapshots"].([]any)
			if len(snaps) != tt.want {
				t.Errorf("Expected %d snapshots, got %d", tt.want, len(snaps))
			}
		})
	}
}

func TestAdminHandlers_Health(t *testing.T) {
	f := newFixture(t, nil)
	f.license("pro", nil)
	f.license("agency", func(l *licensing.License) { l.Status = licensing.StatusCancelled })

	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/admin/health", headers: withAdmin()}), http.StatusOK)

	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}
	db, _ := body["database"].(map[string]any)
	counts, _ := db["counts"].(map[string]any)
	if counts["licenses"] != float64(2) || counts["active_licenses"] != float64(1) || counts["plans"] != float64(4) {
		t.Errorf("Unexpected counts %v", counts)
	}
	providers, _ := body["providers"].(map[string]any)
	if providers["openai"] != true || providers["anthropic"] != false {
		t.Errorf("Unexpected provider flags %v", providers)
	}

	if err := f.store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	body = requireStatus(t, f.do(request{method: http.MethodGet, path: "/admin/health", headers: withAdmin()}), http.StatusServiceUnavailable)
	if body["status"] != "degraded" {
		t.Errorf("Expected degraded, got %v", body["status"])
	}
}

func TestBannerHandler(t *testing.T) {
	f := newFixture(t, nil)
	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/"}), http.StatusOK)
	if body["service"] != ServiceName || body["version"] != "test" || body["storage"] != "memory" {
		t.Errorf("Unexpected banner %v", body)
	}
}
