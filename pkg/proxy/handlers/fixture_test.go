package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	testhelpers "chatello/gateway/internal/providers"
	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/cache"
	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/providerfactory"
	"chatello/gateway/pkg/proxy/middleware"
	"chatello/gateway/pkg/security/auth"
	"chatello/gateway/pkg/storage"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	licenseHeader = "X-License-Key"
	adminKey      = "adm_test"
)

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	t         *testing.T
	store     *storage.MemoryStore
	mock      *testhelpers.MockProvider
	snapshots *analytics.MemoryStore
	router    chi.Router
	plans     map[string]*licensing.Plan
	customer  *licensing.Customer
}

// newFixture wires the handlers the way the server does, on an in-memory
// store with every default plan and a mock openai provider. tweak may
// adjust plans before they are stored.
func newFixture(t *testing.T, tweak func(map[string]*licensing.Plan)) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	plans := map[string]*licensing.Plan{}
	for _, p := range licensing.DefaultPlans(testNow) {
		plans[p.Name] = p
	}
	if tweak != nil {
		tweak(plans)
	}
	for _, p := range plans {
		if err := store.UpsertPlan(ctx, p); err != nil {
			t.Fatalf("UpsertPlan failed: %v", err)
		}
	}

	cust := &licensing.Customer{Email: "owner@example.com", Name: "Site Owner", Status: "active"}
	if err := store.CreateCustomer(ctx, cust); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	mock := testhelpers.NewMockProvider("openai")
	pm := providerfactory.NewManager(config.KnownProviders()...)
	pm.Register("openai", mock)

	clock := func() time.Time { return testNow }
	directory := licensing.NewDirectory(store, nil, nil)
	registry := licensing.NewRegistry(store, cache.NewMemoryCache(), time.Second, nil)
	allocator := licensing.NewAllocator(store, registry, store, "CHA", nil, nil)
	lm := limits.NewManager(store, nil, nil)

	g := gate.New(config.GateConfig{LicenseHeader: licenseHeader}, gate.Dependencies{
		Directory: directory,
		Plans:     registry,
		Limits:    lm,
		Providers: pm,
		Clock:     clock,
	})

	snapshots := analytics.NewMemoryStore()
	job := analytics.NewJob(store, snapshots, 90, nil, nil)

	validate := NewValidateHandler(directory, registry, store, allocator, licenseHeader, nil)
	validate.clock = clock
	usage := NewUsageHandlers(lm.Aggregator(), lm, directory, registry, nil)
	usage.clock = clock
	admin := NewAdminHandlers(AdminDependencies{
		Store:     store,
		Allocator: allocator,
		Snapshots: job,
		Providers: pm,
		Version:   "test",
	})
	admin.clock = clock

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	adminAuth := auth.Middleware(auth.NewValidator(config.AdminConfig{
		APIKeys: []config.AdminKeyConfig{{Name: "test", KeyHash: string(hash), Enabled: true}},
	}), "", nil)

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/", NewBannerHandler("test", "memory"))
	r.Method(http.MethodPost, "/api/validate", validate)
	r.Method(http.MethodPost, "/api/chat", NewChatHandler(g, licenseHeader, nil))
	r.Group(func(r chi.Router) {
		r.Use(middleware.LicenseMiddleware(g, licenseHeader, nil))
		r.Get("/api/usage/current", usage.Current)
		r.Get("/api/usage/history", usage.History)
		r.Get("/api/limits/check", usage.LimitsCheck)
	})
	r.Get("/api/usage/{license_key}", usage.Legacy)
	r.Group(func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/api/admin/customers", admin.CreateCustomer)
		r.Post("/api/admin/licenses", admin.CreateLicense)
		r.Patch("/api/admin/licenses/{id}/status", admin.UpdateLicenseStatus)
		r.Patch("/api/admin/usage/{id}/tokens", admin.PatchUsageTokens)
		r.Get("/api/admin/plans", admin.ListPlans)
		r.Get("/api/admin/analytics", admin.Analytics)
		r.Get("/admin/health", admin.Health)
	})

	return &fixture{
		t:         t,
		store:     store,
		mock:      mock,
		snapshots: snapshots,
		router:    r,
		plans:     plans,
		customer:  cust,
	}
}

// license stores an active license on plan and returns it.
func (f *fixture) license(plan string, mutate func(*licensing.License)) *licensing.License {
	f.t.Helper()
	key, err := licensing.GenerateKey("CHA")
	if err != nil {
		f.t.Fatalf("GenerateKey failed: %v", err)
	}
	l := &licensing.License{
		Key:         key,
		CustomerID:  f.customer.ID,
		PlanID:      f.plans[plan].ID,
		Status:      licensing.StatusActive,
		ActivatedAt: testNow.AddDate(0, -1, 0),
	}
	if mutate != nil {
		mutate(l)
	}
	if err := f.store.CreateLicense(context.Background(), l); err != nil {
		f.t.Fatalf("CreateLicense failed: %v", err)
	}
	return l
}

func (f *fixture) usage(l *licensing.License, provider string, tokens int64, at time.Time) {
	f.t.Helper()
	rec := &licensing.UsageRecord{
		LicenseID:      l.ID,
		Endpoint:       "/api/chat",
		Provider:       provider,
		Model:          "gpt-4o-mini",
		TokensUsed:     tokens,
		ResponseTimeMS: 400,
		CreatedAt:      at,
	}
	if err := f.store.AppendUsage(context.Background(), rec); err != nil {
		f.t.Fatalf("AppendUsage failed: %v", err)
	}
}

func (f *fixture) records(l *licensing.License) int {
	f.t.Helper()
	recs, err := f.store.ListUsage(context.Background(), storage.UsageQuery{LicenseID: l.ID})
	if err != nil {
		f.t.Fatalf("ListUsage failed: %v", err)
	}
	return len(recs)
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (f *fixture) do(req request) *httptest.ResponseRecorder {
	f.t.Helper()

	var body *bytes.Reader
	switch b := req.body.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			f.t.Fatalf("Marshal failed: %v", err)
		}
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func withLicense(key string) map[string]string {
	return map[string]string{licenseHeader: key}
}

func withAdmin() map[string]string {
	return map[string]string{auth.DefaultHeader: adminKey}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) map[string]any {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
	return decode(t, rec)
}
