package handlers

import (
	"net/http"
	"testing"
	"time"

	"chatello/gateway/pkg/licensing"
)

func TestUsageHandlers_Current(t *testing.T) {
	f := newFixture(t, func(plans map[string]*licensing.Plan) {
		plans["pro"].MonthlyRequestLimit = 10
	})
	lic := f.license("pro", nil)
	for i := 0; i < 9; i++ {
		f.usage(lic, "openai", 100, testNow.Add(-time.Duration(i+2)*time.Hour))
	}

	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/current", headers: withLicense(lic.Key)}), http.StatusOK)

	if body["license_key"] != lic.Key || body["plan"] != "pro" {
		t.Errorf("Unexpected identity fields: %v / %v", body["license_key"], body["plan"])
	}
	usage, _ := body["usage"].(map[string]any)
	month, _ := usage["current_month"].(map[string]any)
	if month["requests"] != float64(9) || month["tokens"] != float64(900) {
		t.Errorf("Unexpected month usage %v", month)
	}
	warnings, _ := body["warnings"].([]any)
	if len(warnings) != 1 || warnings[0] != "Monthly request limit approaching (>80%)" {
		t.Errorf("Expected request warning, got %v", body["warnings"])
	}
}

func TestUsageHandlers_RequireLicense(t *testing.T) {
	f := newFixture(t, nil)
	lic := f.license("pro", func(l *licensing.License) { l.Status = licensing.StatusSuspended })

	for _, path := range []string{"/api/usage/current", "/api/usage/history", "/api/limits/check"} {
		t.Run(path, func(t *testing.T) {
			requireStatus(t, f.do(request{method: http.MethodGet, path: path}), http.StatusUnauthorized)
			requireStatus(t, f.do(request{method: http.MethodGet, path: path, headers: withLicense(lic.Key)}), http.StatusUnauthorized)
		})
	}
}

func TestUsageHandlers_LimitsCheck(t *testing.T) {
	tests := []struct {
		name         string
		tweak        func(*licensing.Plan)
		records      int
		tokens       int64
		wantStatus   int
		wantBlocking []string
	}{
		{"within limits", nil, 3, 100, http.StatusOK, nil},
		{"per minute exhausted", func(p *licensing.Plan) { p.RequestsPerMinute = 3 }, 3, 100, http.StatusTooManyRequests, []string{"requests_per_minute"}},
		{"budget exhausted", func(p *licensing.Plan) { p.MonthlyBudget = 0.001 }, 1, 1000, http.StatusPaymentRequired, []string{"monthly_budget"}},
		{
			"budget and rate exhausted",
			func(p *licensing.Plan) { p.MonthlyBudget = 0.001; p.RequestsPerMinute = 1 },
			1, 1000, http.StatusPaymentRequired, []string{"requests_per_minute", "monthly_budget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(plans map[string]*licensing.Plan) {
				if tt.tweak != nil {
					tt.tweak(plans["pro"])
				}
			})
			lic := f.license("pro", nil)
			for i := 0; i < tt.records; i++ {
				f.usage(lic, "openai", tt.tokens, testNow.Add(-time.Duration(i+1)*time.Second))
			}

			rec := f.do(request{method: http.MethodGet, path: "/api/limits/check", headers: withLicense(lic.Key)})
			body := requireStatus(t, rec, tt.wantStatus)

			if body["can_make_request"] != (tt.wantStatus == http.StatusOK) {
				t.Errorf("Unexpected can_make_request %v", body["can_make_request"])
			}
			blocking, _ := body["blocking_factors"].([]any)
			if len(blocking) != len(tt.wantBlocking) {
				t.Fatalf("Expected blocking %v, got %v", tt.wantBlocking, blocking)
			}
			for i, d := range tt.wantBlocking {
				if blocking[i] != d {
					t.Errorf("Expected blocking[%d] = %s, got %v", i, d, blocking[i])
				}
			}

			statuses, _ := body["limits_status"].(map[string]any)
			if len(statuses) != 4 {
				t.Errorf("Expected 4 limit statuses, got %d", len(statuses))
			}
			resets, _ := body["reset_times"].(map[string]any)
			if resets["next_minute"] != "2026-03-15T10:31:00Z" {
				t.Errorf("Unexpected next_minute %v", resets["next_minute"])
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
				t.Error("Expected Retry-After header on a rate rejection")
			}
		})
	}
}

func TestUsageHandlers_History(t *testing.T) {
	f := newFixture(t, nil)
	lic := f.license("pro", nil)

	// Usage on three distinct UTC days, two providers on the latest.
	f.usage(lic, "openai", 100, testNow.Add(-time.Hour))
	f.usage(lic, "deepseek", 50, testNow.Add(-2*time.Hour))
	f.usage(lic, "openai", 200, testNow.AddDate(0, 0, -1))
	f.usage(lic, "anthropic", 300, testNow.AddDate(0, 0, -2))
	// Outside a 7-day window.
	f.usage(lic, "openai", 999, testNow.AddDate(0, 0, -20))

	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/history?days=7", headers: withLicense(lic.Key)}), http.StatusOK)

	days, _ := body["daily_usage"].([]any)
	if len(days) != 3 {
		t.Fatalf("Expected 3 days, got %d", len(days))
	}
	wantDates := []string{"2026-03-15", "2026-03-14", "2026-03-13"}
	for i, d := range days {
		day := d.(map[string]any)
		if day["date"] != wantDates[i] {
			t.Errorf("Expected day %d to be %s, got %v", i, wantDates[i], day["date"])
		}
	}
	latest := days[0].(map[string]any)
	if latest["total_requests"] != float64(2) || latest["total_tokens"] != float64(150) {
		t.Errorf("Unexpected latest day %v", latest)
	}
	byProvider, _ := latest["by_provider"].(map[string]any)
	if len(byProvider) != 2 {
		t.Errorf("Expected 2 providers on the latest day, got %v", byProvider)
	}

	recent, _ := body["recent_requests"].([]any)
	if len(recent) != 4 {
		t.Errorf("Expected 4 recent requests, got %d", len(recent))
	}
	summary, _ := body["summary"].(map[string]any)
	if summary["total_requests"] != float64(4) || summary["days_with_usage"] != float64(3) {
		t.Errorf("Unexpected summary %v", summary)
	}
}

func TestUsageHandlers_HistoryQuery(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		wantDays     float64
		wantRequests float64
	}{
		{"default window", "", 30, 3},
		{"invalid days", "?days=abc", 30, 3},
		{"negative days", "?days=-4", 30, 3},
		{"capped days", "?days=500", 90, 4},
		{"provider filter", "?provider=anthropic", 30, 1},
		{"provider filter is case insensitive", "?provider=OpenAI", 30, 2},
		{"unknown provider ignored", "?provider=mistral", 30, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			lic := f.license("pro", nil)
			f.usage(lic, "openai", 100, testNow.Add(-time.Hour))
			f.usage(lic, "openai", 100, testNow.AddDate(0, 0, -3))
			f.usage(lic, "anthropic", 100, testNow.AddDate(0, 0, -10))
			f.usage(lic, "openai", 100, testNow.AddDate(0, 0, -60))

			body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/history" + tt.query, headers: withLicense(lic.Key)}), http.StatusOK)

			period, _ := body["period"].(map[string]any)
			if period["days"] != tt.wantDays {
				t.Errorf("Expected %v days, got %v", tt.wantDays, period["days"])
			}
			summary, _ := body["summary"].(map[string]any)
			if summary["total_requests"] != tt.wantRequests {
				t.Errorf("Expected %v requests, got %v", tt.wantRequests, summary["total_requests"])
			}
		})
	}
}

func TestUsageHandlers_Legacy(t *testing.T) {
	f := newFixture(t, nil)
	pro := f.license("pro", nil)
	starter := f.license("starter", func(l *licensing.License) { l.Status = licensing.StatusSuspended })
	f.usage(pro, "openai", 400, testNow.Add(-time.Hour))
	f.usage(pro, "openai", 600, testNow.AddDate(0, 0, -3))

	body := requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/" + pro.Key}), http.StatusOK)
	month, _ := body["current_month"].(map[string]any)
	if month["requests"] != float64(2) || month["tokens"] != float64(1000) {
		t.Errorf("Unexpected current month %v", month)
	}
	lim, _ := body["limits"].(map[string]any)
	if lim["requests_remaining"] != float64(998) {
		t.Errorf("Expected 998 remaining, got %v", lim["requests_remaining"])
	}

	body = requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/" + starter.Key}), http.StatusOK)
	lim, _ = body["limits"].(map[string]any)
	if lim["requests_remaining"] != "unlimited" {
		t.Errorf("Expected unlimited, got %v", lim["requests_remaining"])
	}

	body = requireStatus(t, f.do(request{method: http.MethodGet, path: "/api/usage/CHA-00000000-00000000-00000000-00000000"}), http.StatusNotFound)
	if body["error"] != MessageLicenseNotFound {
		t.Errorf("Expected %q, got %v", MessageLicenseNotFound, body["error"])
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 30},
		{"7", 7},
		{" 14 ", 14},
		{"0", 30},
		{"90", 90},
		{"91", 90},
		{"1.5", 30},
	}
	for _, tt := range tests {
		if got := parseDays(tt.raw); got != tt.want {
			t.Errorf("parseDays(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
