package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatello/gateway/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Namespace: "test"}, prometheus.NewRegistry())
}

func TestCollector_RecordGateDecision(t *testing.T) {
	c := testCollector(t)

	c.RecordGateDecision("allowed", "")
	c.RecordGateDecision("rejected", "limit_exceeded")
	c.RecordGateDecision("rejected", "limit_exceeded")

	if got := testutil.ToFloat64(c.gateDecisions.WithLabelValues("rejected", "limit_exceeded")); got != 2 {
		t.Errorf("Expected 2 rejections, got %v", got)
	}
	if got := testutil.ToFloat64(c.gateDecisions.WithLabelValues("allowed", "")); got != 1 {
		t.Errorf("Expected 1 allowed, got %v", got)
	}
}

func TestCollector_RecordProviderCall(t *testing.T) {
	c := testCollector(t)

	c.RecordProviderCall("openai", "gpt-4o-mini", 800*time.Millisecond, 120, false)
	c.RecordProviderCall("openai", "gpt-4o-mini", 300*time.Millisecond, 30, true)

	if got := testutil.ToFloat64(c.providerTokens.WithLabelValues("openai", "reported")); got != 120 {
		t.Errorf("Expected 120 reported tokens, got %v", got)
	}
	if got := testutil.ToFloat64(c.providerTokens.WithLabelValues("openai", "estimated")); got != 30 {
		t.Errorf("Expected 30 estimated tokens, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.RecordHTTPRequest("/api/chat", "POST", "200", time.Second)
	c.RecordGateDecision("allowed", "")
	c.RecordLimitRejection("monthly_budget")
	c.RecordProviderError("anthropic", "timeout")
	c.RecordAllocation("founders", "ok")
	c.RecordExpiration()
	c.RecordAnalyticsRun("ok")
}

func TestCollector_Handler(t *testing.T) {
	c := testCollector(t)
	c.RecordLimitRejection("requests_per_minute")
	c.RecordAllocation("founders", "sold_out")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `test_gate_limit_rejections_total{dimension="requests_per_minute"} 1`) {
		t.Errorf("Expected limit rejection metric in output:\n%s", body)
	}
	if !strings.Contains(body, "test_licensing_allocations_total") {
		t.Errorf("Expected allocation metric in output")
	}
}
