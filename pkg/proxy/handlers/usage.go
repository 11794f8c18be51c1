package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/limits"
	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/proxy/middleware"
	"chatello/gateway/pkg/telemetry/logging"

	"github.com/go-chi/chi/v5"
)

// UsageReporter computes usage summaries. *limits.Aggregator implements it.
type UsageReporter interface {
	UsageStats(ctx context.Context, licenseID string, plan *licensing.Plan, asOf time.Time) (*limits.UsageStats, error)
	History(ctx context.Context, licenseID string, q limits.HistoryQuery, asOf time.Time) (*limits.History, error)
}

// LimitChecker evaluates plan limits. *limits.Manager implements it.
type LimitChecker interface {
	Check(ctx context.Context, licenseID string, plan *licensing.Plan, asOf time.Time) (*limits.UsageStats, *limits.Evaluation, error)
}

// LicenseLookup resolves a license key regardless of its status.
// *licensing.Directory implements it.
type LicenseLookup interface {
	Lookup(ctx context.Context, key string) (*licensing.License, error)
}

// UsageHandlers serves the usage and limits endpoints. Every endpoint
// except Legacy runs behind middleware.LicenseMiddleware.
type UsageHandlers struct {
	usage    UsageReporter
	checker  LimitChecker
	licenses LicenseLookup
	plans    PlanGetter
	clock    func() time.Time
	logger   *slog.Logger
}

// NewUsageHandlers creates the usage endpoint handlers.
func NewUsageHandlers(usage UsageReporter, checker LimitChecker, licenses LicenseLookup, plans PlanGetter, logger *slog.Logger) *UsageHandlers {
	return &UsageHandlers{
		usage:    usage,
		checker:  checker,
		licenses: licenses,
		plans:    plans,
		clock:    time.Now,
		logger:   logging.OrDefault(logger),
	}
}

// CurrentUsageResponse is the body of GET /api/usage/current.
type CurrentUsageResponse struct {
	Success    bool               `json:"success"`
	LicenseKey string             `json:"license_key"`
	Plan       string             `json:"plan"`
	Usage      *limits.UsageStats `json:"usage"`
	Warnings   []string           `json:"warnings"`
}

// LimitsCheckResponse is the body of GET /api/limits/check.
type LimitsCheckResponse struct {
	Success        bool `json:"success"`
	CanMakeRequest bool `json:"can_make_request"`
	*limits.Evaluation
}

// HistoryResponse is the body of GET /api/usage/history.
type HistoryResponse struct {
	Success    bool   `json:"success"`
	LicenseKey string `json:"license_key"`
	Plan       string `json:"plan"`
	*limits.History
}

// LegacyMonth is the current-month block of the legacy usage summary.
type LegacyMonth struct {
	Requests          int64   `json:"requests"`
	Tokens            int64   `json:"tokens"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
}

// LegacyLimits is the limits block of the legacy usage summary.
// RequestsRemaining is a number, or "unlimited" when the plan has no cap.
type LegacyLimits struct {
	MonthlyRequests   int64 `json:"monthly_requests"`
	RequestsRemaining any   `json:"requests_remaining"`
}

// LegacyUsageResponse is the body of GET /api/usage/{license_key}.
type LegacyUsageResponse struct {
	LicenseKey   string        `json:"license_key"`
	Plan         string        `json:"plan"`
	CurrentMonth LegacyMonth   `json:"current_month"`
	Limits       LegacyLimits  `json:"limits"`
	Period       limits.Period `json:"period"`
}

// Current answers GET /api/usage/current.
func (h *UsageHandlers) Current(w http.ResponseWriter, r *http.Request) {
	lic, plan, ok := h.licenseFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := h.usage.UsageStats(r.Context(), lic.ID, plan, h.clock().UTC())
	if err != nil {
		h.fail(w, r, "failed to compute usage", err)
		return
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, &CurrentUsageResponse{
		Success:    true,
		LicenseKey: lic.Key,
		Plan:       plan.Name,
		Usage:      stats,
		Warnings:   limits.Warnings(stats),
	})
}

// LimitsCheck answers GET /api/limits/check. A blocked license gets 402
// when the budget blocks and 429 otherwise; the body is the same.
func (h *UsageHandlers) LimitsCheck(w http.ResponseWriter, r *http.Request) {
	lic, plan, ok := h.licenseFromRequest(w, r)
	if !ok {
		return
	}

	_, ev, err := h.checker.Check(r.Context(), lic.ID, plan, h.clock().UTC())
	if err != nil {
		h.fail(w, r, "failed to check limits", err)
		return
	}

	status := http.StatusOK
	switch {
	case ev.Allowed():
	case ev.Blocks(limits.DimensionMonthlyBudget):
		status = http.StatusPaymentRequired
	default:
		status = http.StatusTooManyRequests
		if retry := ev.RetryAfter(); retry > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
		}
	}

	_ = proxy.WriteJSONResponse(w, status, &LimitsCheckResponse{
		Success:        true,
		CanMakeRequest: ev.Allowed(),
		Evaluation:     ev,
	})
}

// History answers GET /api/usage/history?days=&provider=. Invalid day
// counts fall back to the default and unknown providers are ignored.
func (h *UsageHandlers) History(w http.ResponseWriter, r *http.Request) {
	lic, plan, ok := h.licenseFromRequest(w, r)
	if !ok {
		return
	}

	q := limits.HistoryQuery{
		Days:     parseDays(r.URL.Query().Get("days")),
		Provider: knownProvider(r.URL.Query().Get("provider")),
	}

	hist, err := h.usage.History(r.Context(), lic.ID, q, h.clock().UTC())
	if err != nil {
		h.fail(w, r, "failed to load usage history", err)
		return
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, &HistoryResponse{
		Success:    true,
		LicenseKey: lic.Key,
		Plan:       plan.Name,
		History:    hist,
	})
}

// Legacy answers GET /api/usage/{license_key}. It reports on a license in
// any status, so suspended customers can still see their usage.
func (h *UsageHandlers) Legacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(chi.URLParam(r, "license_key"))

	lic, err := h.licenses.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, licensing.ErrInvalidLicense) {
			_ = proxy.WriteErrorResponse(w, http.StatusNotFound, MessageLicenseNotFound)
			return
		}
		h.fail(w, r, "license lookup failed", err)
		return
	}

	plan, err := h.plans.GetPlan(ctx, lic.PlanID)
	if err != nil {
		h.fail(w, r, "failed to load plan", err)
		return
	}

	stats, err := h.usage.UsageStats(ctx, lic.ID, plan, h.clock().UTC())
	if err != nil {
		h.fail(w, r, "failed to compute usage", err)
		return
	}

	var remaining any = "unlimited"
	if plan.MonthlyRequestLimit > 0 {
		remaining = max(plan.MonthlyRequestLimit-stats.CurrentMonth.Requests, 0)
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, &LegacyUsageResponse{
		LicenseKey: lic.Key,
		Plan:       plan.Name,
		CurrentMonth: LegacyMonth{
			Requests:          stats.CurrentMonth.Requests,
			Tokens:            stats.CurrentMonth.Tokens,
			AvgResponseTimeMS: stats.CurrentMonth.AvgResponseTimeMS,
		},
		Limits: LegacyLimits{
			MonthlyRequests:   plan.MonthlyRequestLimit,
			RequestsRemaining: remaining,
		},
		Period: stats.Period,
	})
}

func (h *UsageHandlers) licenseFromRequest(w http.ResponseWriter, r *http.Request) (*licensing.License, *licensing.Plan, bool) {
	lic, ok := middleware.LicenseFromContext(r.Context())
	if !ok {
		_ = proxy.WriteErrorResponse(w, http.StatusUnauthorized, MessageKeyRequired)
		return nil, nil, false
	}
	plan, ok := middleware.PlanFromContext(r.Context())
	if !ok {
		h.fail(w, r, "license without plan in context", errors.New("missing plan"))
		return nil, nil, false
	}
	return lic, plan, true
}

func (h *UsageHandlers) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	_ = proxy.WriteErrorResponse(w, http.StatusInternalServerError, proxy.MessageInternal)
}

// parseDays reads the days query parameter, falling back to the default on
// anything that is not a positive integer.
func parseDays(raw string) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return limits.DefaultHistoryDays
	}
	return limits.ClampHistoryDays(days)
}

func knownProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if slices.Contains(config.KnownProviders(), name) {
		return name
	}
	return ""
}
