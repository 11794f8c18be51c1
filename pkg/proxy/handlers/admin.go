package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatello/gateway/pkg/analytics"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/security/auth"
	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/telemetry/logging"

	"github.com/go-chi/chi/v5"
)

// Admin error messages.
const (
	MessageInvalidStatus    = "Invalid license status"
	MessageStatusTransition = "Cannot change the status of a cancelled license"
)

// maxAnalyticsDays caps GET /api/admin/analytics.
const maxAnalyticsDays = 365

// AdminStore is the persistence the admin endpoints use. storage.Store
// implements it.
type AdminStore interface {
	CreateCustomer(ctx context.Context, c *licensing.Customer) error
	GetLicense(ctx context.Context, id string) (*licensing.License, error)
	UpdateLicenseStatus(ctx context.Context, id string, from, to licensing.Status, at time.Time) error
	ListPlans(ctx context.Context) ([]*licensing.Plan, error)
	PatchTokens(ctx context.Context, id string, tokens int64, estimated bool) error
	Counts(ctx context.Context) (storage.Counts, error)
	Ping(ctx context.Context) error
}

// LicenseAllocator issues licenses. *licensing.Allocator implements it.
type LicenseAllocator interface {
	SeatCounter
	Allocate(ctx context.Context, req licensing.AllocateRequest) (*licensing.License, error)
}

// SnapshotReader lists daily analytics. *analytics.Job implements it.
type SnapshotReader interface {
	Recent(ctx context.Context, days int, asOf time.Time) ([]*analytics.DailySnapshot, error)
}

// ProviderStatus reports which providers have credentials.
// *providerfactory.Manager implements it.
type ProviderStatus interface {
	Configured() map[string]bool
}

// AdminHandlers serves the admin API. Routes are expected to run behind
// auth.Middleware.
type AdminHandlers struct {
	store     AdminStore
	allocator LicenseAllocator
	snapshots SnapshotReader
	providers ProviderStatus
	version   string
	clock     func() time.Time
	logger    *slog.Logger
}

// AdminDependencies are the collaborators of the admin handlers. Snapshots
// may be nil when analytics is disabled.
type AdminDependencies struct {
	Store     AdminStore
	Allocator LicenseAllocator
	Snapshots SnapshotReader
	Providers ProviderStatus
	Version   string
	Logger    *slog.Logger
}

// NewAdminHandlers creates the admin handlers.
func NewAdminHandlers(deps AdminDependencies) *AdminHandlers {
	return &AdminHandlers{
		store:     deps.Store,
		allocator: deps.Allocator,
		snapshots: deps.Snapshots,
		providers: deps.Providers,
		version:   deps.Version,
		clock:     time.Now,
		logger:    logging.OrDefault(deps.Logger).With("component", "admin"),
	}
}

// CreateCustomerRequest is the body of POST /api/admin/customers.
type CreateCustomerRequest struct {
	Email   string `json:"email" validate:"required,email,max=255"`
	Name    string `json:"name" validate:"max=255"`
	Company string `json:"company" validate:"max=255"`
	Phone   string `json:"phone" validate:"max=50"`
	Country string `json:"country" validate:"omitempty,len=2"`
	Notes   string `json:"notes"`
}

// CreateLicenseRequest is the body of POST /api/admin/licenses.
type CreateLicenseRequest struct {
	CustomerID string            `json:"customer_id" validate:"required"`
	Plan       string            `json:"plan" validate:"required"`
	Domain     string            `json:"domain" validate:"max=255"`
	ExpiresAt  *time.Time        `json:"expires_at"`
	Metadata   map[string]string `json:"metadata"`
}

// UpdateStatusRequest is the body of PATCH /api/admin/licenses/{id}/status.
type UpdateStatusRequest struct {
	Status licensing.Status `json:"status" validate:"required"`
}

// PatchTokensRequest is the body of PATCH /api/admin/usage/{id}/tokens.
// Tokens replaces an estimated count once the real figure is known.
type PatchTokensRequest struct {
	Tokens    *int64 `json:"tokens" validate:"required,min=0"`
	Estimated bool   `json:"estimated"`
}

// PlanSummary is one entry of GET /api/admin/plans. Seats is set on
// seat-limited plans.
type PlanSummary struct {
	*licensing.Plan
	Seats *licensing.SeatUsage `json:"seats,omitempty"`
}

// CreateCustomer answers POST /api/admin/customers.
func (h *AdminHandlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var body CreateCustomerRequest
	if err := proxy.DecodeAndValidate(r, &body); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	now := h.clock().UTC()
	c := &licensing.Customer{
		Email:     strings.ToLower(strings.TrimSpace(body.Email)),
		Name:      body.Name,
		Company:   body.Company,
		Phone:     body.Phone,
		Country:   strings.ToUpper(body.Country),
		Notes:     body.Notes,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateCustomer(r.Context(), c); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	h.audit(r, "customer created", "customer_id", c.ID)
	_ = proxy.WriteJSONResponse(w, http.StatusCreated, map[string]any{
		"success":  true,
		"customer": c,
	})
}

// CreateLicense answers POST /api/admin/licenses.
func (h *AdminHandlers) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var body CreateLicenseRequest
	if err := proxy.DecodeAndValidate(r, &body); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	lic, err := h.allocator.Allocate(r.Context(), licensing.AllocateRequest{
		CustomerID: body.CustomerID,
		PlanName:   strings.ToLower(strings.TrimSpace(body.Plan)),
		Domain:     body.Domain,
		ExpiresAt:  body.ExpiresAt,
		Metadata:   body.Metadata,
	})
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	h.audit(r, "license allocated", "license_id", lic.ID, "plan", body.Plan)
	_ = proxy.WriteJSONResponse(w, http.StatusCreated, map[string]any{
		"success": true,
		"license": lic,
	})
}

// UpdateLicenseStatus answers PATCH /api/admin/licenses/{id}/status.
func (h *AdminHandlers) UpdateLicenseStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body UpdateStatusRequest
	if err := proxy.DecodeAndValidate(r, &body); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}
	if !body.Status.Valid() {
		_ = proxy.WriteErrorResponse(w, http.StatusBadRequest, MessageInvalidStatus)
		return
	}

	lic, err := h.store.GetLicense(ctx, id)
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}
	if !lic.Status.CanTransitionTo(body.Status) {
		_ = proxy.WriteErrorResponse(w, http.StatusConflict, MessageStatusTransition)
		return
	}

	if lic.Status != body.Status {
		if err := h.store.UpdateLicenseStatus(ctx, id, lic.Status, body.Status, h.clock().UTC()); err != nil {
			proxy.HandleError(w, r, err, h.logger)
			return
		}
		h.audit(r, "license status changed", "license_id", id, "from", lic.Status, "to", body.Status)
	}

	lic, err = h.store.GetLicense(ctx, id)
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"license": lic,
	})
}

// PatchUsageTokens answers PATCH /api/admin/usage/{id}/tokens. Request
// counts are unaffected; only token totals and budgets move.
func (h *AdminHandlers) PatchUsageTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body PatchTokensRequest
	if err := proxy.DecodeAndValidate(r, &body); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	if err := h.store.PatchTokens(ctx, id, *body.Tokens, body.Estimated); err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	h.audit(r, "usage tokens corrected", "usage_id", id, "tokens", *body.Tokens, "estimated", body.Estimated)
	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"id":        id,
		"tokens":    *body.Tokens,
		"estimated": body.Estimated,
	})
}

// ListPlans answers GET /api/admin/plans.
func (h *AdminHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plans, err := h.store.ListPlans(ctx)
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	out := make([]PlanSummary, 0, len(plans))
	for _, p := range plans {
		s := PlanSummary{Plan: p}
		if p.SeatLimited() {
			seats, err := h.allocator.Seats(ctx, p)
			if err != nil {
				proxy.HandleError(w, r, err, h.logger)
				return
			}
			s.Seats = &seats
		}
		out = append(out, s)
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"plans":   out,
	})
}

// Analytics answers GET /api/admin/analytics?days=.
func (h *AdminHandlers) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		_ = proxy.WriteErrorResponse(w, http.StatusNotFound, "Analytics disabled")
		return
	}

	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = 30
	}
	days = min(days, maxAnalyticsDays)

	snaps, err := h.snapshots.Recent(r.Context(), days, h.clock().UTC())
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"days":      days,
		"snapshots": snaps,
	})
}

// AdminHealthResponse is the body of GET /admin/health.
type AdminHealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Database  DatabaseHealth  `json:"database"`
	Providers map[string]bool `json:"providers"`
}

// DatabaseHealth reports store reachability and collection sizes.
type DatabaseHealth struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Counts *storage.Counts `json:"counts,omitempty"`
}

// Health answers GET /admin/health. An unreachable store degrades the
// status and returns 503.
func (h *AdminHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := &AdminHealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: h.clock().UTC(),
		Database:  DatabaseHealth{Status: "connected"},
		Providers: map[string]bool{},
	}
	if h.providers != nil {
		resp.Providers = h.providers.Configured()
	}

	status := http.StatusOK
	err := h.store.Ping(ctx)
	if err == nil {
		var counts storage.Counts
		counts, err = h.store.Counts(ctx)
		resp.Database.Counts = &counts
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "store health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = DatabaseHealth{Status: "error", Error: "database unavailable"}
		status = http.StatusServiceUnavailable
	}

	_ = proxy.WriteJSONResponse(w, status, resp)
}

func (h *AdminHandlers) audit(r *http.Request, msg string, args ...any) {
	if key, ok := auth.KeyFromContext(r.Context()); ok {
		args = append(args, "admin", key.Name)
	}
	h.logger.InfoContext(r.Context(), msg, args...)
}
