package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/telemetry/logging"
)

// Validation failure messages.
const (
	MessageKeyRequired     = "License key required"
	MessageLicenseNotFound = "License not found"
	MessageLicenseExpired  = "License expired"
	MessageValidateFailed  = "Validation failed"
)

// defaultFoundersBadge is used when the founders plan carries no badge.
const defaultFoundersBadge = "founders_member"

// LicenseFinder resolves and checks license keys.
type LicenseFinder interface {
	FindActiveLicense(ctx context.Context, key string, now time.Time) (*licensing.License, error)
}

// PlanGetter loads plans by ID.
type PlanGetter interface {
	GetPlan(ctx context.Context, id string) (*licensing.Plan, error)
}

// CustomerGetter loads customers by ID.
type CustomerGetter interface {
	GetCustomer(ctx context.Context, id string) (*licensing.Customer, error)
}

// SeatCounter reports allocation on seat-limited plans.
type SeatCounter interface {
	Seats(ctx context.Context, plan *licensing.Plan) (licensing.SeatUsage, error)
}

// ValidateHandler answers POST /api/validate.
type ValidateHandler struct {
	licenses  LicenseFinder
	plans     PlanGetter
	customers CustomerGetter
	seats     SeatCounter
	header    string
	clock     func() time.Time
	logger    *slog.Logger
}

// NewValidateHandler creates a license validation handler.
func NewValidateHandler(licenses LicenseFinder, plans PlanGetter, customers CustomerGetter, seats SeatCounter, header string, logger *slog.Logger) *ValidateHandler {
	return &ValidateHandler{
		licenses:  licenses,
		plans:     plans,
		customers: customers,
		seats:     seats,
		header:    header,
		clock:     time.Now,
		logger:    logging.OrDefault(logger),
	}
}

type validateRequest struct {
	LicenseKey string `json:"license_key"`
}

// ValidatedLicense is the license block of a validation response.
type ValidatedLicense struct {
	Key            string     `json:"key"`
	Status         string     `json:"status"`
	Domain         string     `json:"domain,omitempty"`
	ActivatedAt    time.Time  `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	LastCheck      *time.Time `json:"last_check"`
	IsLifetime     bool       `json:"is_lifetime"`
	IsFoundersDeal bool       `json:"is_founders_deal"`
}

// ValidatedPlan is the plan block of a validation response.
type ValidatedPlan struct {
	Name              string              `json:"name"`
	DisplayName       string              `json:"display_name"`
	Features          []licensing.Feature `json:"features"`
	MonthlyRequests   int64               `json:"monthly_requests"`
	RequestsPerMinute int64               `json:"requests_per_minute"`
	RequestsPerHour   int64               `json:"requests_per_hour"`
	MonthlyBudget     float64             `json:"monthly_budget"`
	MaxSites          int                 `json:"max_sites"`
	Price             float64             `json:"price"`
	Currency          string              `json:"currency"`
	IsLifetime        bool                `json:"is_lifetime"`
}

// ValidatedCustomer is the customer block of a validation response.
type ValidatedCustomer struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
}

// FoundersDeal describes the founders offer to its members.
type FoundersDeal struct {
	Badge             string `json:"badge"`
	TotalSold         int64  `json:"total_sold"`
	RemainingLicenses int64  `json:"remaining_licenses"`
	IsLimitedOffer    bool   `json:"is_limited_offer"`
	ThankYouMessage   string `json:"thank_you_message"`
}

// ValidateResponse is the success body of POST /api/validate.
type ValidateResponse struct {
	Valid          bool               `json:"valid"`
	License        ValidatedLicense   `json:"license"`
	Plan           ValidatedPlan      `json:"plan"`
	Customer       *ValidatedCustomer `json:"customer"`
	IsLifetime     bool               `json:"is_lifetime"`
	IsFoundersDeal bool               `json:"is_founders_deal"`
	FoundersDeal   *FoundersDeal      `json:"founders_deal,omitempty"`
}

// ServeHTTP implements http.Handler. The key is read from the license
// header, falling back to a license_key body field.
func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := proxy.ExtractLicenseKey(r, h.header)
	if key == "" && r.ContentLength != 0 {
		var body validateRequest
		if err := proxy.DecodeJSON(r, &body); err == nil {
			key = body.LicenseKey
		}
	}
	if key == "" {
		_ = proxy.WriteValidationFailure(w, http.StatusBadRequest, MessageKeyRequired)
		return
	}

	now := h.clock().UTC()
	lic, err := h.licenses.FindActiveLicense(ctx, key, now)
	if err != nil {
		h.writeLicenseError(w, r, err)
		return
	}

	plan, err := h.plans.GetPlan(ctx, lic.PlanID)
	if err != nil {
		h.fail(w, r, "failed to load plan", err)
		return
	}

	founders := plan.IsFoundersDeal()
	lifetime := plan.IsLifetime || founders
	resp := &ValidateResponse{
		Valid: true,
		License: ValidatedLicense{
			Key:            lic.Key,
			Status:         string(lic.Status),
			Domain:         lic.Domain,
			ActivatedAt:    lic.ActivatedAt,
			ExpiresAt:      lic.ExpiresAt,
			LastCheck:      lic.LastCheck,
			IsLifetime:     lifetime,
			IsFoundersDeal: founders,
		},
		Plan: ValidatedPlan{
			Name:              plan.Name,
			DisplayName:       plan.DisplayName,
			Features:          plan.Features,
			MonthlyRequests:   plan.MonthlyRequestLimit,
			RequestsPerMinute: plan.RequestsPerMinute,
			RequestsPerHour:   plan.RequestsPerHour,
			MonthlyBudget:     plan.MonthlyBudget,
			MaxSites:          plan.MaxSites,
			Price:             plan.Price,
			Currency:          plan.Currency,
			IsLifetime:        lifetime,
		},
		IsLifetime:     lifetime,
		IsFoundersDeal: founders,
	}

	cust, err := h.customers.GetCustomer(ctx, lic.CustomerID)
	switch {
	case err == nil:
		resp.Customer = &ValidatedCustomer{Email: cust.Email, Name: cust.Name, Company: cust.Company}
	case errors.Is(err, licensing.ErrCustomerNotFound):
		h.logger.WarnContext(ctx, "license references missing customer",
			"license_id", lic.ID,
			"customer_id", lic.CustomerID,
		)
	default:
		h.fail(w, r, "failed to load customer", err)
		return
	}

	if founders {
		deal, err := h.foundersDeal(ctx, plan)
		if err != nil {
			h.fail(w, r, "failed to count founders seats", err)
			return
		}
		resp.FoundersDeal = deal
	}

	_ = proxy.WriteJSONResponse(w, http.StatusOK, resp)
}

func (h *ValidateHandler) foundersDeal(ctx context.Context, plan *licensing.Plan) (*FoundersDeal, error) {
	seats, err := h.seats.Seats(ctx, plan)
	if err != nil {
		return nil, err
	}

	deal := &FoundersDeal{
		Badge:             plan.Metadata[licensing.MetaBadge],
		TotalSold:         seats.Sold,
		RemainingLicenses: seats.Remaining,
		IsLimitedOffer:    plan.SeatLimited(),
		ThankYouMessage:   plan.Metadata[licensing.MetaThankYouMessage],
	}
	if deal.Badge == "" {
		deal.Badge = defaultFoundersBadge
	}
	if deal.ThankYouMessage == "" {
		deal.ThankYouMessage = licensing.FoundersThankYou
	}
	return deal, nil
}

// writeLicenseError maps directory rejections to validation failures.
// Unknown keys are 404; inactive and expired licenses are 400.
func (h *ValidateHandler) writeLicenseError(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *licensing.StatusError
	switch {
	case errors.Is(err, licensing.ErrExpiredLicense):
		_ = proxy.WriteValidationFailure(w, http.StatusBadRequest, MessageLicenseExpired)
	case errors.As(err, &statusErr):
		_ = proxy.WriteValidationFailure(w, http.StatusBadRequest, "License is "+string(statusErr.Status))
	case errors.Is(err, licensing.ErrInvalidLicense):
		_ = proxy.WriteValidationFailure(w, http.StatusNotFound, MessageLicenseNotFound)
	default:
		h.fail(w, r, "license lookup failed", err)
	}
}

func (h *ValidateHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "error", err)
	_ = proxy.WriteValidationFailure(w, http.StatusInternalServerError, MessageValidateFailed)
}
