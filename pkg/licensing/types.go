package licensing

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a license.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known license status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// HoldsSeat reports whether a license in this status occupies a seat on a
// seat-limited plan. Only cancelled licenses give their seat back.
func (s Status) HoldsSeat() bool {
	return s != StatusCancelled
}

// CanTransitionTo reports whether an admin may move a license from s to
// next. Cancelled is terminal; a cancelled license has released its seat.
func (s Status) CanTransitionTo(next Status) bool {
	return next.Valid() && s != StatusCancelled
}

// Feature is a capability flag carried by a plan.
type Feature string

const (
	FeatureAIIncluded      Feature = "ai_included"
	FeatureBringYourOwnKey Feature = "bring_your_own_key"
	FeatureFoundersBadge   Feature = "founders_badge"
	FeatureLifetimeLicense Feature = "lifetime_license"
	FeaturePrioritySupport Feature = "priority_support"
)

// Well-known plan metadata keys.
const (
	MetaBadge           = "badge"
	MetaThankYouMessage = "thank_you_message"
	MetaPromotion       = "promotion"
)

// Plan defines the limits and features of a tier. Zero limits mean
// unlimited.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`

	Price    float64 `json:"price"`
	Currency string  `json:"currency"`

	MonthlyRequestLimit int64   `json:"monthly_requests"`
	RequestsPerMinute   int64   `json:"requests_per_minute"`
	RequestsPerHour     int64   `json:"requests_per_hour"`
	MonthlyBudget       float64 `json:"monthly_budget"`
	CostPer1KTokens     float64 `json:"cost_per_1000_tokens"`

	Features []Feature `json:"features"`

	IsLifetime        bool  `json:"is_lifetime"`
	LifetimeSeatLimit int64 `json:"lifetime_limit,omitempty"`
	MaxSites          int   `json:"max_sites"`
	IsActive          bool  `json:"is_active"`

	// Metadata holds promotional data that business logic does not branch on.
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasFeature reports whether the plan carries feature f.
func (p *Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// SeatLimited reports whether allocation on this plan is capped.
func (p *Plan) SeatLimited() bool {
	return p.LifetimeSeatLimit > 0
}

// IsFoundersDeal reports whether the plan is the scarcity-limited founders
// offer.
func (p *Plan) IsFoundersDeal() bool {
	return p.Name == "founders" || p.HasFeature(FeatureFoundersBadge)
}

// Customer owns licenses.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Company   string    `json:"company,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Country   string    `json:"country,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// License is one customer's entitlement to a plan.
type License struct {
	ID         string `json:"id"`
	Key        string `json:"license_key"`
	CustomerID string `json:"customer_id"`
	PlanID     string `json:"plan_id"`
	Domain     string `json:"domain,omitempty"`
	Status     Status `json:"status"`

	ActivatedAt time.Time  `json:"activated_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastCheck   *time.Time `json:"last_check"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the license has an expiration before now.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// UsageRecord is one metered, proxied request.
type UsageRecord struct {
	ID             string    `json:"id"`
	LicenseID      string    `json:"license_id"`
	Endpoint       string    `json:"endpoint"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	TokensUsed     int64     `json:"tokens_used"`
	Estimated      bool      `json:"estimated"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
