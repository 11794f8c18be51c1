package mongo

import (
	"time"

	"chatello/gateway/pkg/licensing"
)

type planDoc struct {
	ID                  string            `bson:"_id"`
	Name                string            `bson:"name"`
	DisplayName         string            `bson:"display_name"`
	Price               float64           `bson:"price"`
	Currency            string            `bson:"currency"`
	MonthlyRequestLimit int64             `bson:"monthly_requests"`
	RequestsPerMinute   int64             `bson:"requests_per_minute"`
	RequestsPerHour     int64             `bson:"requests_per_hour"`
	MonthlyBudget       float64           `bson:"monthly_budget"`
	CostPer1KTokens     float64           `bson:"cost_per_1000_tokens"`
	Features            []string          `bson:"features"`
	IsLifetime          bool              `bson:"is_lifetime"`
	LifetimeSeatLimit   int64             `bson:"lifetime_limit"`
	MaxSites            int               `bson:"max_sites"`
	IsActive            bool              `bson:"is_active"`
	Metadata            map[string]string `bson:"metadata,omitempty"`
	SeatsUsed           int64             `bson:"seats_used"`
	CreatedAt           time.Time         `bson:"created_at"`
	UpdatedAt           time.Time         `bson:"updated_at"`
}

func toPlanDoc(p *licensing.Plan) *planDoc {
	features := make([]string, len(p.Features))
	for i, f := range p.Features {
		features[i] = string(f)
	}
	return &planDoc{
		ID:                  p.ID,
		Name:                p.Name,
		DisplayName:         p.DisplayName,
		Price:               p.Price,
		Currency:            p.Currency,
		MonthlyRequestLimit: p.MonthlyRequestLimit,
		RequestsPerMinute:   p.RequestsPerMinute,
		RequestsPerHour:     p.RequestsPerHour,
		MonthlyBudget:       p.MonthlyBudget,
		CostPer1KTokens:     p.CostPer1KTokens,
		Features:            features,
		IsLifetime:          p.IsLifetime,
		LifetimeSeatLimit:   p.LifetimeSeatLimit,
		MaxSites:            p.MaxSites,
		IsActive:            p.IsActive,
		Metadata:            p.Metadata,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func fromPlanDoc(d *planDoc) *licensing.Plan {
	features := make([]licensing.Feature, len(d.Features))
	for i, f := range d.Features {
		features[i] = licensing.Feature(f)
	}
	return &licensing.Plan{
		ID:                  d.ID,
		Name:                d.Name,
		DisplayName:         d.DisplayName,
		Price:               d.Price,
		Currency:            d.Currency,
		MonthlyRequestLimit: d.MonthlyRequestLimit,
		RequestsPerMinute:   d.RequestsPerMinute,
		RequestsPerHour:     d.RequestsPerHour,
		MonthlyBudget:       d.MonthlyBudget,
		CostPer1KTokens:     d.CostPer1KTokens,
		Features:            features,
		IsLifetime:          d.IsLifetime,
		LifetimeSeatLimit:   d.LifetimeSeatLimit,
		MaxSites:            d.MaxSites,
		IsActive:            d.IsActive,
		Metadata:            d.Metadata,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

type customerDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	EmailNorm string    `bson:"email_normalized"`
	Name      string    `bson:"name"`
	Company   string    `bson:"company"`
	Phone     string    `bson:"phone"`
	Country   string    `bson:"country"`
	Notes     string    `bson:"notes"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func toCustomerDoc(c *licensing.Customer, norm string) *customerDoc {
	return &customerDoc{
		ID:        c.ID,
		Email:     c.Email,
		EmailNorm: norm,
		Name:      c.Name,
		Company:   c.Company,
		Phone:     c.Phone,
		Country:   c.Country,
		Notes:     c.Notes,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCustomerDoc(d *customerDoc) *licensing.Customer {
	return &licensing.Customer{
		ID:        d.ID,
		Email:     d.Email,
		Name:      d.Name,
		Company:   d.Company,
		Phone:     d.Phone,
		Country:   d.Country,
		Notes:     d.Notes,
		Status:    d.Status,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type licenseDoc struct {
	ID          string            `bson:"_id"`
	Key         string            `bson:"license_key"`
	CustomerID  string            `bson:"customer_id"`
	PlanID      string            `bson:"plan_id"`
	Domain      string            `bson:"domain"`
	Status      string            `bson:"status"`
	ActivatedAt time.Time         `bson:"activated_at"`
	ExpiresAt   *time.Time        `bson:"expires_at"`
	LastCheck   *time.Time        `bson:"last_check"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toLicenseDoc(l *licensing.License) *licenseDoc {
	return &licenseDoc{
		ID:          l.ID,
		Key:         l.Key,
		CustomerID:  l.CustomerID,
		PlanID:      l.PlanID,
		Domain:      l.Domain,
		Status:      string(l.Status),
		ActivatedAt: l.ActivatedAt,
		ExpiresAt:   l.ExpiresAt,
		LastCheck:   l.LastCheck,
		Metadata:    l.Metadata,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromLicenseDoc(d *licenseDoc) *licensing.License {
	return &licensing.License{
		ID:          d.ID,
		Key:         d.Key,
		CustomerID:  d.CustomerID,
		PlanID:      d.PlanID,
		Domain:      d.Domain,
		Status:      licensing.Status(d.Status),
		ActivatedAt: d.ActivatedAt.UTC(),
		ExpiresAt:   utcPtr(d.ExpiresAt),
		LastCheck:   utcPtr(d.LastCheck),
		Metadata:    d.Metadata,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type usageDoc struct {
	ID             string    `bson:"_id"`
	LicenseID      string    `bson:"license_id"`
	Endpoint       string    `bson:"endpoint"`
	Provider       string    `bson:"provider"`
	Model          string    `bson:"model"`
	TokensUsed     int64     `bson:"tokens_used"`
	Estimated      bool      `bson:"estimated"`
	ResponseTimeMS int64     `bson:"response_time_ms"`
	IPAddress      string    `bson:"ip_address"`
	UserAgent      string    `bson:"user_agent"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toUsageDoc(r *licensing.UsageRecord) *usageDoc {
	return &usageDoc{
		ID:             r.ID,
		LicenseID:      r.LicenseID,
		Endpoint:       r.Endpoint,
		Provider:       r.Provider,
		Model:          r.Model,
		TokensUsed:     r.TokensUsed,
		Estimated:      r.Estimated,
		ResponseTimeMS: r.ResponseTimeMS,
		IPAddress:      r.IPAddress,
		UserAgent:      r.UserAgent,
		CreatedAt:      r.CreatedAt,
	}
}

func fromUsageDoc(d *usageDoc) *licensing.UsageRecord {
	return &licensing.UsageRecord{
		ID:             d.ID,
		LicenseID:      d.LicenseID,
		Endpoint:       d.Endpoint,
		Provider:       d.Provider,
		Model:          d.Model,
		TokensUsed:     d.TokensUsed,
		Estimated:      d.Estimated,
		ResponseTimeMS: d.ResponseTimeMS,
		IPAddress:      d.IPAddress,
		UserAgent:      d.UserAgent,
		CreatedAt:      d.CreatedAt.UTC(),
	}
}
