package storage

import (
	"context"
	"errors"
	"time"

	"chatello/gateway/pkg/licensing"
)

// TimeRange selects ledger records with From <= CreatedAt <= To. Zero
// bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// UsageTotals is a rollup of usage records.
type UsageTotals struct {
	Requests          int64
	Tokens            int64
	AvgResponseTimeMS float64
}

// DailyBucket is the usage of one license for one UTC day and provider.
type DailyBucket struct {
	// Date is the UTC day formatted as YYYY-MM-DD.
	Date              string
	Provider          string
	Requests          int64
	Tokens            int64
	AvgResponseTimeMS float64
}

// UsageQuery selects usage records for listing.
type UsageQuery struct {
	LicenseID string
	Range     TimeRange
	// Provider filters on provider name when non-empty.
	Provider string
	// Limit caps the number of records; 0 means no cap.
	Limit int
}

// LicenseFilter selects licenses for listing.
type LicenseFilter struct {
	Status     licensing.Status
	PlanID     string
	CustomerID string
}

// Counts holds collection sizes reported by the admin health endpoint.
type Counts struct {
	Plans          int64 `json:"plans"`
	Customers      int64 `json:"customers"`
	Licenses       int64 `json:"licenses"`
	ActiveLicenses int64 `json:"active_licenses"`
	UsageRecords   int64 `json:"usage_records"`
}

// Ledger is the append-only log of metered requests.
type Ledger interface {
	// AppendUsage inserts a record. A missing ID or CreatedAt is filled in.
	AppendUsage(ctx context.Context, rec *licensing.UsageRecord) error

	// PatchTokens replaces the token count of an existing record.
	PatchTokens(ctx context.Context, id string, tokens int64, estimated bool) error

	// CountRequests counts records of a license inside r.
	CountRequests(ctx context.Context, licenseID string, r TimeRange) (int64, error)

	// SumUsage rolls up records of a license inside r.
	SumUsage(ctx context.Context, licenseID string, r TimeRange) (UsageTotals, error)

	// ListUsage returns matching records, newest first.
	ListUsage(ctx context.Context, q UsageQuery) ([]*licensing.UsageRecord, error)

	// DailyUsage groups records of a license by UTC day and provider,
	// newest day first. provider filters when non-empty.
	DailyUsage(ctx context.Context, licenseID string, r TimeRange, provider string) ([]DailyBucket, error)

	// SumUsageAll rolls up records of every license inside r.
	SumUsageAll(ctx context.Context, r TimeRange) (UsageTotals, error)

	// PruneUsage deletes records created before cutoff.
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}

// Store is the full persistence interface of the gateway.
type Store interface {
	Ledger
	licensing.PlanStore
	licensing.LicenseStore
	licensing.CustomerStore

	// UpsertPlan inserts a plan or updates the plan with the same name.
	// The stored ID is written back into p.
	UpsertPlan(ctx context.Context, p *licensing.Plan) error

	// CreateCustomer inserts a customer. It returns
	// licensing.ErrCustomerExists when the email is taken.
	CreateCustomer(ctx context.Context, c *licensing.Customer) error
	GetCustomerByEmail(ctx context.Context, email string) (*licensing.Customer, error)

	GetLicense(ctx context.Context, id string) (*licensing.License, error)
	ListLicenses(ctx context.Context, f LicenseFilter) ([]*licensing.License, error)

	Counts(ctx context.Context) (Counts, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources. Close is idempotent.
	Close() error
}

// DayKey formats t as the UTC day used by DailyBucket.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// toMillis converts t to UTC milliseconds; zero maps to zero.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ErrClosed is returned by Ping after Close.
var ErrClosed = errors.New("storage: store is closed")
