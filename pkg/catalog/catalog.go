package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"chatello/gateway/pkg/licensing"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// maxFileSize caps the catalog file read into memory.
const maxFileSize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// PlanSpec is one plan as written in the catalog file.
type PlanSpec struct {
	Name        string  `yaml:"name" validate:"required,lowercase,max=50"`
	DisplayName string  `yaml:"display_name" validate:"required"`
	Price       float64 `yaml:"price" validate:"gte=0"`
	Currency    string  `yaml:"currency" validate:"omitempty,len=3"`

	MonthlyRequests   int64   `yaml:"monthly_requests" validate:"gte=0"`
	RequestsPerMinute int64   `yaml:"requests_per_minute" validate:"gte=0"`
	RequestsPerHour   int64   `yaml:"requests_per_hour" validate:"gte=0"`
	MonthlyBudget     float64 `yaml:"monthly_budget" validate:"gte=0"`
	CostPer1KTokens   float64 `yaml:"cost_per_1000_tokens" validate:"gte=0"`

	Features []string `yaml:"features"`

	IsLifetime    bool  `yaml:"is_lifetime"`
	LifetimeLimit int64 `yaml:"lifetime_limit" validate:"gte=0"`
	MaxSites      int   `yaml:"max_sites" validate:"gte=-1"`

	// IsActive defaults to true when omitted.
	IsActive *bool `yaml:"is_active"`

	Metadata map[string]string `yaml:"metadata"`
}

// File is the parsed catalog file.
type File struct {
	Specs []PlanSpec `yaml:"plans" validate:"dive"`
}

// LoadError reports a catalog file that could not be read or parsed.
type LoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("catalog %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("catalog %s: %s", e.Path, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Load reads and validates the catalog at path.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{Path: path, Message: "not a regular file"}
	}
	if info.Size() > maxFileSize {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), maxFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Message: "invalid catalog", Cause: err}
	}
	return f, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*File, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("file contains invalid UTF-8 encoding")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Specs) == 0 {
		return nil, errors.New("catalog defines no plans")
	}
	if err := validate.Struct(&f); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(f.Specs))
	for _, p := range f.Specs {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("plan %q defined more than once", p.Name)
		}
		seen[p.Name] = struct{}{}

		if p.LifetimeLimit > 0 && !p.IsLifetime {
			return nil, fmt.Errorf("plan %q: lifetime_limit requires is_lifetime", p.Name)
		}
	}
	return &f, nil
}

// Plans converts the file into licensing plans stamped with now.
func (f *File) Plans(now time.Time) []*licensing.Plan {
	out := make([]*licensing.Plan, 0, len(f.Specs))
	for _, s := range f.Specs {
		out = append(out, s.plan(now))
	}
	return out
}

func (s PlanSpec) plan(now time.Time) *licensing.Plan {
	active := s.IsActive == nil || *s.IsActive
	currency := s.Currency
	if currency == "" {
		currency = "EUR"
	}

	features := make([]licensing.Feature, 0, len(s.Features))
	for _, f := range s.Features {
		features = append(features, licensing.Feature(f))
	}

	return &licensing.Plan{
		Name:                s.Name,
		DisplayName:         s.DisplayName,
		Price:               s.Price,
		Currency:            currency,
		MonthlyRequestLimit: s.MonthlyRequests,
		RequestsPerMinute:   s.RequestsPerMinute,
		RequestsPerHour:     s.RequestsPerHour,
		MonthlyBudget:       s.MonthlyBudget,
		CostPer1KTokens:     s.CostPer1KTokens,
		Features:            features,
		IsLifetime:          s.IsLifetime,
		LifetimeSeatLimit:   s.LifetimeLimit,
		MaxSites:            s.MaxSites,
		IsActive:            active,
		Metadata:            s.Metadata,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Store is the plan persistence the syncer writes to.
type Store interface {
	UpsertPlan(ctx context.Context, p *licensing.Plan) error
	ListPlans(ctx context.Context) ([]*licensing.Plan, error)
}

// Invalidator drops cached plans. *licensing.Registry implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, plans ...*licensing.Plan) error
}

// Syncer writes plan definitions into storage.
type Syncer struct {
	store       Store
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewSyncer creates a syncer. invalidator may be nil.
func NewSyncer(store Store, invalidator Invalidator, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:       store,
		invalidator: invalidator,
		logger:      logger.With("component", "catalog"),
		now:         time.Now,
	}
}

// SeedDefaults inserts the built-in plans when storage holds none. It
// reports whether anything was written.
func (s *Syncer) SeedDefaults(ctx context.Context) (bool, error) {
	existing, err := s.store.ListPlans(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list plans: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	if err := s.Apply(ctx, licensing.DefaultPlans(s.now().UTC())); err != nil {
		return false, err
	}
	s.logger.Info("seeded default plans")
	return true, nil
}

// Apply upserts plans by name and invalidates their cached entries.
func (s *Syncer) Apply(ctx context.Context, plans []*licensing.Plan) error {
	for _, p := range plans {
		if err := s.store.UpsertPlan(ctx, p); err != nil {
			return fmt.Errorf("failed to upsert plan %q: %w", p.Name, err)
		}
		s.logger.Debug("plan upserted", "plan", p.Name, "plan_id", p.ID)
	}

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, plans...); err != nil {
			// Cached entries expire on their own TTL.
			s.logger.Warn("failed to invalidate cached plans", "error", err)
		}
	}
	return nil
}

// SyncFile loads the catalog at path and applies it.
func (s *Syncer) SyncFile(ctx context.Context, path string) (int, error) {
	f, err := Load(path)
	if err != nil {
		return 0, err
	}
	plans := f.Plans(s.now().UTC())
	if err := s.Apply(ctx, plans); err != nil {
		return 0, err
	}
	s.logger.Info("plan catalog synced", "path", path, "plans", len(plans))
	return len(plans), nil
}
