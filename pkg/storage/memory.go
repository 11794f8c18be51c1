package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"chatello/gateway/pkg/licensing"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process maps. Data is lost on
// restart.
type MemoryStore struct {
	mu        sync.RWMutex
	plans     map[string]*licensing.Plan
	customers map[string]*licensing.Customer
	licenses  map[string]*licensing.License
	usage     []*licensing.UsageRecord
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:     make(map[string]*licensing.Plan),
		customers: make(map[string]*licensing.Customer),
		licenses:  make(map[string]*licensing.License),
	}
}

func clonePlan(p *licensing.Plan) *licensing.Plan {
	cp := *p
	cp.Features = slices.Clone(p.Features)
	cp.Metadata = maps.Clone(p.Metadata)
	return &cp
}

func cloneLicense(l *licensing.License) *licensing.License {
	cp := *l
	cp.Metadata = maps.Clone(l.Metadata)
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		cp.ExpiresAt = &t
	}
	if l.LastCheck != nil {
		t := *l.LastCheck
		cp.LastCheck = &t
	}
	return &cp
}

// UpsertPlan implements Store.
func (m *MemoryStore) UpsertPlan(_ context.Context, p *licensing.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, existing := range m.plans {
		if existing.Name == p.Name {
			p.ID = id
			p.CreatedAt = existing.CreatedAt
			p.UpdatedAt = now
			m.plans[id] = clonePlan(p)
			return nil
		}
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.plans[p.ID] = clonePlan(p)
	return nil
}

// GetPlan implements licensing.PlanStore.
func (m *MemoryStore) GetPlan(_ context.Context, id string) (*licensing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, licensing.ErrPlanNotFound
	}
	return clonePlan(p), nil
}

// GetPlanByName implements licensing.PlanStore.
func (m *MemoryStore) GetPlanByName(_ context.Context, name string) (*licensing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.plans {
		if p.Name == name {
			return clonePlan(p), nil
		}
	}
	return nil, licensing.ErrPlanNotFound
}

// ListPlans implements licensing.PlanStore. Plans are ordered by price.
func (m *MemoryStore) ListPlans(_ context.Context) ([]*licensing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*licensing.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, clonePlan(p))
	}
	slices.SortFunc(out, func(a, b *licensing.Plan) int {
		return cmp.Or(cmp.Compare(a.Price, b.Price), strings.Compare(a.Name, b.Name))
	})
	return out, nil
}

// CreateCustomer implements Store.
func (m *MemoryStore) CreateCustomer(_ context.Context, c *licensing.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			return licensing.ErrCustomerExists
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

// GetCustomer implements licensing.CustomerStore.
func (m *MemoryStore) GetCustomer(_ context.Context, id string) (*licensing.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, licensing.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

// GetCustomerByEmail implements Store.
func (m *MemoryStore) GetCustomerByEmail(_ context.Context, email string) (*licensing.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.customers {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, licensing.ErrCustomerNotFound
}

// CreateLicense implements licensing.LicenseStore.
func (m *MemoryStore) CreateLicense(_ context.Context, l *licensing.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLicenseLocked(l)
}

// CreateLicenseWithinSeatLimit implements licensing.LicenseStore.
func (m *MemoryStore) CreateLicenseWithinSeatLimit(_ context.Context, l *licensing.License, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.countSeatsLocked(l.PlanID) >= limit {
		return licensing.ErrSeatsExhausted
	}
	return m.insertLicenseLocked(l)
}

func (m *MemoryStore) insertLicenseLocked(l *licensing.License) error {
	for _, existing := range m.licenses {
		if existing.Key == l.Key {
			return licensing.ErrDuplicateKey
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	m.licenses[l.ID] = cloneLicense(l)
	return nil
}

// CountSeats implements licensing.LicenseStore.
func (m *MemoryStore) CountSeats(_ context.Context, planID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countSeatsLocked(planID), nil
}

func (m *MemoryStore) countSeatsLocked(planID string) int64 {
	var n int64
	for _, l := range m.licenses {
		if l.PlanID == planID && l.Status.HoldsSeat() {
			n++
		}
	}
	return n
}

// GetLicense implements Store.
func (m *MemoryStore) GetLicense(_ context.Context, id string) (*licensing.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.licenses[id]
	if !ok {
		return nil, licensing.ErrInvalidLicense
	}
	return cloneLicense(l), nil
}

// GetLicenseByKey implements licensing.LicenseStore.
func (m *MemoryStore) GetLicenseByKey(_ context.Context, key string) (*licensing.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.licenses {
		if l.Key == key {
			return cloneLicense(l), nil
		}
	}
	return nil, licensing.ErrInvalidLicense
}

// ListLicenses implements Store. Licenses are ordered by creation time.
func (m *MemoryStore) ListLicenses(_ context.Context, f LicenseFilter) ([]*licensing.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*licensing.License
	for _, l := range m.licenses {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.PlanID != "" && l.PlanID != f.PlanID {
			continue
		}
		if f.CustomerID != "" && l.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, cloneLicense(l))
	}
	slices.SortFunc(out, func(a, b *licensing.License) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

// UpdateLicenseStatus implements licensing.LicenseStore.
func (m *MemoryStore) UpdateLicenseStatus(_ context.Context, id string, from, to licensing.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.licenses[id]
	if !ok {
		return licensing.ErrInvalidLicense
	}
	if l.Status != from {
		return licensing.ErrStatusConflict
	}
	l.Status = to
	l.UpdatedAt = at.UTC()
	return nil
}

// TouchLastCheck implements licensing.LicenseStore.
func (m *MemoryStore) TouchLastCheck(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.licenses[id]
	if !ok {
		return licensing.ErrInvalidLicense
	}
	t := at.UTC()
	l.LastCheck = &t
	return nil
}

// AppendUsage implements Ledger.
func (m *MemoryStore) AppendUsage(_ context.Context, rec *licensing.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.usage = append(m.usage, &cp)
	return nil
}

// PatchTokens implements Ledger.
func (m *MemoryStore) PatchTokens(_ context.Context, id string, tokens int64, estimated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.usage {
		if rec.ID == id {
			rec.TokensUsed = tokens
			rec.Estimated = estimated
			return nil
		}
	}
	return licensing.ErrUsageNotFound
}

func (m *MemoryStore) eachUsageLocked(licenseID string, r TimeRange, fn func(*licensing.UsageRecord)) {
	for _, rec := range m.usage {
		if licenseID != "" && rec.LicenseID != licenseID {
			continue
		}
		if !r.Contains(rec.CreatedAt) {
			continue
		}
		fn(rec)
	}
}

// CountRequests implements Ledger.
func (m *MemoryStore) CountRequests(_ context.Context, licenseID string, r TimeRange) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	m.eachUsageLocked(licenseID, r, func(*licensing.UsageRecord) { n++ })
	return n, nil
}

// SumUsage implements Ledger.
func (m *MemoryStore) SumUsage(_ context.Context, licenseID string, r TimeRange) (UsageTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked(licenseID, r), nil
}

// SumUsageAll implements Ledger.
func (m *MemoryStore) SumUsageAll(_ context.Context, r TimeRange) (UsageTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumLocked("", r), nil
}

func (m *MemoryStore) sumLocked(licenseID string, r TimeRange) UsageTotals {
	var totals UsageTotals
	var latency int64
	m.eachUsageLocked(licenseID, r, func(rec *licensing.UsageRecord) {
		totals.Requests++
		totals.Tokens += rec.TokensUsed
		latency += rec.ResponseTimeMS
	})
	if totals.Requests > 0 {
		totals.AvgResponseTimeMS = float64(latency) / float64(totals.Requests)
	}
	return totals
}

// ListUsage implements Ledger.
func (m *MemoryStore) ListUsage(_ context.Context, q UsageQuery) ([]*licensing.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*licensing.UsageRecord
	m.eachUsageLocked(q.LicenseID, q.Range, func(rec *licensing.UsageRecord) {
		if q.Provider != "" && rec.Provider != q.Provider {
			return
		}
		cp := *rec
		out = append(out, &cp)
	})
	slices.SortStableFunc(out, func(a, b *licensing.UsageRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DailyUsage implements Ledger.
func (m *MemoryStore) DailyUsage(_ context.Context, licenseID string, r TimeRange, provider string) ([]DailyBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type key struct{ date, provider string }
	type acc struct {
		requests, tokens, latency int64
	}
	groups := make(map[key]*acc)
	m.eachUsageLocked(licenseID, r, func(rec *licensing.UsageRecord) {
		if provider != "" && rec.Provider != provider {
			return
		}
		k := key{DayKey(rec.CreatedAt), rec.Provider}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.requests++
		a.tokens += rec.TokensUsed
		a.latency += rec.ResponseTimeMS
	})

	out := make([]DailyBucket, 0, len(groups))
	for k, a := range groups {
		out = append(out, DailyBucket{
			Date:              k.date,
			Provider:          k.provider,
			Requests:          a.requests,
			Tokens:            a.tokens,
			AvgResponseTimeMS: float64(a.latency) / float64(a.requests),
		})
	}
	SortBuckets(out)
	return out, nil
}

// PruneUsage implements Ledger.
func (m *MemoryStore) PruneUsage(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.usage[:0]
	var deleted int64
	for _, rec := range m.usage {
		if rec.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	clear(m.usage[len(kept):])
	m.usage = kept
	return deleted, nil
}

// Counts implements Store.
func (m *MemoryStore) Counts(_ context.Context) (Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := Counts{
		Plans:        int64(len(m.plans)),
		Customers:    int64(len(m.customers)),
		Licenses:     int64(len(m.licenses)),
		UsageRecords: int64(len(m.usage)),
	}
	for _, l := range m.licenses {
		if l.Status == licensing.StatusActive {
			c.ActiveLicenses++
		}
	}
	return c, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SortBuckets orders buckets newest day first, then by provider.
func SortBuckets(b []DailyBucket) {
	slices.SortFunc(b, func(x, y DailyBucket) int {
		return cmp.Or(strings.Compare(y.Date, x.Date), strings.Compare(x.Provider, y.Provider))
	})
}
