package licensing

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory store for package tests.
type fakeStore struct {
	mu        sync.Mutex
	plans     map[string]*Plan
	licenses  map[string]*License
	customers map[string]*Customer

	planReads  int
	failStatus error
	failTouch  error
	// collide forces the next n CreateLicense calls to report a duplicate.
	collide int
	// afterLookup runs once GetLicenseByKey has copied the license out.
	afterLookup func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:     make(map[string]*Plan),
		licenses:  make(map[string]*License),
		customers: make(map[string]*Customer),
	}
}

func (s *fakeStore) addPlan(p *Plan) *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	return p
}

func (s *fakeStore) GetPlan(_ context.Context, id string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planReads++
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) GetPlanByName(_ context.Context, name string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planReads++
	for _, p := range s.plans {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (s *fakeStore) ListPlans(_ context.Context) ([]*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) GetCustomer(_ context.Context, id string) (*Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (s *fakeStore) GetLicenseByKey(_ context.Context, key string) (*License, error) {
	s.mu.Lock()
	var found *License
	for _, l := range s.licenses {
		if l.Key == key {
			cp := *l
			found = &cp
			break
		}
	}
	hook := s.afterLookup
	s.mu.Unlock()

	if found == nil {
		return nil, ErrInvalidLicense
	}
	if hook != nil {
		hook()
	}
	return found, nil
}

func (s *fakeStore) UpdateLicenseStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatus != nil {
		return s.failStatus
	}
	l, ok := s.licenses[id]
	if !ok {
		return ErrInvalidLicense
	}
	if l.Status != from {
		return ErrStatusConflict
	}
	l.Status = to
	l.UpdatedAt = at
	return nil
}

func (s *fakeStore) TouchLastCheck(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch != nil {
		return s.failTouch
	}
	if l, ok := s.licenses[id]; ok {
		l.LastCheck = &at
	}
	return nil
}

func (s *fakeStore) CreateLicense(_ context.Context, l *License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(l)
}

func (s *fakeStore) CreateLicenseWithinSeatLimit(_ context.Context, l *License, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countLocked(l.PlanID) >= limit {
		return ErrSeatsExhausted
	}
	return s.insertLocked(l)
}

func (s *fakeStore) CountSeats(_ context.Context, planID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(planID), nil
}

func (s *fakeStore) insertLocked(l *License) error {
	if s.collide > 0 {
		s.collide--
		return ErrDuplicateKey
	}
	for _, existing := range s.licenses {
		if existing.Key == l.Key {
			return ErrDuplicateKey
		}
	}
	cp := *l
	s.licenses[l.ID] = &cp
	return nil
}

func (s *fakeStore) countLocked(planID string) int64 {
	var n int64
	for _, l := range s.licenses {
		if l.PlanID == planID && l.Status.HoldsSeat() {
			n++
		}
	}
	return n
}
