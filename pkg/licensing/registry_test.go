package licensing

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatello/gateway/pkg/cache"
)

func TestRegistry_CachesPlans(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.addPlan(&Plan{ID: "p1", Name: "pro", MonthlyRequestLimit: 1000})

	r := NewRegistry(s, cache.NewMemoryCache(), time.Minute, nil)

	for i := 0; i < 3; i++ {
		p, err := r.GetPlanByName(ctx, "pro")
		if err != nil {
			t.Fatalf("GetPlanByName failed: %v", err)
		}
		if p.MonthlyRequestLimit != 1000 {
			t.Errorf("Expected limit 1000, got %d", p.MonthlyRequestLimit)
		}
	}
	if s.planReads != 1 {
		t.Errorf("Expected 1 store read, got %d", s.planReads)
	}

	// Mutating a returned plan must not affect later reads.
	p, _ := r.GetPlanByName(ctx, "pro")
	p.MonthlyRequestLimit = 1

	s.mu.Lock()
	s.plans["p1"].MonthlyRequestLimit = 2000
	s.mu.Unlock()
	if err := r.Invalidate(ctx, p); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	p, err := r.GetPlanByName(ctx, "pro")
	if err != nil {
		t.Fatalf("GetPlanByName failed: %v", err)
	}
	if p.MonthlyRequestLimit != 2000 {
		t.Errorf("Expected refreshed limit 2000, got %d", p.MonthlyRequestLimit)
	}
}

func TestRegistry_NoCache(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.addPlan(&Plan{ID: "p1", Name: "pro"})

	r := NewRegistry(s, nil, 0, nil)
	if _, err := r.GetPlan(ctx, "p1"); err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if _, err := r.GetPlan(ctx, "p1"); err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	if s.planReads != 2 {
		t.Errorf("Expected 2 store reads, got %d", s.planReads)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry(newFakeStore(), cache.NewMemoryCache(), time.Minute, nil)
	if _, err := r.GetPlan(context.Background(), "missing"); !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("Expected ErrPlanNotFound, got %v", err)
	}
}
