package analytics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "analytics", "snapshots.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	generated := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	snap := &DailySnapshot{
		Date:            "2026-03-10",
		TotalCustomers:  12,
		ActiveLicenses:  9,
		PayingCustomers: 8,
		MRR:             63.92,
		ARR:             767.04,
		OneTimeRevenue:  58,
		RevenueByPlan: map[string]PlanRevenue{
			"pro":      {Count: 8, Revenue: 63.92},
			"founders": {Count: 2, Revenue: 58},
		},
		Requests:    340,
		Tokens:      120000,
		Cost:        0.18,
		GeneratedAt: generated,
	}
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := s.GetSnapshot(ctx, "2026-03-10")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got.MRR != 63.92 || got.PayingCustomers != 8 || got.Tokens != 120000 {
		t.Errorf("Unexpected snapshot: %+v", got)
	}
	if got.RevenueByPlan["founders"].Revenue != 58 {
		t.Errorf("Expected founders revenue 58, got %+v", got.RevenueByPlan)
	}
	if !got.GeneratedAt.Equal(generated) {
		t.Errorf("Expected generated_at %v, got %v", generated, got.GeneratedAt)
	}

	snap.MRR = 71.91
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot upsert failed: %v", err)
	}
	got, _ = s.GetSnapshot(ctx, "2026-03-10")
	if got.MRR != 71.91 {
		t.Errorf("Expected upserted MRR 71.91, got %v", got.MRR)
	}

	for _, date := range []string{"2026-03-08", "2026-03-09"} {
		if err := s.SaveSnapshot(ctx, &DailySnapshot{Date: date, RevenueByPlan: map[string]PlanRevenue{}}); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}
	list, err := s.ListSnapshots(ctx, "2026-03-09", "2026-03-31")
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(list) != 2 || list[0].Date != "2026-03-10" {
		t.Errorf("Expected 2 snapshots newest first, got %d", len(list))
	}

	deleted, err := s.PruneSnapshots(ctx, "2026-03-10")
	if err != nil {
		t.Fatalf("PruneSnapshots failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 pruned snapshots, got %d", deleted)
	}
	if _, err := s.GetSnapshot(ctx, "2026-03-08"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("Expected error for empty path")
	}
}
