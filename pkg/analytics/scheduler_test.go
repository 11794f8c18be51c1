package analytics

import (
	"context"
	"testing"
	"time"

	"chatello/gateway/pkg/storage"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"nightly", "0 2 * * *", true, false},
		{"hourly", "0 * * * *", true, false},
		{"empty schedule", "", false, false},
		{"invalid schedule", "every night", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob(storage.NewMemoryStore(), NewMemoryStore(), 90, nil, nil)
			s := NewScheduler(job, tt.schedule)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}

			if tt.wantRunning {
				next := s.NextRun()
				if next == nil {
					t.Fatal("NextRun() returned nil for running scheduler")
				}
				if !next.After(time.Now()) {
					t.Errorf("NextRun() = %v, want a future time", next)
				}
			}
			s.Stop()
			if s.IsRunning() {
				t.Error("Expected scheduler to stop")
			}
		})
	}
}

func TestScheduler_RunOnceSnapshotsPreviousDay(t *testing.T) {
	snapshots := NewMemoryStore()
	job := NewJob(storage.NewMemoryStore(), snapshots, 90, nil, nil)
	job.now = func() time.Time { return time.Date(2026, 4, 2, 2, 0, 0, 0, time.UTC) }

	NewScheduler(job, "0 2 * * *").runOnce(context.Background())

	if _, err := snapshots.GetSnapshot(context.Background(), "2026-04-01"); err != nil {
		t.Errorf("Expected snapshot for the previous day: %v", err)
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	job := NewJob(storage.NewMemoryStore(), NewMemoryStore(), 90, nil, nil)
	s := NewScheduler(job, "0 2 * * *")

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("Expected scheduler to stop after context cancellation")
	}
}
