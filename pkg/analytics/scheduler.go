package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the analytics job on a cron schedule. Each run snapshots
// the UTC day before the moment it fires.
type Scheduler struct {
	job      *Job
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler running job on schedule, a standard
// five-field cron expression such as "0 2 * * *".
func NewScheduler(job *Job, schedule string) *Scheduler {
	return &Scheduler{
		job:      job,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   slog.Default().With("component", "analytics.scheduler"),
	}
}

// Start schedules the job and returns. The scheduler stops when ctx is
// cancelled or Stop is called. An empty schedule leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("analytics schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("analytics scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule analytics: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("analytics scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	day := s.job.now().UTC().AddDate(0, 0, -1)
	s.logger.Info("starting scheduled analytics run", "date", DayKey(day))

	if _, err := s.job.Run(ctx, day); err != nil {
		s.logger.Error("scheduled analytics run failed", "error", err)
	}
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("analytics scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or nil when nothing is scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
