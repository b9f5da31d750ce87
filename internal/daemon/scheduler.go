package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/build"
	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/logfields"
)

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance. A nil clock uses the real one.
func NewScheduler(clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []gocron.SchedulerOption{}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval. A run still going when the next one
// is due delays it instead of overlapping.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// Sweeper is the cleanup surface of the orchestrator.
type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (build.SweepReport, error)
}

// ScheduleJanitor sweeps expired cache entries and old sessions every
// interval. Each sweep is bounded by the interval.
func (s *Scheduler) ScheduleJanitor(ctx context.Context, sw Sweeper, interval, retention time.Duration) (string, error) {
	return s.ScheduleEvery("janitor", interval, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		report, err := sw.Sweep(sweepCtx, retention)
		if err != nil {
			s.logger.Warn("Janitor sweep failed", logfields.Job("janitor"), logfields.Error(err))
			return
		}
		if report.CacheExpired > 0 || report.SessionsRemoved > 0 {
			s.logger.Info("Janitor sweep",
				logfields.Job("janitor"),
				slog.Int("cache_expired", report.CacheExpired),
				slog.Int("sessions_removed", report.SessionsRemoved))
		}
	})
}
