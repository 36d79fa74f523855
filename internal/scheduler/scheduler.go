// Package scheduler drives the poll loop. Cycles run strictly one at a
// time: a slow relay or store must never let two cycles interleave their
// reconcile-then-append sequences.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// CycleRunner executes one poll cycle against the relay and store.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler runs the ingest cycle at a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler that runs the given cycle every interval.
func New(runner CycleRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// An overrunning cycle skips the next tick instead of overlapping it.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job, runs it once immediately, and starts the
// scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(func() {
		cycleCtx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()

		if err := s.runner.RunCycle(cycleCtx); err != nil {
			s.logger.Error("poll cycle failed", "error", err)
			return
		}
		s.logger.Info("poll cycle completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the scheduler, waiting for a running cycle to finish.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
