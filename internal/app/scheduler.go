/**
 * @description
 * Cron scheduler setup for housekeeping jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/vishwadoshi-19/zense-staff/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the
// number of jobs that were scheduled.
func (s *Scheduler) Start() int {
	entries := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"sync ongoing jobs", s.config.SyncOngoingJobsSchedule, s.jobs.SyncOngoingJobs},
		{"report open shifts", s.config.ReportOpenShiftsSchedule, s.jobs.ReportOpenShifts},
		{"prune outbox", s.config.PruneOutboxSchedule, s.jobs.PruneOutbox},
	}

	scheduled := 0
	for _, e := range entries {
		if e.schedule == "" {
			s.logger.Info("job disabled", "job", e.name)
			continue
		}
		if _, err := s.cron.AddFunc(e.schedule, e.run); err != nil {
			s.logger.Error("failed to schedule job", "job", e.name, "schedule", e.schedule, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", e.name, "schedule", e.schedule)
		scheduled++
	}

	s.cron.Start()
	return scheduled
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
