/**
 * @description
 * Scheduled housekeeping jobs: ongoing-job flags, open shift reporting and
 * outbox pruning.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/vishwadoshi-19/zense-staff/internal/config"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

// HousekeepingRepository defines database operations needed by the jobs.
type HousekeepingRepository interface {
	SyncOngoingJobs(ctx context.Context) (int64, error)
	ListOpenShifts(ctx context.Context, date time.Time) ([]store.OpenShift, error)
	PruneSent(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo     HousekeepingRepository
	logger   *slog.Logger
	config   config.Config
	location *time.Location
	now      func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo HousekeepingRepository, logger *slog.Logger, cfg config.Config, location *time.Location) *Jobs {
	if location == nil {
		location = time.UTC
	}
	return &Jobs{
		repo:     repo,
		logger:   logger,
		config:   cfg,
		location: location,
		now:      time.Now,
	}
}

// SyncOngoingJobs refreshes each user's ongoing-job flag from the jobs table.
func (j *Jobs) SyncOngoingJobs() {
	j.logger.Info("starting ongoing job sync")
	ctx := context.Background()

	changed, err := j.repo.SyncOngoingJobs(ctx)
	if err != nil {
		j.logger.Error("failed to sync ongoing jobs", "error", err)
		return
	}

	j.logger.Info("ongoing job sync finished", "updated", changed)
}

// ReportOpenShifts logs yesterday's records that were never clocked out.
func (j *Jobs) ReportOpenShifts() {
	j.logger.Info("starting open shift report")
	ctx := context.Background()

	yesterday := j.now().In(j.location).AddDate(0, 0, -1)
	day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)

	shifts, err := j.repo.ListOpenShifts(ctx, day)
	if err != nil {
		j.logger.Error("failed to list open shifts", "error", err)
		return
	}

	if len(shifts) == 0 {
		j.logger.Info("no open shifts", "date", day.Format("2006-01-02"))
		return
	}

	for _, s := range shifts {
		j.logger.Warn("shift left open", "user_id", s.UserID, "date", s.Date, "clock_ins", s.ClockIns, "clock_outs", s.ClockOuts)
	}
	j.logger.Info("open shift report finished", "count", len(shifts))
}

// PruneOutbox removes published events older than the retention window.
func (j *Jobs) PruneOutbox() {
	j.logger.Info("starting outbox prune")
	ctx := context.Background()

	retention := j.config.OutboxRetention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	removed, err := j.repo.PruneSent(ctx, retention)
	if err != nil {
		j.logger.Error("failed to prune outbox", "error", err)
		return
	}

	j.logger.Info("outbox prune finished", "removed", removed)
}
