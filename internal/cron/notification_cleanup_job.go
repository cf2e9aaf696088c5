package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

const (
	notificationRetentionDays = 30
	notificationCleanupBatch  = 500
)

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationsCleanupRepo
	Retention  int
	// BatchSize caps the rows removed per statement so a large backlog
	// never holds a long lock on the inbox table.
	BatchSize int
}

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// NewNotificationCleanupJob purges read inbox entries past the retention window.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("notifications repository required")
	}
	job := &notificationCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = notificationRetentionDays
	}
	if job.batch <= 0 {
		job.batch = notificationCleanupBatch
	}
	return job, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	repo      notificationsCleanupRepo
	retention int
	batch     int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Every() time.Duration { return 24 * time.Hour }

// Run deletes in batches until a short batch signals the backlog is gone.
// Rows removed before a failure stay removed.
func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)

	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted, err := j.repo.DeleteReadBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("notification cleanup after %d rows: %w", total, err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   total,
		"batches":        batches,
	})
	j.logg.Info(logCtx, "notification cleanup complete")
	return nil
}
