package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

const (
	outboxRetentionDays = 14
	dlqRetentionDays    = 90
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	DLQ        dlqRetentionRepo
	Retention  int
	// DLQRetention is in days. Dead letters outlive published rows so
	// failures can still be investigated.
	DLQRetention int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob deletes outbox rows that were published before the
// retention window and, when a DLQ repository is given, expired dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = dlqRetentionDays
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		retention:    retention,
		dlqRetention: dlqRetention,
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	dlq          dlqRetentionRepo
	retention    int
	dlqRetention int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return 24 * time.Hour }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.AddDate(0, 0, -j.retention)
	dlqCutoff := now.AddDate(0, 0, -j.dlqRetention)
	var deleted, dlqDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if deleted, err = j.repo.DeletePublishedBefore(tx, cutoff); err != nil {
			return err
		}
		if j.dlq == nil {
			return nil
		}
		dlqDeleted, err = j.dlq.DeleteFailedBefore(tx, dlqCutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"retention_days":   j.retention,
		"rows_deleted":     deleted,
		"dlq_rows_deleted": dlqDeleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
