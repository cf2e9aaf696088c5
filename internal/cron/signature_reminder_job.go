package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

const (
	signatureReminderBatch = 200
	signatureReminderEvery = 15 * time.Minute
)

type SignatureReminderJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository signatures.Repository
	Notifier   notifications.Notifier
	BatchSize  int
}

// NewSignatureReminderJob notifies signers whose pending request has passed
// its deadline. Deadlines are advisory: the request stays pending and each
// signature round is reminded at most once.
func NewSignatureReminderJob(params SignatureReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("signatures repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = signatureReminderBatch
	}
	return &signatureReminderJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repository,
		notifier: params.Notifier,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type signatureReminderJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     signatures.Repository
	notifier notifications.Notifier
	batch    int
	now      func() time.Time
}

func (j *signatureReminderJob) Name() string { return "signature-reminders" }

func (j *signatureReminderJob) Every() time.Duration { return signatureReminderEvery }

func (j *signatureReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var overdue []signatures.OverdueRequest
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		rows, err := repo.ListOverdue(ctx, now, j.batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.RequestID)
		}
		if _, err := repo.MarkReminded(ctx, ids, now); err != nil {
			return err
		}
		overdue = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("signature reminders: %w", err)
	}

	// delivery happens after commit so a failed insert never re-arms the reminder
	notices := make([]notifications.Notice, 0, len(overdue))
	for _, row := range overdue {
		roomID := row.RoomID
		notices = append(notices, notifications.Notice{
			UserID:  row.SignerID,
			RoomID:  &roomID,
			Kind:    enums.NotificationKindSignatureOverdue,
			Message: fmt.Sprintf("Your signature on %q was due %s", row.DocumentName, row.Deadline.UTC().Format(time.DateOnly)),
			Link:    notifications.RoomLink(roomID),
		})
	}
	if len(notices) > 0 {
		j.notifier.Notify(ctx, notices...)
	}

	j.logg.Info(j.logg.WithField(ctx, "reminders_sent", len(notices)), "signature reminders complete")
	return nil
}
