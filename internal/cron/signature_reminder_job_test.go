package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type fakeSignatureRepo struct {
	signatures.Repository
	overdue   []signatures.OverdueRequest
	listErr   error
	markErr   error
	listedAt  time.Time
	reminded  []uuid.UUID
	limitSeen int
}

func (f *fakeSignatureRepo) WithTx(*gorm.DB) signatures.Repository { return f }

func (f *fakeSignatureRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]signatures.OverdueRequest, error) {
	f.listedAt = now
	f.limitSeen = limit
	return f.overdue, f.listErr
}

func (f *fakeSignatureRepo) MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.reminded = append(f.reminded, ids...)
	return int64(len(ids)), nil
}

type capturingNotifier struct {
	notices []notifications.Notice
}

func (c *capturingNotifier) Notify(ctx context.Context, notices ...notifications.Notice) {
	c.notices = append(c.notices, notices...)
}

func newSignatureReminderJob(t *testing.T, repo *fakeSignatureRepo, notifier *capturingNotifier) *signatureReminderJob {
	t.Helper()
	jobIface, err := NewSignatureReminderJob(SignatureReminderJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         fakeTxRunner{},
		Repository: repo,
		Notifier:   notifier,
	})
	require.NoError(t, err)
	return jobIface.(*signatureReminderJob)
}

func TestSignatureReminderJobNotifiesEachOverdueSigner(t *testing.T) {
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	roomID := uuid.New()
	first := signatures.OverdueRequest{RequestID: uuid.New(), DocumentID: uuid.New(), DocumentName: "NDA", RoomID: roomID, SignerID: uuid.New(), Deadline: now.Add(-24 * time.Hour)}
	second := signatures.OverdueRequest{RequestID: uuid.New(), DocumentID: first.DocumentID, DocumentName: "NDA", RoomID: roomID, SignerID: uuid.New(), Deadline: now.Add(-24 * time.Hour)}
	repo := &fakeSignatureRepo{overdue: []signatures.OverdueRequest{first, second}}
	notifier := &capturingNotifier{}
	job := newSignatureReminderJob(t, repo, notifier)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, now, repo.listedAt)
	assert.Equal(t, signatureReminderBatch, repo.limitSeen)
	assert.ElementsMatch(t, []uuid.UUID{first.RequestID, second.RequestID}, repo.reminded)
	require.Len(t, notifier.notices, 2)
	for _, notice := range notifier.notices {
		assert.Equal(t, enums.NotificationKindSignatureOverdue, notice.Kind)
		require.NotNil(t, notice.RoomID)
		assert.Equal(t, roomID, *notice.RoomID)
		assert.Contains(t, notice.Message, "2026-05-01")
	}
	assert.Equal(t, first.SignerID, notifier.notices[0].UserID)
}

func TestSignatureReminderJobSkipsNotifyWhenNothingOverdue(t *testing.T) {
	repo := &fakeSignatureRepo{}
	notifier := &capturingNotifier{}
	job := newSignatureReminderJob(t, repo, notifier)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, repo.reminded)
	assert.Empty(t, notifier.notices)
}

func TestSignatureReminderJobDoesNotNotifyWhenMarkFails(t *testing.T) {
	repo := &fakeSignatureRepo{
		overdue: []signatures.OverdueRequest{{RequestID: uuid.New(), SignerID: uuid.New(), RoomID: uuid.New()}},
		markErr: errors.New("db down"),
	}
	notifier := &capturingNotifier{}
	job := newSignatureReminderJob(t, repo, notifier)

	require.Error(t, job.Run(context.Background()))
	assert.Empty(t, notifier.notices)
}

func TestSignatureReminderJobRequiresNotifier(t *testing.T) {
	_, err := NewSignatureReminderJob(SignatureReminderJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         fakeTxRunner{},
		Repository: &fakeSignatureRepo{},
	})
	require.Error(t, err)
}
