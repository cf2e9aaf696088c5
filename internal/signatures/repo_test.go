package signatures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealroom-backend/internal/testdb"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

func TestListOverdueReturnsPendingPastDeadlineOnce(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	repo := NewRepository(db)

	doc := &models.Document{
		RoomID:     uuid.New(),
		UploadedBy: uuid.New(),
		Type:       enums.DocumentTypeLicense,
		Name:       "Licensing agreement",
	}
	require.NoError(t, repo.CreateDocument(ctx, doc))

	now := time.Now().UTC()
	past := now.Add(-2 * time.Hour)
	future := now.Add(48 * time.Hour)
	late, onTime, signed := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, repo.UpsertPending(ctx, doc.ID, []uuid.UUID{late, signed}, &past))
	require.NoError(t, repo.UpsertPending(ctx, doc.ID, []uuid.UUID{onTime}, &future))

	signedReq, err := repo.FindRequest(ctx, doc.ID, signed)
	require.NoError(t, err)
	_, err = repo.SignRequest(ctx, signedReq.ID, nil, now)
	require.NoError(t, err)

	overdue, err := repo.ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, late, overdue[0].SignerID)
	require.Equal(t, doc.RoomID, overdue[0].RoomID)
	require.Equal(t, "Licensing agreement", overdue[0].DocumentName)

	marked, err := repo.MarkReminded(ctx, []uuid.UUID{overdue[0].RequestID}, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), marked)

	overdue, err = repo.ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, overdue)

	// a fresh signature round re-arms the reminder
	require.NoError(t, repo.UpsertPending(ctx, doc.ID, []uuid.UUID{late}, &past))
	overdue, err = repo.ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
}
