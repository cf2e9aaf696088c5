package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/angelmondragon/dealroom-backend/internal/testdb"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}

	parsed, err := ParseCursor(EncodeCursor(original))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, parsed.CreatedAt.Equal(original.CreatedAt))
	assert.Equal(t, original.ID, parsed.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	cursor, err := ParseCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	for _, raw := range []string{
		"not-base64!!",
		base64.RawURLEncoding.EncodeToString([]byte("no-pipe")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
		base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano) + "|nope")),
	} {
		_, err = ParseCursor(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestKeysetBuildsQualifiedPredicate(t *testing.T) {
	db := testdb.Open(t)
	cursor := &Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rooms []models.Room
		return Keyset(tx.Model(&models.Room{}).Where("rooms.status = ?", "draft"), "rooms", cursor).Find(&rooms)
	})
	assert.Contains(t, sql, "(rooms.created_at <")
	assert.Contains(t, sql, "rooms.id <")
	assert.Contains(t, sql, "ORDER BY rooms.created_at DESC,rooms.id DESC")

	sql = db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rooms []models.Room
		return Keyset(tx.Model(&models.Room{}), "", nil).Find(&rooms)
	})
	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, "ORDER BY created_at DESC,id DESC")
}

func TestKeysetWalksPagesInOrder(t *testing.T) {
	db := testdb.Open(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := models.AuditLogEntry{
			ID:         uuid.New(),
			RoomID:     uuid.New(),
			Action:     enums.AuditActionRoomCreated,
			TargetType: enums.AuditTargetRoom,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&entry).Error)
	}

	var seen []time.Time
	var cursor *Cursor
	for {
		var rows []models.AuditLogEntry
		require.NoError(t, Keyset(db.Model(&models.AuditLogEntry{}), "", cursor).Limit(LimitWithBuffer(2)).Find(&rows).Error)
		page, next := Trim(rows, 2, func(row models.AuditLogEntry) Cursor {
			return Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
		})
		for _, row := range page {
			seen = append(seen, row.CreatedAt)
		}
		if next == "" {
			break
		}
		parsed, err := ParseCursor(next)
		require.NoError(t, err)
		cursor = parsed
	}

	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i].Before(seen[i-1]))
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		id uuid.UUID
		at time.Time
	}
	now := time.Now().UTC()
	rows := []row{{uuid.New(), now}, {uuid.New(), now.Add(-time.Second)}, {uuid.New(), now.Add(-2 * time.Second)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, cursorOf)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)
	parsed, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].id, parsed.ID)

	page, next = Trim(rows[:2], 2, cursorOf)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
