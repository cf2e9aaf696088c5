package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

var errTxRequired = errors.New("transaction required")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// InsertOnce queues event unless the once-per-aggregate index already holds
// one of its type. It uses ON CONFLICT DO NOTHING so a duplicate never aborts
// the caller's transaction.
func (r *Repository) InsertOnce(tx *gorm.DB, event models.OutboxEvent) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	return result.RowsAffected > 0, result.Error
}

// FetchUnpublishedForPublish claims the oldest unpublished rows that still have
// attempts left. Concurrent publishers skip rows another transaction holds.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	query := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	err := query.
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx pins attempt_count at the terminal value so the row is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	if tx == nil {
		return errTxRequired
	}
	updates := map[string]any{
		"attempt_count": terminalAttempts,
	}
	if err != nil {
		updates["last_error"] = err.Error()
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// onceEventTypes back the once-per-aggregate unique index; retention keeps
// them so the guard stays in force.
var onceEventTypes = []enums.OutboxEventType{
	enums.EventDocumentFullySigned,
	enums.EventSettlementCreated,
}

func isOnceEventType(t enums.OutboxEventType) bool {
	for _, candidate := range onceEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// DeletePublishedBefore removes published rows older than cutoff.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	result := tx.
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Where("event_type NOT IN ?", onceEventTypes).
		Delete(&models.OutboxEvent{})
	return result.RowsAffected, result.Error
}
