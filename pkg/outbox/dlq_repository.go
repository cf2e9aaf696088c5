package outbox

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
)

const maxDLQErrorLen = 2048

// DLQRepository stores events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// DeleteFailedBefore prunes dead letters recorded before cutoff.
func (r *DLQRepository) DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	result := tx.Where("failed_at < ?", cutoff).Delete(&models.OutboxDLQ{})
	return result.RowsAffected, result.Error
}

// truncateDLQError caps message at maxDLQErrorLen bytes without splitting a rune.
func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	cut := maxDLQErrorLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
