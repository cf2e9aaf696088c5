package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/pagination"
)

// Repository persists audit entries. There is no update or delete path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, params listParams) ([]models.AuditLogEntry, error)
}

type listParams struct {
	RoomID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the audit repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.AuditLogEntry, error) {
	query := r.db.WithContext(ctx).
		Model(&models.AuditLogEntry{}).
		Where("room_id = ?", params.RoomID)

	var rows []models.AuditLogEntry
	err := pagination.Keyset(query, "", params.Cursor).
		Limit(params.Limit).
		Find(&rows).Error
	return rows, err
}
