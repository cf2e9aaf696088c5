package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Repository persists settlements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	ExistsForDocument(ctx context.Context, documentID uuid.UUID) (bool, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Settlement, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, paidAt *time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.WithContext(ctx).First(&settlement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&settlement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) ExistsForDocument(ctx context.Context, documentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Settlement, error) {
	var settlements []models.Settlement
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&settlements).Error
	return settlements, err
}

// UpdateStatus applies from -> to only while the row still holds from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, paidAt *time.Time) (int64, error) {
	updates := map[string]any{"status": to}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
