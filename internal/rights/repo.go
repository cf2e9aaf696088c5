package rights

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Repository reads and updates right listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Right, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.RightStatus) (int64, error)
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

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Right, error) {
	var right models.Right
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&right).Error; err != nil {
		return nil, err
	}
	return &right, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.RightStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Right{}).
		Where("id = ?", id).
		Update("status", status)
	return result.RowsAffected, result.Error
}
