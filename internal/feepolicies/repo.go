package feepolicies

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
)

// Repository is a read-only view over fee policies.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	MostRecentActive(ctx context.Context) (*models.FeePolicy, error)
	ListActive(ctx context.Context) ([]models.FeePolicy, error)
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

// MostRecentActive returns nil without error when no active policy exists.
func (r *repository) MostRecentActive(ctx context.Context) (*models.FeePolicy, error) {
	var policy models.FeePolicy
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.FeePolicy, error) {
	var policies []models.FeePolicy
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&policies).Error
	return policies, err
}
