package offers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Repository persists the offer ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	MaxVersion(ctx context.Context, roomID uuid.UUID) (int, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Offer, error)
	LatestAccepted(ctx context.Context, roomID uuid.UUID) (*models.Offer, error)
	Resolve(ctx context.Context, id uuid.UUID, to enums.OfferStatus, by uuid.UUID, at time.Time) (int64, error)
	SupersedeAccepted(ctx context.Context, roomID, except uuid.UUID, at time.Time) ([]uuid.UUID, error)
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

func (r *repository) Create(ctx context.Context, offer *models.Offer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// MaxVersion returns 0 for a room without offers.
func (r *repository) MaxVersion(ctx context.Context, roomID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error
	return max, err
}

func (r *repository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Offer, error) {
	var offers []models.Offer
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("version ASC").
		Find(&offers).Error
	return offers, err
}

func (r *repository) LatestAccepted(ctx context.Context, roomID uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status = ?", roomID, enums.OfferStatusAccepted).
		Order("created_at DESC").
		Order("version DESC").
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// Resolve moves a sent offer to its final status. Zero rows means the offer
// was no longer sent.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, to enums.OfferStatus, by uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND status = ?", id, enums.OfferStatusSent).
		Updates(map[string]any{
			"status":      to,
			"resolved_by": by,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

// SupersedeAccepted demotes every accepted offer in the room other than except.
func (r *repository) SupersedeAccepted(ctx context.Context, roomID, except uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("room_id = ? AND status = ? AND id <> ?", roomID, enums.OfferStatusAccepted, except).
		Order("version ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":     enums.OfferStatusSuperseded,
			"updated_at": at,
		}).Error
	return ids, err
}
