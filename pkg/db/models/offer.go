package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Offer is a versioned price/terms proposal. Everything except the status
// fields is immutable once inserted.
type Offer struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID     uuid.UUID         `gorm:"column:room_id;type:uuid;not null"`
	CreatedBy  uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	Version    int               `gorm:"column:version;not null"`
	Price      string            `gorm:"column:price;type:numeric(18,2);not null"`
	Terms      string            `gorm:"column:terms;type:text;not null;default:''"`
	Message    *string           `gorm:"column:message;type:text"`
	Status     enums.OfferStatus `gorm:"column:status;type:offer_status;not null;default:'sent'"`
	ResolvedBy *uuid.UUID        `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt *time.Time        `gorm:"column:resolved_at"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Offer) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
