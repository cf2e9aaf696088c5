package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Right is the tradable listing a room may negotiate over. Only its status is
// touched by the deal-room workflow.
type Right struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID         `gorm:"column:owner_id;type:uuid;not null"`
	Title     string            `gorm:"column:title;type:text;not null"`
	Status    enums.RightStatus `gorm:"column:status;type:right_status;not null;default:'draft'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Right) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
