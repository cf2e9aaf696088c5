package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Room is the workflow unit tracking one negotiation from setup to settlement.
type Room struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title     string           `gorm:"column:title;type:text;not null"`
	Type      enums.RoomType   `gorm:"column:type;type:room_type;not null"`
	Status    enums.RoomStatus `gorm:"column:status;type:room_status;not null;default:'setup'"`
	RightID   *uuid.UUID       `gorm:"column:right_id;type:uuid"`
	CreatedBy uuid.UUID        `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// RoomParticipant links a user to a room under a negotiating role.
type RoomParticipant struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID    uuid.UUID             `gorm:"column:room_id;type:uuid;not null"`
	UserID    uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	Role      enums.ParticipantRole `gorm:"column:role;type:participant_role;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (RoomParticipant) TableName() string {
	return "room_participants"
}

func (p *RoomParticipant) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
