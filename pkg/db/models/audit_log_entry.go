package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// AuditLogEntry is an append-only record of a state change inside a room.
// ActorID is nil for system-initiated changes.
type AuditLogEntry struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID     uuid.UUID             `gorm:"column:room_id;type:uuid;not null"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Action     enums.AuditAction     `gorm:"column:action;type:audit_action;not null"`
	TargetType enums.AuditTargetType `gorm:"column:target_type;type:audit_target_type;not null"`
	TargetID   *uuid.UUID            `gorm:"column:target_id;type:uuid"`
	Detail     json.RawMessage       `gorm:"column:detail;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log_entries"
}

func (a *AuditLogEntry) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
