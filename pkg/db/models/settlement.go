package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Settlement is a payer to payee monetary obligation. Rows in completed
// status are never updated again.
type Settlement struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID            uuid.UUID              `gorm:"column:room_id;type:uuid;not null"`
	DocumentID        *uuid.UUID             `gorm:"column:document_id;type:uuid"`
	OfferID           *uuid.UUID             `gorm:"column:offer_id;type:uuid"`
	LicenseID         *uuid.UUID             `gorm:"column:license_id;type:uuid"`
	PayerID           uuid.UUID              `gorm:"column:payer_id;type:uuid;not null"`
	PayeeID           uuid.UUID              `gorm:"column:payee_id;type:uuid;not null"`
	Amount            string                 `gorm:"column:amount;type:numeric(18,2);not null"`
	PaymentType       enums.PaymentType      `gorm:"column:payment_type;type:payment_type;not null"`
	Status            enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null;default:'pending'"`
	PaidAt            *time.Time             `gorm:"column:paid_at"`
	Note              *string                `gorm:"column:note;type:text"`
	FeePolicySnapshot json.RawMessage        `gorm:"column:fee_policy_snapshot;type:jsonb"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Settlement) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
