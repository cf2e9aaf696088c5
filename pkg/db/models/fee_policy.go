package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// FeePolicy is a named rate and fixed-fee rule read by the settlement cascade.
type FeePolicy struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string               `gorm:"column:name;type:text;not null"`
	RatePercent  decimal.Decimal      `gorm:"column:rate_percent;type:numeric(7,4);not null"`
	FixedFee     decimal.Decimal      `gorm:"column:fixed_fee;type:numeric(18,2);not null;default:0"`
	ApplicableTo enums.FeePolicyScope `gorm:"column:applicable_to;type:fee_policy_scope;not null;default:'all'"`
	IsActive     bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *FeePolicy) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
