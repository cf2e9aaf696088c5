package enums

import "fmt"

// SettlementStatus maps to the settlement_status enum in Postgres.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusCompleted  SettlementStatus = "completed"
	SettlementStatusFailed     SettlementStatus = "failed"
)

var validSettlementStatuses = []SettlementStatus{
	SettlementStatusPending,
	SettlementStatusProcessing,
	SettlementStatusCompleted,
	SettlementStatusFailed,
}

// String implements fmt.Stringer.
func (s SettlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical settlement_status enum.
func (s SettlementStatus) IsValid() bool {
	for _, candidate := range validSettlementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSettlementStatus converts raw input into SettlementStatus.
func ParseSettlementStatus(value string) (SettlementStatus, error) {
	for _, candidate := range validSettlementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid settlement status %q", value)
}

// PaymentType maps to the payment_type enum in Postgres.
type PaymentType string

const (
	PaymentTypeBankTransfer PaymentType = "bank_transfer"
	PaymentTypeWire         PaymentType = "wire"
	PaymentTypeEscrow       PaymentType = "escrow"
	PaymentTypeManual       PaymentType = "manual"
)

var validPaymentTypes = []PaymentType{
	PaymentTypeBankTransfer,
	PaymentTypeWire,
	PaymentTypeEscrow,
	PaymentTypeManual,
}

// IsValid reports whether the value matches the canonical payment_type enum.
func (p PaymentType) IsValid() bool {
	for _, candidate := range validPaymentTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentType converts raw input into PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	for _, candidate := range validPaymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
