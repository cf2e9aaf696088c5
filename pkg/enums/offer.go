package enums

import "fmt"

// OfferStatus maps to the offer_status enum in Postgres.
type OfferStatus string

const (
	OfferStatusSent       OfferStatus = "sent"
	OfferStatusAccepted   OfferStatus = "accepted"
	OfferStatusSuperseded OfferStatus = "superseded"
	OfferStatusRejected   OfferStatus = "rejected"
)

var validOfferStatuses = []OfferStatus{
	OfferStatusSent,
	OfferStatusAccepted,
	OfferStatusSuperseded,
	OfferStatusRejected,
}

// String implements fmt.Stringer.
func (o OfferStatus) String() string {
	return string(o)
}

// IsValid reports whether the value matches the canonical offer_status enum.
func (o OfferStatus) IsValid() bool {
	for _, candidate := range validOfferStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOfferStatus converts raw input into OfferStatus.
func ParseOfferStatus(value string) (OfferStatus, error) {
	for _, candidate := range validOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid offer status %q", value)
}
