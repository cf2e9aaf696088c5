package enums

import "fmt"

// NotificationKind maps to the notification_kind enum in Postgres.
type NotificationKind string

const (
	NotificationKindOfferSubmitted     NotificationKind = "offer_submitted"
	NotificationKindOfferAccepted      NotificationKind = "offer_accepted"
	NotificationKindOfferRejected      NotificationKind = "offer_rejected"
	NotificationKindSignatureRequested NotificationKind = "signature_requested"
	NotificationKindDocumentSigned     NotificationKind = "document_signed"
	NotificationKindDocumentRejected   NotificationKind = "document_rejected"
	NotificationKindSettlementCreated  NotificationKind = "settlement_created"
	NotificationKindRoomStatusChanged  NotificationKind = "room_status_changed"
	NotificationKindSignatureOverdue   NotificationKind = "signature_overdue"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOfferSubmitted,
	NotificationKindOfferAccepted,
	NotificationKindOfferRejected,
	NotificationKindSignatureRequested,
	NotificationKindDocumentSigned,
	NotificationKindDocumentRejected,
	NotificationKindSettlementCreated,
	NotificationKindRoomStatusChanged,
	NotificationKindSignatureOverdue,
}

// IsValid reports whether the value matches the canonical notification_kind enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
