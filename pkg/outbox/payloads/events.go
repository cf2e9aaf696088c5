package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// RoomStatusChangedEvent is emitted on every room lifecycle transition.
type RoomStatusChangedEvent struct {
	RoomID  uuid.UUID        `json:"room_id" validate:"required"`
	From    enums.RoomStatus `json:"from" validate:"required"`
	To      enums.RoomStatus `json:"to" validate:"required,nefield=From"`
	Reason  string           `json:"reason,omitempty"`
	RightID *uuid.UUID       `json:"right_id,omitempty"`
}

// OfferSubmittedEvent announces a new offer version in a room.
type OfferSubmittedEvent struct {
	OfferID   uuid.UUID `json:"offer_id" validate:"required"`
	RoomID    uuid.UUID `json:"room_id" validate:"required"`
	Version   int       `json:"version" validate:"gte=1"`
	Price     string    `json:"price" validate:"required"`
	CreatedBy uuid.UUID `json:"created_by" validate:"required"`
}

// OfferResolvedEvent is emitted when an offer is accepted or rejected.
type OfferResolvedEvent struct {
	OfferID    uuid.UUID         `json:"offer_id" validate:"required"`
	RoomID     uuid.UUID         `json:"room_id" validate:"required"`
	Version    int               `json:"version" validate:"gte=1"`
	Status     enums.OfferStatus `json:"status" validate:"required"`
	Superseded []uuid.UUID       `json:"superseded_offer_ids,omitempty"`
}

// DocumentFullySignedEvent is emitted once per document when its signature quorum completes.
type DocumentFullySignedEvent struct {
	DocumentID uuid.UUID   `json:"document_id" validate:"required"`
	RoomID     uuid.UUID   `json:"room_id" validate:"required"`
	SignerIDs  []uuid.UUID `json:"signer_ids" validate:"min=1"`
	SignedAt   time.Time   `json:"signed_at"`
}

// DocumentRejectedEvent is emitted when any signer rejects a document.
type DocumentRejectedEvent struct {
	DocumentID uuid.UUID `json:"document_id" validate:"required"`
	RoomID     uuid.UUID `json:"room_id" validate:"required"`
	SignerID   uuid.UUID `json:"signer_id" validate:"required"`
	Reason     string    `json:"reason,omitempty"`
}

// SettlementCreatedEvent announces a new payer to payee obligation.
type SettlementCreatedEvent struct {
	SettlementID uuid.UUID  `json:"settlement_id" validate:"required"`
	RoomID       uuid.UUID  `json:"room_id" validate:"required"`
	DocumentID   *uuid.UUID `json:"document_id,omitempty"`
	PayerID      uuid.UUID  `json:"payer_id" validate:"required"`
	PayeeID      uuid.UUID  `json:"payee_id" validate:"required"`
	Amount       string     `json:"amount" validate:"required"`
	Automatic    bool       `json:"automatic"`
}

// SettlementStatusChangedEvent tracks manual settlement lifecycle updates.
type SettlementStatusChangedEvent struct {
	SettlementID uuid.UUID              `json:"settlement_id" validate:"required"`
	RoomID       uuid.UUID              `json:"room_id" validate:"required"`
	From         enums.SettlementStatus `json:"from" validate:"required"`
	To           enums.SettlementStatus `json:"to" validate:"required,nefield=From"`
}
