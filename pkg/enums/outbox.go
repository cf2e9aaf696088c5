package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRoom       OutboxAggregateType = "room"
	AggregateOffer      OutboxAggregateType = "offer"
	AggregateDocument   OutboxAggregateType = "document"
	AggregateSettlement OutboxAggregateType = "settlement"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRoom,
	AggregateOffer,
	AggregateDocument,
	AggregateSettlement,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (o OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRoomStatusChanged       OutboxEventType = "room_status_changed"
	EventOfferSubmitted          OutboxEventType = "offer_submitted"
	EventOfferResolved           OutboxEventType = "offer_resolved"
	EventDocumentFullySigned     OutboxEventType = "document_fully_signed"
	EventDocumentRejected        OutboxEventType = "document_rejected"
	EventSettlementCreated       OutboxEventType = "settlement_created"
	EventSettlementStatusChanged OutboxEventType = "settlement_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRoomStatusChanged,
	EventOfferSubmitted,
	EventOfferResolved,
	EventDocumentFullySigned,
	EventDocumentRejected,
	EventSettlementCreated,
	EventSettlementStatusChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
