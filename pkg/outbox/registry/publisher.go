// Package registry maps outbox rows onto topics and typed payloads for the
// publisher.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded, validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that can never publish and belong in the DLQ.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes settlement events to cfg.SettlementTopic when set
// and everything else to cfg.DomainTopic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, desc := range []EventDescriptor{
		describe[payloads.RoomStatusChangedEvent](enums.EventRoomStatusChanged, enums.AggregateRoom),
		describe[payloads.OfferSubmittedEvent](enums.EventOfferSubmitted, enums.AggregateOffer),
		describe[payloads.OfferResolvedEvent](enums.EventOfferResolved, enums.AggregateOffer),
		describe[payloads.DocumentFullySignedEvent](enums.EventDocumentFullySigned, enums.AggregateDocument),
		describe[payloads.DocumentRejectedEvent](enums.EventDocumentRejected, enums.AggregateDocument),
		describe[payloads.SettlementCreatedEvent](enums.EventSettlementCreated, enums.AggregateSettlement),
		describe[payloads.SettlementStatusChangedEvent](enums.EventSettlementStatusChanged, enums.AggregateSettlement),
	} {
		desc.Topic = cfg.DomainTopic
		if desc.AggregateType == enums.AggregateSettlement && cfg.SettlementTopic != "" {
			desc.Topic = cfg.SettlementTopic
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row will not get better by waiting.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, nonRetryable("invalid %s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
