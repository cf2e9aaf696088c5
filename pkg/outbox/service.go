package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

// DomainEvent is what workflow code hands to Emit. Data becomes the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service writes domain events into the outbox inside the caller's
// transaction so they commit or roll back with the state change.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event. Event types guarded by the once-per-aggregate index
// are skipped silently when one was already queued for the aggregate.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("%s event requires an aggregate id", event.EventType)
	}

	envelope, err := s.envelope(event)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       envelope.raw,
	}

	queued := true
	if isOnceEventType(event.EventType) {
		queued, err = s.repo.InsertOnce(tx, row)
	} else {
		err = s.repo.Insert(tx, row)
	}
	if err != nil {
		return fmt.Errorf("queue %s event: %w", event.EventType, err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		})
		if queued {
			s.logg.Info(logCtx, "outbox event queued")
		} else {
			s.logg.Debug(logCtx, "outbox event already queued for aggregate")
		}
	}
	return nil
}

type encodedEnvelope struct {
	PayloadEnvelope
	raw json.RawMessage
}

func (s *Service) envelope(event DomainEvent) (encodedEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return encodedEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    max(event.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return encodedEnvelope{}, fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return encodedEnvelope{PayloadEnvelope: env, raw: raw}, nil
}
