package settlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

const maxNoteLength = 2000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type roomWorkflow interface {
	rooms.Workflow
	Authorize(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error)
}

// lifecycle lists the manual settlement moves. Completed has no exits.
var lifecycle = map[enums.SettlementStatus][]enums.SettlementStatus{
	enums.SettlementStatusPending:    {enums.SettlementStatusProcessing, enums.SettlementStatusFailed},
	enums.SettlementStatusProcessing: {enums.SettlementStatusCompleted, enums.SettlementStatusFailed},
	enums.SettlementStatusFailed:     {enums.SettlementStatusPending},
}

// CanTransition reports whether a settlement may move from -> to.
func CanTransition(from, to enums.SettlementStatus) bool {
	for _, next := range lifecycle[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Service interface {
	List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Settlement, error)
	Get(ctx context.Context, id uuid.UUID, actor rooms.Actor) (*models.Settlement, error)
	CreateManual(ctx context.Context, input ManualInput) (*models.Settlement, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*models.Settlement, error)
}

// ManualInput records a settlement outside the signing cascade.
type ManualInput struct {
	RoomID      uuid.UUID
	PayerID     uuid.UUID
	PayeeID     uuid.UUID
	Amount      string
	PaymentType enums.PaymentType
	Note        *string
	Actor       rooms.Actor
}

// StatusInput moves a settlement through its payment lifecycle.
type StatusInput struct {
	SettlementID uuid.UUID
	Status       enums.SettlementStatus
	Actor        rooms.Actor
}

type ServiceParams struct {
	Repo     Repository
	Rooms    roomWorkflow
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    audit.Recorder
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
}

type service struct {
	repo     Repository
	rooms    roomWorkflow
	tx       txRunner
	outbox   outboxPublisher
	audit    audit.Recorder
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("settlements repository required")
	case params.Rooms == nil:
		return nil, fmt.Errorf("room workflow required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		rooms:    params.Rooms,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Settlement, error) {
	if roomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if _, err := s.rooms.Authorize(ctx, roomID, actor); err != nil {
		return nil, err
	}
	settlements, err := s.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	return settlements, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor rooms.Actor) (*models.Settlement, error) {
	settlement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapSettlementError(err, "load settlement")
	}
	if _, err := s.rooms.Authorize(ctx, settlement.RoomID, actor); err != nil {
		return nil, err
	}
	return settlement, nil
}

type manualDetail struct {
	Amount      string            `json:"amount"`
	PayerID     uuid.UUID         `json:"payer_id"`
	PayeeID     uuid.UUID         `json:"payee_id"`
	PaymentType enums.PaymentType `json:"payment_type"`
}

func (s *service) CreateManual(ctx context.Context, input ManualInput) (*models.Settlement, error) {
	started := time.Now()
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}
	if input.RoomID == uuid.Nil || input.PayerID == uuid.Nil || input.PayeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room, payer and payee ids required")
	}
	if !input.PaymentType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment type %q", input.PaymentType)
	}
	amount, err := offers.ParsePrice(input.Amount)
	if err != nil {
		return nil, err
	}
	var note *string
	if input.Note != nil {
		trimmed := strings.TrimSpace(*input.Note)
		if len(trimmed) > maxNoteLength {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "note exceeds %d characters", maxNoteLength)
		}
		if trimmed != "" {
			note = &trimmed
		}
	}

	settlement := &models.Settlement{
		RoomID:      input.RoomID,
		PayerID:     input.PayerID,
		PayeeID:     input.PayeeID,
		Amount:      amount.StringFixed(2),
		PaymentType: input.PaymentType,
		Status:      enums.SettlementStatusPending,
		Note:        note,
	}
	var (
		room         *models.Room
		participants []models.RoomParticipant
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		room, err = s.rooms.LockTx(ctx, tx, input.RoomID)
		if err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
		}
		participants, err = s.rooms.ParticipantsTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, settlement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionSettlementCreated,
			TargetType: enums.AuditTargetSettlement,
			TargetID:   &settlement.ID,
			Detail: manualDetail{
				Amount:      settlement.Amount,
				PayerID:     settlement.PayerID,
				PayeeID:     settlement.PayeeID,
				PaymentType: settlement.PaymentType,
			},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCreated,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.SettlementCreatedEvent{
				SettlementID: settlement.ID,
				RoomID:       room.ID,
				PayerID:      settlement.PayerID,
				PayeeID:      settlement.PayeeID,
				Amount:       settlement.Amount,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement created")
		}
		return nil
	})
	s.metrics.ObserveOperation("create_settlement", started, err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notifications.Fanout(participants, notifications.Notice{
		RoomID:  &room.ID,
		Kind:    enums.NotificationKindSettlementCreated,
		Message: fmt.Sprintf("Settlement of %s recorded for %q", settlement.Amount, room.Title),
		Link:    notifications.RoomLink(room.ID),
	}, input.Actor.UserID)...)
	s.logg.Info(s.logg.WithField(s.logg.WithRoomID(ctx, room.ID.String()), "settlement_id", settlement.ID.String()), "manual settlement created")
	return settlement, nil
}

type statusDetail struct {
	From   enums.SettlementStatus `json:"from"`
	To     enums.SettlementStatus `json:"to"`
	PaidAt *time.Time             `json:"paid_at,omitempty"`
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*models.Settlement, error) {
	started := time.Now()
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}
	if input.SettlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid settlement status %q", input.Status)
	}

	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, input.SettlementID)
		if err != nil {
			return mapSettlementError(err, "load settlement")
		}
		// room before settlement, the order every workflow locks in
		room, err := s.rooms.LockTx(ctx, tx, current.RoomID)
		if err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
		}
		settlement, err = repo.LockByID(ctx, input.SettlementID)
		if err != nil {
			return mapSettlementError(err, "lock settlement")
		}
		from := settlement.Status
		if from == enums.SettlementStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "completed settlements are immutable")
		}
		if !CanTransition(from, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "settlement cannot move from %s to %s", from, input.Status)
		}

		var paidAt *time.Time
		if input.Status == enums.SettlementStatusCompleted {
			now := s.now()
			paidAt = &now
		}
		updated, err := repo.UpdateStatus(ctx, settlement.ID, from, input.Status, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement status")
		}
		if updated == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "settlement changed concurrently")
		}
		settlement.Status = input.Status
		if paidAt != nil {
			settlement.PaidAt = paidAt
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     settlement.RoomID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionSettlementStatusChanged,
			TargetType: enums.AuditTargetSettlement,
			TargetID:   &settlement.ID,
			Detail:     statusDetail{From: from, To: input.Status, PaidAt: paidAt},
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementStatusChanged,
			AggregateType: enums.AggregateSettlement,
			AggregateID:   settlement.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.SettlementStatusChangedEvent{
				SettlementID: settlement.ID,
				RoomID:       settlement.RoomID,
				From:         from,
				To:           input.Status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement status")
		}
		return nil
	})
	s.metrics.ObserveOperation("update_settlement_status", started, err)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, settlement.RoomID.String()), map[string]any{
		"settlement_id": settlement.ID.String(),
		"status":        settlement.Status,
	})
	s.logg.Info(logCtx, "settlement status updated")
	return settlement, nil
}

func mapSettlementError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
