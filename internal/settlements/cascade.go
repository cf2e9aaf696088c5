package settlements

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/events"
	"github.com/angelmondragon/dealroom-backend/internal/feepolicies"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/config"
	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

const documentConstraint = "ux_settlements_document"

// CascadeParams wires the settlement cascade. Metrics may be nil.
type CascadeParams struct {
	Repo     Repository
	Rooms    rooms.Workflow
	Offers   offers.Ledger
	Fees     feepolicies.Resolver
	Audit    audit.Recorder
	Outbox   outboxPublisher
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	Config   config.SettlementConfig
}

// Cascade turns a fully signed document into a pending settlement and moves
// the room to settling. It runs inside the signing transaction.
type Cascade struct {
	repo        Repository
	rooms       rooms.Workflow
	offers      offers.Ledger
	fees        feepolicies.Resolver
	audit       audit.Recorder
	outbox      outboxPublisher
	notifier    notifications.Notifier
	logg        *logger.Logger
	metrics     *metrics.WorkflowMetrics
	payee       uuid.UUID
	rate        decimal.Decimal
	paymentType enums.PaymentType
	now         func() time.Time
}

func NewCascade(params CascadeParams) (*Cascade, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("settlements repository required")
	case params.Rooms == nil:
		return nil, fmt.Errorf("room workflow required")
	case params.Offers == nil:
		return nil, fmt.Errorf("offer ledger required")
	case params.Fees == nil:
		return nil, fmt.Errorf("fee policy resolver required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	payee := params.Config.PayeeID()
	if payee == uuid.Nil {
		return nil, fmt.Errorf("platform payee id must be a uuid")
	}
	paymentType, err := enums.ParsePaymentType(params.Config.DefaultPaymentType)
	if err != nil {
		paymentType = enums.PaymentTypeBankTransfer
	}
	return &Cascade{
		repo:        params.Repo,
		rooms:       params.Rooms,
		offers:      params.Offers,
		fees:        params.Fees,
		audit:       params.Audit,
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		logg:        params.Logger,
		metrics:     params.Metrics,
		payee:       payee,
		rate:        params.Config.FeeRate(),
		paymentType: paymentType,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register subscribes the cascade to quorum completion.
func (c *Cascade) Register(bus *events.Bus) {
	bus.Subscribe(events.DocumentFullySigned, c.Handle)
}

type feeAppliedDetail struct {
	SettlementID uuid.UUID            `json:"settlement_id"`
	DocumentID   uuid.UUID            `json:"document_id"`
	OfferID      uuid.UUID            `json:"offer_id"`
	Amount       string               `json:"amount"`
	PayerID      uuid.UUID            `json:"payer_id"`
	PayeeID      uuid.UUID            `json:"payee_id"`
	Snapshot     feepolicies.Snapshot `json:"fee_policy"`
	RoomChange   *rooms.Change        `json:"room_status,omitempty"`
}

// Handle runs the cascade for a DocumentFullySigned event. A missing accepted
// offer, an existing settlement or a room outside signing is a no-op.
func (c *Cascade) Handle(ctx context.Context, tx *gorm.DB, event events.Event) (events.Outcome, error) {
	data, ok := event.Data.(events.DocumentFullySignedData)
	if !ok {
		return events.Outcome{}, pkgerrors.Newf(pkgerrors.CodeInternal, "unexpected payload %T for %s", event.Data, event.Name)
	}
	logCtx := c.logg.WithFields(c.logg.WithRoomID(ctx, event.RoomID.String()), map[string]any{
		"document_id": data.DocumentID.String(),
	})

	room, err := c.rooms.LockTx(ctx, tx, event.RoomID)
	if err != nil {
		return events.Outcome{}, err
	}
	repo := c.repo.WithTx(tx)

	exists, err := repo.ExistsForDocument(ctx, data.DocumentID)
	if err != nil {
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check document settlement")
	}
	if exists {
		c.metrics.ObserveCascade(metrics.CascadeAlreadySettled)
		c.logg.Info(logCtx, "settlement already exists for document")
		return events.Outcome{}, nil
	}

	offer, err := c.offers.LatestAcceptedTx(ctx, tx, room.ID)
	if err != nil {
		return events.Outcome{}, err
	}
	if offer == nil {
		c.metrics.ObserveCascade(metrics.CascadeNoAcceptedOffer)
		c.logg.Info(logCtx, "no accepted offer, settlement skipped")
		return events.Outcome{}, nil
	}
	if room.Status != enums.RoomStatusSigning {
		c.metrics.ObserveCascade(metrics.CascadeRoomNotSigning)
		c.logg.Warn(c.logg.WithField(logCtx, "room_status", room.Status), "room not in signing, settlement skipped")
		return events.Outcome{}, nil
	}

	participants, err := c.rooms.ParticipantsTx(ctx, tx, room.ID)
	if err != nil {
		return events.Outcome{}, err
	}
	payer, ok := buyerOf(participants)
	if !ok {
		return events.Outcome{}, pkgerrors.New(pkgerrors.CodeStateConflict, "room has no buyer to settle with")
	}

	gross, err := decimal.NewFromString(offer.Price)
	if err != nil {
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse accepted offer price")
	}
	policy, err := c.fees.Current(ctx, tx)
	if err != nil {
		return events.Outcome{}, err
	}
	snapshot := feepolicies.Apply(policy, c.rate, gross, c.now())
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode fee snapshot")
	}
	note := snapshot.Note()

	documentID := data.DocumentID
	offerID := offer.ID
	settlement := &models.Settlement{
		RoomID:            room.ID,
		DocumentID:        &documentID,
		OfferID:           &offerID,
		PayerID:           payer,
		PayeeID:           c.payee,
		Amount:            gross.StringFixed(2),
		PaymentType:       c.paymentType,
		Status:            enums.SettlementStatusPending,
		Note:              &note,
		FeePolicySnapshot: snapshotJSON,
	}
	if err := repo.Create(ctx, settlement); err != nil {
		if dbpkg.IsUniqueViolation(err, documentConstraint) {
			return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "settlement created concurrently")
		}
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
	}

	change, err := c.rooms.AdvanceTx(ctx, tx, room, enums.RoomStatusSettling, rooms.Cause{Reason: "document fully signed"})
	if err != nil {
		return events.Outcome{}, err
	}

	if err := c.audit.Record(ctx, tx, audit.Entry{
		RoomID:     room.ID,
		ActorID:    event.ActorID,
		Action:     enums.AuditActionFeePolicyApplied,
		TargetType: enums.AuditTargetSettlement,
		TargetID:   &settlement.ID,
		Detail: feeAppliedDetail{
			SettlementID: settlement.ID,
			DocumentID:   documentID,
			OfferID:      offerID,
			Amount:       settlement.Amount,
			PayerID:      payer,
			PayeeID:      c.payee,
			Snapshot:     snapshot,
			RoomChange:   change,
		},
	}); err != nil {
		return events.Outcome{}, err
	}

	if err := c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSettlementCreated,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Data: payloads.SettlementCreatedEvent{
			SettlementID: settlement.ID,
			RoomID:       room.ID,
			DocumentID:   &documentID,
			PayerID:      payer,
			PayeeID:      c.payee,
			Amount:       settlement.Amount,
			Automatic:    true,
		},
	}); err != nil {
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement created")
	}

	c.metrics.ObserveCascade(metrics.CascadeCreated)
	settled := *settlement
	roomSnapshot := *room
	return events.Outcome{AfterCommit: []func(context.Context){
		func(ctx context.Context) {
			notices := notifications.Fanout(participants, notifications.Notice{
				RoomID:  &roomSnapshot.ID,
				Kind:    enums.NotificationKindSettlementCreated,
				Message: fmt.Sprintf("Settlement of %s created for %q", settled.Amount, roomSnapshot.Title),
				Link:    notifications.RoomLink(roomSnapshot.ID),
			})
			notices = append(notices, rooms.StatusNotices(participants, &roomSnapshot, *change)...)
			c.notifier.Notify(ctx, notices...)
			c.logg.Info(c.logg.WithField(logCtx, "settlement_id", settled.ID.String()), "settlement cascade completed")
		},
	}}, nil
}

func buyerOf(participants []models.RoomParticipant) (uuid.UUID, bool) {
	for _, p := range participants {
		if p.Role == enums.ParticipantRoleBuyer {
			return p.UserID, true
		}
	}
	return uuid.Nil, false
}
