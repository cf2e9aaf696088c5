package offers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

const (
	versionConstraint = "ux_offers_room_version"
	maxTermsLength    = 10000
	maxMessageLength  = 2000
	// one retry after a version collision
	maxSubmitAttempts = 2
)

var errVersionCollision = errors.New("offer version collision")

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

type rightStatusSetter interface {
	SetStatus(ctx context.Context, tx *gorm.DB, rightID uuid.UUID, status enums.RightStatus) error
}

// Ledger is the transactional view other workflows read offers through.
type Ledger interface {
	// LatestAcceptedTx returns the prevailing accepted offer, or nil when the
	// room has none.
	LatestAcceptedTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*models.Offer, error)
}

// Service is the Offer Ledger.
type Service interface {
	Ledger
	Submit(ctx context.Context, input SubmitInput) (*models.Offer, error)
	Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error)
	List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Offer, error)
}

// SubmitInput proposes a new price and terms in a room.
type SubmitInput struct {
	RoomID  uuid.UUID
	Price   string
	Terms   string
	Message *string
	Actor   rooms.Actor
}

// ResolveInput accepts or rejects a sent offer.
type ResolveInput struct {
	OfferID uuid.UUID
	Status  enums.OfferStatus
	Actor   rooms.Actor
}

// ResolveResult reports the resolved offer and any side effects.
type ResolveResult struct {
	Offer      models.Offer  `json:"offer"`
	Superseded []uuid.UUID   `json:"superseded_offer_ids,omitempty"`
	RoomChange *rooms.Change `json:"room_change,omitempty"`
}

// ServiceParams carries the offer ledger collaborators. Metrics may be nil.
type ServiceParams struct {
	Repo     Repository
	Rooms    roomWorkflow
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    audit.Recorder
	Rights   rightStatusSetter
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
	rights   rightStatusSetter
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
}

// NewService validates and wires the offer ledger.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("offers repository required")
	case params.Rooms == nil:
		return nil, fmt.Errorf("room workflow required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Rights == nil:
		return nil, fmt.Errorf("rights collaborator required")
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
		rights:   params.Rights,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type submittedDetail struct {
	Version    int           `json:"version"`
	Price      string        `json:"price"`
	RoomChange *rooms.Change `json:"room_status,omitempty"`
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Offer, error) {
	started := time.Now()
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	price, err := ParsePrice(input.Price)
	if err != nil {
		return nil, err
	}
	terms := strings.TrimSpace(input.Terms)
	if len(terms) > maxTermsLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "terms exceed %d characters", maxTermsLength)
	}
	message := trimOptional(input.Message)
	if message != nil && len(*message) > maxMessageLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "message exceeds %d characters", maxMessageLength)
	}

	var (
		offer        *models.Offer
		room         *models.Room
		participants []models.RoomParticipant
	)
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		offer = &models.Offer{
			RoomID:    input.RoomID,
			CreatedBy: input.Actor.UserID,
			Price:     price.StringFixed(2),
			Terms:     terms,
			Message:   message,
			Status:    enums.OfferStatusSent,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			room, participants, txErr = s.submitTx(ctx, tx, offer, input.Actor)
			return txErr
		})
		if !errors.Is(err, errVersionCollision) {
			break
		}
		s.metrics.IncOfferVersionRetry()
	}
	if errors.Is(err, errVersionCollision) {
		err = pkgerrors.Wrap(pkgerrors.CodeConflict, err, "concurrent offer submission, retry")
	}
	s.metrics.ObserveOperation("submit_offer", started, err)
	if err != nil {
		return nil, err
	}

	s.metrics.IncOfferSubmitted()
	s.notifier.Notify(ctx, notifications.Fanout(participants, notifications.Notice{
		RoomID:  &room.ID,
		Kind:    enums.NotificationKindOfferSubmitted,
		Message: fmt.Sprintf("New offer v%d of %s in %q", offer.Version, offer.Price, room.Title),
		Link:    notifications.RoomLink(room.ID),
	}, input.Actor.UserID)...)

	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
		"offer_id": offer.ID.String(),
		"version":  offer.Version,
	})
	s.logg.Info(logCtx, "offer submitted")
	return offer, nil
}

func (s *service) submitTx(ctx context.Context, tx *gorm.DB, offer *models.Offer, actor rooms.Actor) (*models.Room, []models.RoomParticipant, error) {
	room, err := s.rooms.LockTx(ctx, tx, offer.RoomID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.rooms.ParticipantsTx(ctx, tx, room.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := rooms.RequireMember(participants, actor); err != nil {
		return nil, nil, err
	}
	switch room.Status {
	case enums.RoomStatusSetup, enums.RoomStatusNegotiating, enums.RoomStatusSigning:
	default:
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "offers cannot be submitted while room is %s", room.Status)
	}

	repo := s.repo.WithTx(tx)
	max, err := repo.MaxVersion(ctx, room.ID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read offer version")
	}
	offer.Version = max + 1
	if err := repo.Create(ctx, offer); err != nil {
		if dbpkg.IsUniqueViolation(err, versionConstraint) {
			return nil, nil, fmt.Errorf("%w: %v", errVersionCollision, err)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create offer")
	}

	var change *rooms.Change
	if room.Status == enums.RoomStatusSetup {
		change, err = s.rooms.AdvanceTx(ctx, tx, room, enums.RoomStatusNegotiating, rooms.Cause{Actor: &actor, Reason: "first offer submitted"})
		if err != nil {
			return nil, nil, err
		}
	}

	if err := s.audit.Record(ctx, tx, audit.Entry{
		RoomID:     room.ID,
		ActorID:    actor.Ref(),
		Action:     enums.AuditActionOfferSubmitted,
		TargetType: enums.AuditTargetOffer,
		TargetID:   &offer.ID,
		Detail:     submittedDetail{Version: offer.Version, Price: offer.Price, RoomChange: change},
	}); err != nil {
		return nil, nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOfferSubmitted,
		AggregateType: enums.AggregateOffer,
		AggregateID:   offer.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.OfferSubmittedEvent{
			OfferID:   offer.ID,
			RoomID:    room.ID,
			Version:   offer.Version,
			Price:     offer.Price,
			CreatedBy: offer.CreatedBy,
		},
	}); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit offer submitted")
	}
	return room, participants, nil
}

type resolvedDetail struct {
	Version     int                `json:"version"`
	From        enums.OfferStatus  `json:"from"`
	To          enums.OfferStatus  `json:"to"`
	Superseded  []uuid.UUID        `json:"superseded_offer_ids,omitempty"`
	RoomChange  *rooms.Change      `json:"room_status,omitempty"`
	RightStatus *enums.RightStatus `json:"right_status,omitempty"`
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*ResolveResult, error) {
	started := time.Now()
	if input.OfferID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id required")
	}
	if input.Status != enums.OfferStatusAccepted && input.Status != enums.OfferStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be accepted or rejected")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		result       ResolveResult
		room         *models.Room
		participants []models.RoomParticipant
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		offer, err := repo.FindByID(ctx, input.OfferID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
		}
		room, err = s.rooms.LockTx(ctx, tx, offer.RoomID)
		if err != nil {
			return err
		}
		participants, err = s.rooms.ParticipantsTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if err := rooms.RequireMember(participants, input.Actor); err != nil {
			return err
		}

		// re-read under the room lock
		offer, err = repo.FindByID(ctx, input.OfferID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload offer")
		}
		if offer.Status != enums.OfferStatusSent {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "offer is already %s", offer.Status)
		}
		if room.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
		}

		detail := resolvedDetail{Version: offer.Version, From: offer.Status, To: input.Status}
		now := s.now()
		if input.Status == enums.OfferStatusAccepted {
			if room.Status != enums.RoomStatusNegotiating && room.Status != enums.RoomStatusSigning {
				return pkgerrors.Newf(pkgerrors.CodeStateConflict, "offers cannot be accepted while room is %s", room.Status)
			}
			if !rooms.HasCounterparties(participants) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "accepting an offer requires a buyer and a seller participant")
			}
			superseded, err := repo.SupersedeAccepted(ctx, room.ID, offer.ID, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede accepted offers")
			}
			result.Superseded = superseded
			detail.Superseded = superseded
		}

		updated, err := repo.Resolve(ctx, offer.ID, input.Status, input.Actor.UserID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve offer")
		}
		if updated == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "offer resolved concurrently")
		}
		offer.Status = input.Status
		offer.ResolvedBy = &input.Actor.UserID
		offer.ResolvedAt = &now

		if input.Status == enums.OfferStatusAccepted {
			if room.Status == enums.RoomStatusNegotiating {
				actor := input.Actor
				change, err := s.rooms.AdvanceTx(ctx, tx, room, enums.RoomStatusSigning, rooms.Cause{Actor: &actor, Reason: fmt.Sprintf("offer v%d accepted", offer.Version)})
				if err != nil {
					return err
				}
				result.RoomChange = change
				detail.RoomChange = change
			}
			if room.RightID != nil {
				status := enums.RightStatusUnderNegotiation
				if err := s.rights.SetStatus(ctx, tx, *room.RightID, status); err != nil {
					return err
				}
				detail.RightStatus = &status
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionOfferResolved,
			TargetType: enums.AuditTargetOffer,
			TargetID:   &offer.ID,
			Detail:     detail,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOfferResolved,
			AggregateType: enums.AggregateOffer,
			AggregateID:   offer.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.OfferResolvedEvent{
				OfferID:    offer.ID,
				RoomID:     room.ID,
				Version:    offer.Version,
				Status:     offer.Status,
				Superseded: result.Superseded,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit offer resolved")
		}
		result.Offer = *offer
		return nil
	})
	s.metrics.ObserveOperation("resolve_offer", started, err)
	if err != nil {
		return nil, err
	}

	kind := enums.NotificationKindOfferRejected
	if result.Offer.Status == enums.OfferStatusAccepted {
		kind = enums.NotificationKindOfferAccepted
	}
	s.notifier.Notify(ctx, notifications.Fanout(participants, notifications.Notice{
		RoomID:  &room.ID,
		Kind:    kind,
		Message: fmt.Sprintf("Offer v%d in %q was %s", result.Offer.Version, room.Title, result.Offer.Status),
		Link:    notifications.RoomLink(room.ID),
	}, input.Actor.UserID)...)

	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
		"offer_id": result.Offer.ID.String(),
		"status":   result.Offer.Status,
	})
	s.logg.Info(logCtx, "offer resolved")
	return &result, nil
}

func (s *service) List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Offer, error) {
	if roomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if _, err := s.rooms.Authorize(ctx, roomID, actor); err != nil {
		return nil, err
	}
	offers, err := s.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list offers")
	}
	return offers, nil
}

func (s *service) LatestAcceptedTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*models.Offer, error) {
	offer, err := s.repo.WithTx(tx).LatestAccepted(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accepted offer")
	}
	return offer, nil
}

// ParsePrice validates a positive amount with at most two decimal places.
func ParsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price required")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a decimal number")
	}
	if !price.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "price supports at most two decimal places")
	}
	return price, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
