package rooms

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
	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/pagination"
)

const maxTitleLength = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type rightsCollaborator interface {
	Get(ctx context.Context, rightID uuid.UUID) (*models.Right, error)
	SetStatus(ctx context.Context, tx *gorm.DB, rightID uuid.UUID, status enums.RightStatus) error
}

// Workflow is the slice of the state machine other workflow components drive
// from inside their own transactions.
type Workflow interface {
	LockTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*models.Room, error)
	ParticipantsTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]models.RoomParticipant, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, room *models.Room, to enums.RoomStatus, cause Cause) (*Change, error)
}

// Service is the Room State Machine plus room administration.
type Service interface {
	Workflow
	Create(ctx context.Context, input CreateInput) (*RoomView, error)
	Get(ctx context.Context, roomID uuid.UUID, actor Actor) (*RoomView, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	AddParticipant(ctx context.Context, input AddParticipantInput) (*models.RoomParticipant, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Room, error)
	Authorize(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error)
}

// ServiceParams carries the room service collaborators. Metrics may be nil.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    audit.Recorder
	Rights   rightsCollaborator
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	audit    audit.Recorder
	rights   rightsCollaborator
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
}

// NewService validates and wires the room service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("rooms repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Rights == nil {
		return nil, fmt.Errorf("rights collaborator required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		rights:   params.Rights,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

type roomCreatedDetail struct {
	Title       string                `json:"title"`
	Type        enums.RoomType        `json:"type"`
	RightID     *uuid.UUID            `json:"right_id,omitempty"`
	CreatorRole enums.ParticipantRole `json:"creator_role"`
}

func (s *service) Create(ctx context.Context, input CreateInput) (*RoomView, error) {
	started := time.Now()
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if len(title) > maxTitleLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "title exceeds %d characters", maxTitleLength)
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid room type %q", input.Type)
	}
	if !input.CreatorRole.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid participant role %q", input.CreatorRole)
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.RightID != nil {
		if _, err := s.rights.Get(ctx, *input.RightID); err != nil {
			return nil, err
		}
	}

	room := &models.Room{
		Title:     title,
		Type:      input.Type,
		Status:    enums.RoomStatusSetup,
		RightID:   input.RightID,
		CreatedBy: input.Actor.UserID,
	}
	creator := &models.RoomParticipant{
		UserID: input.Actor.UserID,
		Role:   input.CreatorRole,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, room); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create room")
		}
		creator.RoomID = room.ID
		if err := repo.AddParticipant(ctx, creator); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add room creator")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionRoomCreated,
			TargetType: enums.AuditTargetRoom,
			TargetID:   &room.ID,
			Detail: roomCreatedDetail{
				Title:       room.Title,
				Type:        room.Type,
				RightID:     room.RightID,
				CreatorRole: creator.Role,
			},
		})
	})
	s.metrics.ObserveOperation("create_room", started, err)
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithRoomID(ctx, room.ID.String()), "room created")
	return &RoomView{
		Room:         *room,
		Participants: []models.RoomParticipant{*creator},
		Offers:       []models.Offer{},
		Documents:    []models.Document{},
		Settlements:  []models.Settlement{},
	}, nil
}

func (s *service) Get(ctx context.Context, roomID uuid.UUID, actor Actor) (*RoomView, error) {
	room, participants, err := s.authorize(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.LoadDetail(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load room detail")
	}
	return &RoomView{
		Room:         *room,
		Participants: participants,
		Offers:       rows.Offers,
		Documents:    rows.Documents,
		Settlements:  rows.Settlements,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid room status %q", *params.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListForUser(ctx, listRoomsParams{
		UserID: params.UserID,
		Status: params.Status,
		Limit:  pagination.LimitWithBuffer(params.Limit),
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rooms")
	}
	items, next := pagination.Trim(rows, params.Limit, func(r models.Room) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

type participantDetail struct {
	UserID uuid.UUID             `json:"user_id"`
	Role   enums.ParticipantRole `json:"role"`
}

func (s *service) AddParticipant(ctx context.Context, input AddParticipantInput) (*models.RoomParticipant, error) {
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid participant role %q", input.Role)
	}

	participant := &models.RoomParticipant{
		RoomID: input.RoomID,
		UserID: input.UserID,
		Role:   input.Role,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		room, err := s.LockTx(ctx, tx, input.RoomID)
		if err != nil {
			return err
		}
		participants, err := s.ParticipantsTx(ctx, tx, input.RoomID)
		if err != nil {
			return err
		}
		if err := RequireMember(participants, input.Actor); err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
		}
		if _, exists := FindParticipant(participants, input.UserID); exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "user already participates in room")
		}
		if err := s.repo.WithTx(tx).AddParticipant(ctx, participant); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_room_participants_room_user") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already participates in room")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add participant")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     input.RoomID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionParticipantAdded,
			TargetType: enums.AuditTargetParticipant,
			TargetID:   &participant.ID,
			Detail:     participantDetail{UserID: participant.UserID, Role: participant.Role},
		})
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

type transitionDetail struct {
	From        enums.RoomStatus   `json:"from"`
	To          enums.RoomStatus   `json:"to"`
	Reason      string             `json:"reason,omitempty"`
	RightStatus *enums.RightStatus `json:"right_status,omitempty"`
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Room, error) {
	started := time.Now()
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid room status %q", input.To)
	}
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}

	var (
		room         *models.Room
		change       *Change
		participants []models.RoomParticipant
	)
	actor := input.Actor
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		room, err = s.LockTx(ctx, tx, input.RoomID)
		if err != nil {
			return err
		}
		change, err = s.AdvanceTx(ctx, tx, room, input.To, Cause{Actor: &actor, Reason: input.Reason})
		if err != nil {
			return err
		}
		participants, err = s.ParticipantsTx(ctx, tx, input.RoomID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    actor.Ref(),
			Action:     enums.AuditActionRoomStatusChanged,
			TargetType: enums.AuditTargetRoom,
			TargetID:   &room.ID,
			Detail: transitionDetail{
				From:        change.From,
				To:          change.To,
				Reason:      input.Reason,
				RightStatus: change.RightStatus,
			},
		})
	})
	s.metrics.ObserveOperation("transition_room", started, err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, StatusNotices(participants, room, *change, actor.UserID)...)
	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
		"from": change.From,
		"to":   change.To,
	})
	s.logg.Info(logCtx, "room transitioned")
	return room, nil
}

func (s *service) Authorize(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, error) {
	room, _, err := s.authorize(ctx, roomID, actor)
	return room, err
}

func (s *service) authorize(ctx context.Context, roomID uuid.UUID, actor Actor) (*models.Room, []models.RoomParticipant, error) {
	if roomID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, nil, mapRoomError(err, "load room")
	}
	participants, err := s.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participants")
	}
	if err := RequireMember(participants, actor); err != nil {
		return nil, nil, err
	}
	return room, participants, nil
}

func (s *service) LockTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) (*models.Room, error) {
	room, err := s.repo.WithTx(tx).LockByID(ctx, roomID)
	if err != nil {
		return nil, mapRoomError(err, "lock room")
	}
	return room, nil
}

func (s *service) ParticipantsTx(ctx context.Context, tx *gorm.DB, roomID uuid.UUID) ([]models.RoomParticipant, error) {
	participants, err := s.repo.WithTx(tx).ListParticipants(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participants")
	}
	return participants, nil
}

// RequireMember allows operators and room participants.
func RequireMember(participants []models.RoomParticipant, actor Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.IsOperator() {
		return nil
	}
	if _, ok := FindParticipant(participants, actor.UserID); !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a room participant")
	}
	return nil
}

func mapRoomError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
