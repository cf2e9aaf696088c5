package rooms

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

// AdvanceTx moves a locked room to `to` inside tx. It enforces the lifecycle
// edges and guards, syncs the linked right and queues the outbox event. It does
// not write an audit entry; callers embed the returned Change in their own.
func (s *service) AdvanceTx(ctx context.Context, tx *gorm.DB, room *models.Room, to enums.RoomStatus, cause Cause) (*Change, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if room == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	}
	repo := s.repo.WithTx(tx)

	var facts guardFacts
	if CanTransition(room.Status, to) && needsFacts(to) {
		loaded, err := s.loadFacts(ctx, repo, room)
		if err != nil {
			return nil, err
		}
		facts = loaded
	}
	if err := checkTransition(room.Status, to, facts); err != nil {
		return nil, err
	}

	updated, err := repo.UpdateStatus(ctx, room.ID, room.Status, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update room status")
	}
	if updated == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "room status changed concurrently")
	}

	change := &Change{RoomID: room.ID, From: room.Status, To: to, RightID: room.RightID}
	if room.RightID != nil {
		if status, ok := rightStatusFor(to); ok {
			if err := s.rights.SetStatus(ctx, tx, *room.RightID, status); err != nil {
				return nil, err
			}
			change.RightStatus = &status
		}
	}

	var actorRef *outbox.ActorRef
	if cause.Actor != nil {
		actorRef = &outbox.ActorRef{UserID: cause.Actor.UserID, Role: string(cause.Actor.Role)}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRoomStatusChanged,
		AggregateType: enums.AggregateRoom,
		AggregateID:   room.ID,
		Actor:         actorRef,
		Data: payloads.RoomStatusChangedEvent{
			RoomID:  room.ID,
			From:    change.From,
			To:      change.To,
			Reason:  cause.Reason,
			RightID: room.RightID,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit room status event")
	}

	room.Status = to
	s.metrics.IncTransition(string(change.From), string(change.To))
	return change, nil
}

func (s *service) loadFacts(ctx context.Context, repo Repository, room *models.Room) (guardFacts, error) {
	participants, err := repo.ListParticipants(ctx, room.ID)
	if err != nil {
		return guardFacts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participants")
	}
	facts := guardFacts{}
	for _, p := range participants {
		switch p.Role {
		case enums.ParticipantRoleBuyer:
			facts.HasBuyer = true
		case enums.ParticipantRoleSeller:
			facts.HasSeller = true
		}
	}
	if facts.HasAcceptedOffer, err = repo.HasAcceptedOffer(ctx, room.ID); err != nil {
		return guardFacts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check accepted offer")
	}
	if facts.Settlements, facts.CompletedSettlements, err = repo.CountSettlements(ctx, room.ID); err != nil {
		return guardFacts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count settlements")
	}
	return facts, nil
}

// StatusNotices tells every participant except the excluded users that the room moved.
func StatusNotices(participants []models.RoomParticipant, room *models.Room, change Change, exclude ...uuid.UUID) []notifications.Notice {
	if room == nil {
		return nil
	}
	roomID := room.ID
	return notifications.Fanout(participants, notifications.Notice{
		RoomID:  &roomID,
		Kind:    enums.NotificationKindRoomStatusChanged,
		Message: fmt.Sprintf("Room %q moved from %s to %s", room.Title, change.From, change.To),
		Link:    notifications.RoomLink(roomID),
	}, exclude...)
}
