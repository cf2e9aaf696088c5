package rooms

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsOperator reports whether the actor holds the platform operator role.
func (a Actor) IsOperator() bool {
	return a.Role == enums.UserRoleOperator
}

// Ref returns a pointer copy of the actor's user id for audit rows.
func (a Actor) Ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

// CreateInput opens a new room. The creator joins it under CreatorRole.
type CreateInput struct {
	Title       string
	Type        enums.RoomType
	RightID     *uuid.UUID
	Actor       Actor
	CreatorRole enums.ParticipantRole
}

// AddParticipantInput adds a user to a room under a role.
type AddParticipantInput struct {
	RoomID uuid.UUID
	UserID uuid.UUID
	Role   enums.ParticipantRole
	Actor  Actor
}

// TransitionInput is an explicit operator request to move a room.
type TransitionInput struct {
	RoomID uuid.UUID
	To     enums.RoomStatus
	Reason string
	Actor  Actor
}

// ListParams pages through the rooms a user participates in.
type ListParams struct {
	UserID uuid.UUID
	Status *enums.RoomStatus
	Limit  int
	Cursor string
}

// ListResult is one page of rooms, newest first.
type ListResult struct {
	Items  []models.Room `json:"items"`
	Cursor string        `json:"cursor"`
}

// RoomView is the full read model of a room.
type RoomView struct {
	Room         models.Room              `json:"room"`
	Participants []models.RoomParticipant `json:"participants"`
	Offers       []models.Offer           `json:"offers"`
	Documents    []models.Document        `json:"documents"`
	Settlements  []models.Settlement      `json:"settlements"`
}

// Change records one applied lifecycle transition.
type Change struct {
	RoomID      uuid.UUID          `json:"room_id"`
	From        enums.RoomStatus   `json:"from"`
	To          enums.RoomStatus   `json:"to"`
	RightID     *uuid.UUID         `json:"right_id,omitempty"`
	RightStatus *enums.RightStatus `json:"right_status,omitempty"`
}

// Cause says who or what drove a transition.
type Cause struct {
	Actor  *Actor
	Reason string
}

// HasCounterparties reports whether participants include a buyer and a seller.
func HasCounterparties(participants []models.RoomParticipant) bool {
	var buyer, seller bool
	for _, p := range participants {
		switch p.Role {
		case enums.ParticipantRoleBuyer:
			buyer = true
		case enums.ParticipantRoleSeller:
			seller = true
		}
	}
	return buyer && seller
}

// FindParticipant returns the participant row for userID, if any.
func FindParticipant(participants []models.RoomParticipant, userID uuid.UUID) (models.RoomParticipant, bool) {
	for _, p := range participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return models.RoomParticipant{}, false
}
