package rooms

import (
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

// edges lists the forward lifecycle. Terminated is reachable from every
// non-terminal status and is handled separately.
var edges = map[enums.RoomStatus]enums.RoomStatus{
	enums.RoomStatusSetup:       enums.RoomStatusNegotiating,
	enums.RoomStatusNegotiating: enums.RoomStatusSigning,
	enums.RoomStatusSigning:     enums.RoomStatusSettling,
	enums.RoomStatusSettling:    enums.RoomStatusCompleted,
}

// CanTransition reports whether the lifecycle has an edge from -> to.
func CanTransition(from, to enums.RoomStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == enums.RoomStatusTerminated {
		return true
	}
	next, ok := edges[from]
	return ok && next == to
}

// rightStatusFor returns the status a linked right takes when the room reaches to.
func rightStatusFor(to enums.RoomStatus) (enums.RightStatus, bool) {
	switch to {
	case enums.RoomStatusCompleted:
		return enums.RightStatusSold, true
	case enums.RoomStatusTerminated:
		return enums.RightStatusPublished, true
	default:
		return "", false
	}
}

// guardFacts is the room state the transition guards evaluate.
type guardFacts struct {
	HasBuyer             bool
	HasSeller            bool
	HasAcceptedOffer     bool
	Settlements          int64
	CompletedSettlements int64
}

// needsFacts reports whether evaluating a move to `to` requires loading guardFacts.
func needsFacts(to enums.RoomStatus) bool {
	switch to {
	case enums.RoomStatusSigning, enums.RoomStatusSettling, enums.RoomStatusCompleted:
		return true
	default:
		return false
	}
}

// checkTransition validates the edge and the business prerequisites of the target status.
func checkTransition(from, to enums.RoomStatus, facts guardFacts) error {
	if !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid room status %q", to)
	}
	if !CanTransition(from, to) {
		return transitionConflict(from, to, "room cannot move from %s to %s", from, to)
	}

	switch to {
	case enums.RoomStatusSigning:
		if !facts.HasBuyer || !facts.HasSeller {
			return transitionConflict(from, to, "signing requires a buyer and a seller participant")
		}
		if !facts.HasAcceptedOffer {
			return transitionConflict(from, to, "signing requires an accepted offer")
		}
	case enums.RoomStatusSettling:
		if facts.Settlements == 0 {
			return transitionConflict(from, to, "settling requires a recorded settlement")
		}
	case enums.RoomStatusCompleted:
		if facts.Settlements == 0 {
			return transitionConflict(from, to, "completion requires a recorded settlement")
		}
		if facts.CompletedSettlements != facts.Settlements {
			return transitionConflict(from, to, "completion requires every settlement to be completed")
		}
	}
	return nil
}

func transitionConflict(from, to enums.RoomStatus, format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, format, args...).
		WithDetail("step", "transition").
		WithDetail("from", from).
		WithDetail("to", to)
}
