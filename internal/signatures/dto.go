package signatures

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// DocumentView is a document with its signature requests.
type DocumentView struct {
	Document models.Document           `json:"document"`
	Requests []models.SignatureRequest `json:"signature_requests"`
}

// UploadInput attaches a file to a room as a draft document.
type UploadInput struct {
	RoomID  uuid.UUID
	Type    enums.DocumentType
	Name    string
	FileURL string
	Actor   rooms.Actor
}

// ContractInput renders a license agreement from the room's accepted offer.
type ContractInput struct {
	RoomID   uuid.UUID
	Deadline *time.Time
	Actor    rooms.Actor
}

// RequestInput puts a document up for signature by the listed signers.
type RequestInput struct {
	DocumentID uuid.UUID
	SignerIDs  []uuid.UUID
	Deadline   *time.Time
	Actor      rooms.Actor
}

// RecordInput is one signer's decision on a document.
type RecordInput struct {
	DocumentID uuid.UUID
	Action     enums.SignatureAction
	Payload    *string
	Reason     *string
	Actor      rooms.Actor
}

// RecordResult reports the signer's request and the document after the decision.
// CascadePending is set when the quorum completed but a DocumentFullySigned
// handler failed; the signature stands and the cascade awaits a resume.
type RecordResult struct {
	Document       models.Document         `json:"document"`
	Request        models.SignatureRequest `json:"signature_request"`
	QuorumComplete bool                    `json:"quorum_complete"`
	CascadePending bool                    `json:"cascade_pending,omitempty"`
}

// ResumeInput re-dispatches DocumentFullySigned for a signed document.
type ResumeInput struct {
	DocumentID uuid.UUID
	Actor      rooms.Actor
}

func allSigned(requests []models.SignatureRequest) bool {
	if len(requests) == 0 {
		return false
	}
	for _, r := range requests {
		if r.Status != enums.SignatureRequestSigned {
			return false
		}
	}
	return true
}

func signerIDs(requests []models.SignatureRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.SignerID)
	}
	return ids
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
