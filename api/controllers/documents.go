package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	"github.com/angelmondragon/dealroom-backend/api/validators"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type uploadDocumentRequest struct {
	Type    string `json:"type" validate:"required"`
	Name    string `json:"name" validate:"required,max=255"`
	FileURL string `json:"file_url" validate:"required,url"`
}

type generateContractRequest struct {
	Deadline *time.Time `json:"deadline,omitempty"`
}

type requestSignaturesRequest struct {
	SignerIDs []string   `json:"signer_ids" validate:"required,min=1,dive,uuid"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}

type recordSignatureRequest struct {
	Action  string  `json:"action" validate:"required"`
	Payload *string `json:"signature_payload,omitempty"`
	Reason  *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// UploadDocument attaches a draft document to the room.
func UploadDocument(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roomID, err := pathUUID(r, "roomId", "room id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload uploadDocumentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		docType, err := enums.ParseDocumentType(strings.TrimSpace(payload.Type))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid document type"))
			return
		}

		doc, err := svc.Upload(r.Context(), signatures.UploadInput{
			RoomID:  roomID,
			Type:    docType,
			Name:    validators.SanitizeString(payload.Name, 255),
			FileURL: payload.FileURL,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}

// GenerateContract renders the license agreement from the accepted offer and
// sends it out for signature.
func GenerateContract(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roomID, err := pathUUID(r, "roomId", "room id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload generateContractRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		view, err := svc.GenerateContract(r.Context(), signatures.ContractInput{
			RoomID:   roomID,
			Deadline: payload.Deadline,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// ListDocuments returns every document in the room.
func ListDocuments(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roomID, err := pathUUID(r, "roomId", "room id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		docs, err := svc.List(r.Context(), roomID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, docs)
	}
}

// GetDocument returns one document with its signature requests.
func GetDocument(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		documentID, err := pathUUID(r, "documentId", "document id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), documentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// RequestSignatures puts a document up for signature.
func RequestSignatures(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		documentID, err := pathUUID(r, "documentId", "document id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestSignaturesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		signers := make([]uuid.UUID, 0, len(payload.SignerIDs))
		for _, raw := range payload.SignerIDs {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid signer id"))
				return
			}
			signers = append(signers, id)
		}

		view, err := svc.RequestSignatures(r.Context(), signatures.RequestInput{
			DocumentID: documentID,
			SignerIDs:  signers,
			Deadline:   payload.Deadline,
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// RecordSignature records the caller's sign or reject decision on a document.
func RecordSignature(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		documentID, err := pathUUID(r, "documentId", "document id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordSignatureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseSignatureAction(strings.ToLower(strings.TrimSpace(payload.Action)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "action must be sign or reject"))
			return
		}

		result, err := svc.RecordSignature(r.Context(), signatures.RecordInput{
			DocumentID: documentID,
			Action:     action,
			Payload:    payload.Payload,
			Reason:     validators.SanitizeOptional(payload.Reason, 1000),
			Actor:      actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ResumeCascade re-runs the settlement cascade for a signed document.
func ResumeCascade(svc signatures.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signatures service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		documentID, err := pathUUID(r, "documentId", "document id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.ResumeCascade(r.Context(), signatures.ResumeInput{DocumentID: documentID, Actor: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
