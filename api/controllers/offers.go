package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	"github.com/angelmondragon/dealroom-backend/api/validators"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type submitOfferRequest struct {
	Price   string  `json:"price" validate:"required,money"`
	Terms   string  `json:"terms" validate:"max=10000"`
	Message *string `json:"message,omitempty"`
}

type resolveOfferRequest struct {
	Status string `json:"status" validate:"required"`
}

// SubmitOffer appends the next offer version to the room's ledger.
func SubmitOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
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

		var payload submitOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		offer, err := svc.Submit(r.Context(), offers.SubmitInput{
			RoomID:  roomID,
			Price:   payload.Price,
			Terms:   payload.Terms,
			Message: validators.SanitizeOptional(payload.Message, 2000),
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, offer)
	}
}

// ResolveOffer accepts or rejects a sent offer.
func ResolveOffer(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offerID, err := pathUUID(r, "offerId", "offer id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveOfferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := parseOfferResolution(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Resolve(r.Context(), offers.ResolveInput{
			OfferID: offerID,
			Status:  status,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListOffers returns the room's offer history in version order.
func ListOffers(svc offers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "offers service unavailable"))
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

		list, err := svc.List(r.Context(), roomID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseOfferResolution(raw string) (enums.OfferStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(enums.OfferStatusAccepted), "accept":
		return enums.OfferStatusAccepted, nil
	case string(enums.OfferStatusRejected), "reject":
		return enums.OfferStatusRejected, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "status must be accepted or rejected")
	}
}
