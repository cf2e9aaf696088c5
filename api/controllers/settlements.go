package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	"github.com/angelmondragon/dealroom-backend/api/validators"
	"github.com/angelmondragon/dealroom-backend/internal/settlements"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type manualSettlementRequest struct {
	PayerID     string  `json:"payer_id" validate:"required,uuid"`
	PayeeID     string  `json:"payee_id" validate:"required,uuid"`
	Amount      string  `json:"amount" validate:"required,money"`
	PaymentType string  `json:"payment_type" validate:"required"`
	Note        *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type settlementStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListSettlements returns the room's settlements.
func ListSettlements(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
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

// GetSettlement returns one settlement visible to the caller.
func GetSettlement(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlementID, err := pathUUID(r, "settlementId", "settlement id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settlement, err := svc.Get(r.Context(), settlementID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}

// CreateManualSettlement records an operator-initiated settlement.
func CreateManualSettlement(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
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

		var payload manualSettlementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payerID, err := uuid.Parse(payload.PayerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payer id"))
			return
		}
		payeeID, err := uuid.Parse(payload.PayeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payee id"))
			return
		}
		paymentType, err := enums.ParsePaymentType(strings.TrimSpace(payload.PaymentType))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
			return
		}

		settlement, err := svc.CreateManual(r.Context(), settlements.ManualInput{
			RoomID:      roomID,
			PayerID:     payerID,
			PayeeID:     payeeID,
			Amount:      payload.Amount,
			PaymentType: paymentType,
			Note:        payload.Note,
			Actor:       actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, settlement)
	}
}

// UpdateSettlementStatus moves a settlement through its payment lifecycle.
func UpdateSettlementStatus(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		settlementID, err := pathUUID(r, "settlementId", "settlement id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload settlementStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseSettlementStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		settlement, err := svc.UpdateStatus(r.Context(), settlements.StatusInput{
			SettlementID: settlementID,
			Status:       status,
			Actor:        actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, settlement)
	}
}
