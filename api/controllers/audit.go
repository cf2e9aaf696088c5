package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	"github.com/angelmondragon/dealroom-backend/api/validators"
	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/pagination"
)

type roomAuthorizer interface {
	Authorize(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error)
}

// ListRoomAudit pages through the room's audit trail, newest first.
func ListRoomAudit(access roomAuthorizer, svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if access == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
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
		if _, err := access.Authorize(r.Context(), roomID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), audit.ListParams{
			RoomID: roomID,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
