package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/api/middleware"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

// actorFromRequest builds the workflow actor from the authenticated context.
func actorFromRequest(r *http.Request) (rooms.Actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return rooms.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return rooms.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return rooms.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return rooms.Actor{UserID: id, Role: role}, nil
}

func pathUUID(r *http.Request, key, label string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, label+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return id, nil
}

func parseOptionalUUID(raw *string, label string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+label)
	}
	return &id, nil
}
