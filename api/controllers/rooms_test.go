package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

type stubRoomsService struct {
	rooms.Service
	createFn     func(ctx context.Context, input rooms.CreateInput) (*rooms.RoomView, error)
	listFn       func(ctx context.Context, params rooms.ListParams) (*rooms.ListResult, error)
	transitionFn func(ctx context.Context, input rooms.TransitionInput) (*models.Room, error)
	authorizeFn  func(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error)
}

func (s stubRoomsService) Create(ctx context.Context, input rooms.CreateInput) (*rooms.RoomView, error) {
	return s.createFn(ctx, input)
}

func (s stubRoomsService) List(ctx context.Context, params rooms.ListParams) (*rooms.ListResult, error) {
	return s.listFn(ctx, params)
}

func (s stubRoomsService) Transition(ctx context.Context, input rooms.TransitionInput) (*models.Room, error) {
	return s.transitionFn(ctx, input)
}

func (s stubRoomsService) Authorize(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error) {
	return s.authorizeFn(ctx, roomID, actor)
}

func TestCreateRoomRequiresUser(t *testing.T) {
	handler := CreateRoom(stubRoomsService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreateRoomRejectsUnknownType(t *testing.T) {
	handler := CreateRoom(stubRoomsService{}, nil)
	body := `{"title":"Catalog deal","type":"auction","creator_role":"seller"}`
	req := authedRequest(http.MethodPost, "/api/v1/rooms", strings.NewReader(body), uuid.New(), enums.UserRoleMember, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code got %s", code)
	}
}

func TestCreateRoomPassesActorAndInput(t *testing.T) {
	userID := uuid.New()
	rightID := uuid.New()
	var captured rooms.CreateInput
	svc := stubRoomsService{
		createFn: func(ctx context.Context, input rooms.CreateInput) (*rooms.RoomView, error) {
			captured = input
			return &rooms.RoomView{Room: models.Room{ID: uuid.New(), Title: input.Title}}, nil
		},
	}
	handler := CreateRoom(svc, nil)
	body := `{"title":"Catalog deal","type":"license","right_id":"` + rightID.String() + `","creator_role":"seller"}`
	req := authedRequest(http.MethodPost, "/api/v1/rooms", strings.NewReader(body), userID, enums.UserRoleMember, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Actor.UserID != userID || captured.Actor.Role != enums.UserRoleMember {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if captured.RightID == nil || *captured.RightID != rightID {
		t.Fatalf("expected right id %s got %v", rightID, captured.RightID)
	}
	if captured.CreatorRole != enums.ParticipantRoleSeller {
		t.Fatalf("expected seller role got %s", captured.CreatorRole)
	}
}

func TestListRoomsParsesStatusFilter(t *testing.T) {
	userID := uuid.New()
	var captured rooms.ListParams
	svc := stubRoomsService{
		listFn: func(ctx context.Context, params rooms.ListParams) (*rooms.ListResult, error) {
			captured = params
			return &rooms.ListResult{}, nil
		},
	}
	handler := ListRooms(svc, nil)
	req := authedRequest(http.MethodGet, "/api/v1/rooms?status=signing&limit=5", nil, userID, enums.UserRoleMember, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID != userID || captured.Limit != 5 {
		t.Fatalf("unexpected params %+v", captured)
	}
	if captured.Status == nil || *captured.Status != enums.RoomStatusSigning {
		t.Fatalf("expected signing filter got %v", captured.Status)
	}
}

func TestTransitionRoomMapsStateConflict(t *testing.T) {
	roomID := uuid.New()
	svc := stubRoomsService{
		transitionFn: func(ctx context.Context, input rooms.TransitionInput) (*models.Room, error) {
			if input.RoomID != roomID || input.To != enums.RoomStatusCompleted {
				t.Fatalf("unexpected input %+v", input)
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")
		},
	}
	handler := TransitionRoom(svc, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"status":"completed","reason":"paid"}`), uuid.New(), enums.UserRoleOperator, map[string]string{"roomId": roomID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict got %s", code)
	}
}

func TestGetRoomRejectsBadID(t *testing.T) {
	handler := GetRoom(stubRoomsService{}, nil)
	req := authedRequest(http.MethodGet, "/", nil, uuid.New(), enums.UserRoleMember, map[string]string{"roomId": "not-a-uuid"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
