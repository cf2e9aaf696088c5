package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
)

type stubOffersService struct {
	offers.Service
	submitFn  func(ctx context.Context, input offers.SubmitInput) (*models.Offer, error)
	resolveFn func(ctx context.Context, input offers.ResolveInput) (*offers.ResolveResult, error)
}

func (s stubOffersService) Submit(ctx context.Context, input offers.SubmitInput) (*models.Offer, error) {
	return s.submitFn(ctx, input)
}

func (s stubOffersService) Resolve(ctx context.Context, input offers.ResolveInput) (*offers.ResolveResult, error) {
	return s.resolveFn(ctx, input)
}

func TestSubmitOfferForwardsRoomAndActor(t *testing.T) {
	userID := uuid.New()
	roomID := uuid.New()
	var captured offers.SubmitInput
	svc := stubOffersService{
		submitFn: func(ctx context.Context, input offers.SubmitInput) (*models.Offer, error) {
			captured = input
			return &models.Offer{ID: uuid.New(), RoomID: input.RoomID, Version: 1, Price: input.Price}, nil
		},
	}
	handler := SubmitOffer(svc, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"price":"1500.00","terms":"worldwide, 2 years"}`), userID, enums.UserRoleMember, map[string]string{"roomId": roomID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.RoomID != roomID || captured.Actor.UserID != userID {
		t.Fatalf("unexpected input %+v", captured)
	}
	if captured.Price != "1500.00" || captured.Message != nil {
		t.Fatalf("unexpected payload %+v", captured)
	}
}

func TestSubmitOfferRejectsUnknownFields(t *testing.T) {
	handler := SubmitOffer(stubOffersService{}, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"price":"10","terms":"x","version":7}`), uuid.New(), enums.UserRoleMember, map[string]string{"roomId": uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestResolveOfferParsesDecision(t *testing.T) {
	offerID := uuid.New()
	var captured offers.ResolveInput
	svc := stubOffersService{
		resolveFn: func(ctx context.Context, input offers.ResolveInput) (*offers.ResolveResult, error) {
			captured = input
			return &offers.ResolveResult{Offer: models.Offer{ID: input.OfferID, Status: input.Status}}, nil
		},
	}
	handler := ResolveOffer(svc, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"status":"Accept"}`), uuid.New(), enums.UserRoleMember, map[string]string{"offerId": offerID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.OfferID != offerID || captured.Status != enums.OfferStatusAccepted {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestResolveOfferRejectsOtherStatuses(t *testing.T) {
	handler := ResolveOffer(stubOffersService{}, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"status":"superseded"}`), uuid.New(), enums.UserRoleMember, map[string]string{"offerId": uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestResolveOfferSurfacesForbidden(t *testing.T) {
	svc := stubOffersService{
		resolveFn: func(ctx context.Context, input offers.ResolveInput) (*offers.ResolveResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a room participant")
		},
	}
	handler := ResolveOffer(svc, nil)
	req := authedRequest(http.MethodPost, "/", strings.NewReader(`{"status":"rejected"}`), uuid.New(), enums.UserRoleMember, map[string]string{"offerId": uuid.NewString()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
