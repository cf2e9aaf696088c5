package offers

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/rights"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/internal/testdb"
	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notifications.Notice
}

func (r *recordingNotifier) Notify(ctx context.Context, notices ...notifications.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notices...)
}

func (r *recordingNotifier) kinds() []enums.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.NotificationKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	rooms    rooms.Service
	svc      Service
	notifier *recordingNotifier
	seller   rooms.Actor
	buyer    rooms.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "offers-test", Output: io.Discard})
	tx := dbpkg.NewWithConn(db)
	pub := outbox.NewService(outbox.NewRepository(db), logg)

	auditSvc, err := audit.NewService(audit.NewRepository(db))
	require.NoError(t, err)
	rightsSvc, err := rights.NewService(rights.NewRepository(db))
	require.NoError(t, err)
	notifier := &recordingNotifier{}

	roomSvc, err := rooms.NewService(rooms.ServiceParams{
		Repo:     rooms.NewRepository(db),
		Tx:       tx,
		Outbox:   pub,
		Audit:    auditSvc,
		Rights:   rightsSvc,
		Notifier: notifier,
		Logger:   logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Rooms:    roomSvc,
		Tx:       tx,
		Outbox:   pub,
		Audit:    auditSvc,
		Rights:   rightsSvc,
		Notifier: notifier,
		Logger:   logg,
	})
	require.NoError(t, err)

	return &fixture{
		db:       db,
		rooms:    roomSvc,
		svc:      svc,
		notifier: notifier,
		seller:   rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember},
		buyer:    rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember},
	}
}

// openRoom creates a room owned by the seller with the buyer joined.
func (f *fixture) openRoom(t *testing.T, rightID *uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	view, err := f.rooms.Create(ctx, rooms.CreateInput{
		Title:       "Film rights",
		Type:        enums.RoomTypeDeal,
		RightID:     rightID,
		Actor:       f.seller,
		CreatorRole: enums.ParticipantRoleSeller,
	})
	require.NoError(t, err)
	_, err = f.rooms.AddParticipant(ctx, rooms.AddParticipantInput{
		RoomID: view.Room.ID,
		UserID: f.buyer.UserID,
		Role:   enums.ParticipantRoleBuyer,
		Actor:  f.seller,
	})
	require.NoError(t, err)
	f.notifier.notices = nil
	return view.Room.ID
}

func (f *fixture) submit(t *testing.T, roomID uuid.UUID, actor rooms.Actor, price string) *models.Offer {
	t.Helper()
	offer, err := f.svc.Submit(context.Background(), SubmitInput{RoomID: roomID, Price: price, Terms: "worldwide, 5 years", Actor: actor})
	require.NoError(t, err)
	return offer
}

func (f *fixture) room(t *testing.T, roomID uuid.UUID) models.Room {
	t.Helper()
	var room models.Room
	require.NoError(t, f.db.First(&room, "id = ?", roomID).Error)
	return room
}

func (f *fixture) audits(t *testing.T, roomID uuid.UUID, action enums.AuditAction) []models.AuditLogEntry {
	t.Helper()
	var entries []models.AuditLogEntry
	require.NoError(t, f.db.Where("room_id = ? AND action = ?", roomID, action).Order("created_at ASC").Find(&entries).Error)
	return entries
}

func TestSubmitAssignsGaplessVersionsAndOpensNegotiation(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)

	first := f.submit(t, roomID, f.buyer, "1000")
	second := f.submit(t, roomID, f.seller, "1250.5")
	third := f.submit(t, roomID, f.buyer, "1100.00")

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 3, third.Version)
	assert.Equal(t, "1000.00", first.Price)
	assert.Equal(t, "1250.50", second.Price)
	assert.Equal(t, enums.OfferStatusSent, third.Status)

	assert.Equal(t, enums.RoomStatusNegotiating, f.room(t, roomID).Status)

	entries := f.audits(t, roomID, enums.AuditActionOfferSubmitted)
	require.Len(t, entries, 3)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Detail, &detail))
	assert.Contains(t, detail, "room_status")
	require.NoError(t, json.Unmarshal(entries[1].Detail, &detail))
	assert.Equal(t, float64(2), detail["version"])

	listed, err := f.svc.List(context.Background(), roomID, f.buyer)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, o := range listed {
		assert.Equal(t, i+1, o.Version)
	}

	// each submission notifies the other side only
	assert.Len(t, f.notifier.notices, 3)
	for _, n := range f.notifier.notices {
		assert.Equal(t, enums.NotificationKindOfferSubmitted, n.Kind)
	}
}

func TestSubmitConcurrentSubmissionsStayGapless(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		actor := f.buyer
		if i%2 == 0 {
			actor = f.seller
		}
		wg.Add(1)
		go func(actor rooms.Actor) {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), SubmitInput{RoomID: roomID, Price: "10", Actor: actor})
			errs <- err
		}(actor)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	listed, err := f.svc.List(context.Background(), roomID, f.seller)
	require.NoError(t, err)
	require.Len(t, listed, 6)
	for i, o := range listed {
		assert.Equal(t, i+1, o.Version)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)
	ctx := context.Background()

	for _, price := range []string{"", "abc", "0", "-5", "10.001"} {
		_, err := f.svc.Submit(ctx, SubmitInput{RoomID: roomID, Price: price, Actor: f.buyer})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "price %q: %v", price, err)
	}

	_, err := f.svc.Submit(ctx, SubmitInput{RoomID: roomID, Price: "10", Actor: rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Submit(ctx, SubmitInput{RoomID: uuid.New(), Price: "10", Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.db.Model(&models.Room{}).Where("id = ?", roomID).Update("status", enums.RoomStatusSettling).Error)
	_, err = f.svc.Submit(ctx, SubmitInput{RoomID: roomID, Price: "10", Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAcceptOfferMovesRoomToSigningAndLocksRight(t *testing.T) {
	f := newFixture(t)
	right := models.Right{OwnerID: f.seller.UserID, Title: "Catalog", Status: enums.RightStatusPublished}
	require.NoError(t, f.db.Create(&right).Error)
	roomID := f.openRoom(t, &right.ID)
	offer := f.submit(t, roomID, f.buyer, "5000")
	f.notifier.notices = nil

	res, err := f.svc.Resolve(context.Background(), ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusAccepted, res.Offer.Status)
	require.NotNil(t, res.RoomChange)
	assert.Equal(t, enums.RoomStatusSigning, res.RoomChange.To)
	assert.Equal(t, enums.RoomStatusSigning, f.room(t, roomID).Status)

	var stored models.Right
	require.NoError(t, f.db.First(&stored, "id = ?", right.ID).Error)
	assert.Equal(t, enums.RightStatusUnderNegotiation, stored.Status)

	require.Len(t, f.audits(t, roomID, enums.AuditActionOfferResolved), 1)
	assert.Empty(t, f.audits(t, roomID, enums.AuditActionRoomStatusChanged))
	assert.Equal(t, []enums.NotificationKind{enums.NotificationKindOfferAccepted}, f.notifier.kinds())

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ? AND aggregate_id = ?", enums.EventOfferResolved, offer.ID).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestAcceptSupersedesPreviouslyAcceptedOffer(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)
	ctx := context.Background()

	first := f.submit(t, roomID, f.buyer, "100")
	_, err := f.svc.Resolve(ctx, ResolveInput{OfferID: first.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	require.NoError(t, err)

	second := f.submit(t, roomID, f.seller, "120")
	res, err := f.svc.Resolve(ctx, ResolveInput{OfferID: second.ID, Status: enums.OfferStatusAccepted, Actor: f.buyer})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID}, res.Superseded)
	assert.Nil(t, res.RoomChange)

	listed, err := f.svc.List(ctx, roomID, f.buyer)
	require.NoError(t, err)
	accepted := 0
	for _, o := range listed {
		if o.Status == enums.OfferStatusAccepted {
			accepted++
			assert.Equal(t, second.ID, o.ID)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, enums.OfferStatusSuperseded, listed[0].Status)
}

func TestResolveRejectsNonSentOffers(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)
	ctx := context.Background()
	offer := f.submit(t, roomID, f.buyer, "100")

	res, err := f.svc.Resolve(ctx, ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusRejected, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusRejected, res.Offer.Status)
	assert.Equal(t, enums.RoomStatusNegotiating, f.room(t, roomID).Status)

	_, err = f.svc.Resolve(ctx, ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = f.svc.Resolve(ctx, ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusSuperseded, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Resolve(ctx, ResolveInput{OfferID: uuid.New(), Status: enums.OfferStatusAccepted, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAcceptRequiresCounterparties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.rooms.Create(ctx, rooms.CreateInput{Title: "Solo", Type: enums.RoomTypeDeal, Actor: f.seller, CreatorRole: enums.ParticipantRoleSeller})
	require.NoError(t, err)
	offer := f.submit(t, view.Room.ID, f.seller, "10")

	_, err = f.svc.Resolve(ctx, ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var stored models.Offer
	require.NoError(t, f.db.First(&stored, "id = ?", offer.ID).Error)
	assert.Equal(t, enums.OfferStatusSent, stored.Status)
}

func TestParsePrice(t *testing.T) {
	cases := map[string]string{
		"1":       "1.00",
		" 12.5 ":  "12.50",
		"99.99":   "99.99",
		"100.000": "100.00",
	}
	for raw, want := range cases {
		got, err := ParsePrice(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got.StringFixed(2))
	}
}

func TestLatestAcceptedTx(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)
	ctx := context.Background()

	none, err := f.svc.LatestAcceptedTx(ctx, f.db, roomID)
	require.NoError(t, err)
	assert.Nil(t, none)

	offer := f.submit(t, roomID, f.buyer, "75")
	_, err = f.svc.Resolve(ctx, ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	require.NoError(t, err)

	latest, err := f.svc.LatestAcceptedTx(ctx, f.db, roomID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, offer.ID, latest.ID)
	assert.Equal(t, "75.00", latest.Price)
}
