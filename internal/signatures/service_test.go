package signatures

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/events"
	"github.com/angelmondragon/dealroom-backend/internal/feepolicies"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rights"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/internal/settlements"
	"github.com/angelmondragon/dealroom-backend/internal/testdb"
	"github.com/angelmondragon/dealroom-backend/pkg/config"
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

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

func (r *recordingNotifier) count(kind enums.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	db       *gorm.DB
	rooms    rooms.Service
	offers   offers.Service
	svc      Service
	bus      *events.Bus
	notifier *recordingNotifier
	seller   rooms.Actor
	buyer    rooms.Actor
	operator rooms.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "signatures-test", Output: io.Discard})
	tx := dbpkg.NewWithConn(db)
	pub := outbox.NewService(outbox.NewRepository(db), logg)
	notifier := &recordingNotifier{}

	auditSvc, err := audit.NewService(audit.NewRepository(db))
	require.NoError(t, err)
	rightsSvc, err := rights.NewService(rights.NewRepository(db))
	require.NoError(t, err)
	feeSvc, err := feepolicies.NewService(feepolicies.NewRepository(db))
	require.NoError(t, err)

	roomSvc, err := rooms.NewService(rooms.ServiceParams{
		Repo: rooms.NewRepository(db), Tx: tx, Outbox: pub, Audit: auditSvc,
		Rights: rightsSvc, Notifier: notifier, Logger: logg,
	})
	require.NoError(t, err)
	offerSvc, err := offers.NewService(offers.ServiceParams{
		Repo: offers.NewRepository(db), Rooms: roomSvc, Tx: tx, Outbox: pub, Audit: auditSvc,
		Rights: rightsSvc, Notifier: notifier, Logger: logg,
	})
	require.NoError(t, err)

	bus := events.NewBus()
	cascade, err := settlements.NewCascade(settlements.CascadeParams{
		Repo: settlements.NewRepository(db), Rooms: roomSvc, Offers: offerSvc, Fees: feeSvc,
		Audit: auditSvc, Outbox: pub, Notifier: notifier, Logger: logg,
		Config: config.SettlementConfig{
			PlatformPayeeID:    "00000000-0000-0000-0000-000000000001",
			DefaultFeeRate:     "5",
			DefaultPaymentType: "bank_transfer",
		},
	})
	require.NoError(t, err)
	cascade.Register(bus)

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Rooms:    roomSvc,
		Offers:   offerSvc,
		Tx:       tx,
		Outbox:   pub,
		Audit:    auditSvc,
		Events:   bus,
		Notifier: notifier,
		Logger:   logg,
	})
	require.NoError(t, err)

	return &fixture{
		db:       db,
		rooms:    roomSvc,
		offers:   offerSvc,
		svc:      svc,
		bus:      bus,
		notifier: notifier,
		seller:   rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember},
		buyer:    rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember},
		operator: rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleOperator},
	}
}

func (f *fixture) openRoom(t *testing.T, rightID *uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	view, err := f.rooms.Create(ctx, rooms.CreateInput{
		Title: "Patent license", Type: enums.RoomTypeLicense, RightID: rightID, Actor: f.seller, CreatorRole: enums.ParticipantRoleSeller,
	})
	require.NoError(t, err)
	_, err = f.rooms.AddParticipant(ctx, rooms.AddParticipantInput{
		RoomID: view.Room.ID, UserID: f.buyer.UserID, Role: enums.ParticipantRoleBuyer, Actor: f.seller,
	})
	require.NoError(t, err)
	return view.Room.ID
}

// agree runs the negotiation up to an accepted offer at price.
func (f *fixture) agree(t *testing.T, roomID uuid.UUID, price string) {
	t.Helper()
	ctx := context.Background()
	offer, err := f.offers.Submit(ctx, offers.SubmitInput{RoomID: roomID, Price: price, Actor: f.seller})
	require.NoError(t, err)
	_, err = f.offers.Resolve(ctx, offers.ResolveInput{OfferID: offer.ID, Status: enums.OfferStatusAccepted, Actor: f.buyer})
	require.NoError(t, err)
}

func (f *fixture) sign(t *testing.T, docID uuid.UUID, actor rooms.Actor) *RecordResult {
	t.Helper()
	res, err := f.svc.RecordSignature(context.Background(), RecordInput{DocumentID: docID, Action: enums.SignatureActionSign, Actor: actor})
	require.NoError(t, err)
	return res
}

func (f *fixture) roomStatus(t *testing.T, roomID uuid.UUID) enums.RoomStatus {
	t.Helper()
	var room models.Room
	require.NoError(t, f.db.First(&room, "id = ?", roomID).Error)
	return room.Status
}

func (f *fixture) settlementsFor(t *testing.T, roomID uuid.UUID) []models.Settlement {
	t.Helper()
	var out []models.Settlement
	require.NoError(t, f.db.Where("room_id = ?", roomID).Find(&out).Error)
	return out
}

func (f *fixture) upload(t *testing.T, roomID uuid.UUID) *models.Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), UploadInput{
		RoomID: roomID, Type: enums.DocumentTypeNDA, Name: "Mutual NDA", FileURL: "https://files.example.com/nda.pdf", Actor: f.seller,
	})
	require.NoError(t, err)
	return doc
}

func TestNegotiationToSettlementFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	right := models.Right{OwnerID: f.seller.UserID, Title: "Patent 42", Status: enums.RightStatusPublished}
	require.NoError(t, f.db.Create(&right).Error)
	roomID := f.openRoom(t, &right.ID)

	_, err := f.offers.Submit(ctx, offers.SubmitInput{RoomID: roomID, Price: "100", Actor: f.buyer})
	require.NoError(t, err)
	counter, err := f.offers.Submit(ctx, offers.SubmitInput{RoomID: roomID, Price: "90", Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, 2, counter.Version)
	assert.Equal(t, enums.RoomStatusNegotiating, f.roomStatus(t, roomID))

	_, err = f.offers.Resolve(ctx, offers.ResolveInput{OfferID: counter.ID, Status: enums.OfferStatusAccepted, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.RoomStatusSigning, f.roomStatus(t, roomID))
	var stored models.Right
	require.NoError(t, f.db.First(&stored, "id = ?", right.ID).Error)
	assert.Equal(t, enums.RightStatusUnderNegotiation, stored.Status)

	view, err := f.svc.GenerateContract(ctx, ContractInput{RoomID: roomID, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentTypeLicense, view.Document.Type)
	assert.Equal(t, enums.DocumentSignatureRequested, view.Document.SignatureStatus)
	require.NotNil(t, view.Document.Body)
	assert.Contains(t, *view.Document.Body, "Price: 90.00")
	require.Len(t, view.Requests, 2)
	docID := view.Document.ID

	first := f.sign(t, docID, f.buyer)
	assert.False(t, first.QuorumComplete)
	assert.Equal(t, enums.DocumentSignatureRequested, first.Document.SignatureStatus)
	assert.Empty(t, f.settlementsFor(t, roomID))

	f.notifier.reset()
	last := f.sign(t, docID, f.seller)
	assert.True(t, last.QuorumComplete)
	assert.Equal(t, enums.DocumentSignatureSigned, last.Document.SignatureStatus)

	settled := f.settlementsFor(t, roomID)
	require.Len(t, settled, 1)
	assert.Equal(t, "90.00", settled[0].Amount)
	assert.Equal(t, enums.SettlementStatusPending, settled[0].Status)
	assert.Equal(t, f.buyer.UserID, settled[0].PayerID)
	assert.Equal(t, enums.RoomStatusSettling, f.roomStatus(t, roomID))

	assert.Equal(t, 2, f.notifier.count(enums.NotificationKindDocumentSigned))
	assert.Equal(t, 2, f.notifier.count(enums.NotificationKindSettlementCreated))

	var signedEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ? AND aggregate_id = ?", enums.EventDocumentFullySigned, docID).Count(&signedEvents).Error)
	assert.Equal(t, int64(1), signedEvents)

	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: docID, Action: enums.SignatureActionSign, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestConcurrentFinalSignaturesSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	f.agree(t, roomID, "500")
	view, err := f.svc.GenerateContract(ctx, ContractInput{RoomID: roomID, Actor: f.buyer})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		quorums  int
		failures []error
	)
	for _, signer := range []rooms.Actor{f.buyer, f.seller} {
		wg.Add(1)
		go func(actor rooms.Actor) {
			defer wg.Done()
			res, err := f.svc.RecordSignature(ctx, RecordInput{DocumentID: view.Document.ID, Action: enums.SignatureActionSign, Actor: actor})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if res.QuorumComplete {
				quorums++
			}
		}(signer)
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, 1, quorums)
	assert.Len(t, f.settlementsFor(t, roomID), 1)
	assert.Equal(t, enums.RoomStatusSettling, f.roomStatus(t, roomID))
}

func TestFailedCascadeKeepsSignatureAndResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	f.agree(t, roomID, "250")
	view, err := f.svc.GenerateContract(ctx, ContractInput{RoomID: roomID, Actor: f.seller})
	require.NoError(t, err)
	docID := view.Document.ID

	// runs after the cascade has inserted the settlement, once
	var failures int
	f.bus.Subscribe(events.DocumentFullySigned, func(ctx context.Context, tx *gorm.DB, event events.Event) (events.Outcome, error) {
		if failures == 0 {
			failures++
			return events.Outcome{}, errors.New("ledger unavailable")
		}
		return events.Outcome{}, nil
	})

	f.sign(t, docID, f.buyer)
	f.notifier.reset()
	res := f.sign(t, docID, f.seller)
	assert.True(t, res.QuorumComplete)
	assert.True(t, res.CascadePending)
	assert.Equal(t, enums.DocumentSignatureSigned, res.Document.SignatureStatus)
	assert.Equal(t, enums.SignatureRequestSigned, res.Request.Status)
	assert.Empty(t, f.settlementsFor(t, roomID))
	assert.Equal(t, enums.RoomStatusSigning, f.roomStatus(t, roomID))
	assert.Equal(t, 0, f.notifier.count(enums.NotificationKindSettlementCreated))

	stored, err := f.svc.Get(ctx, docID, f.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentSignatureSigned, stored.Document.SignatureStatus)
	for _, r := range stored.Requests {
		assert.Equal(t, enums.SignatureRequestSigned, r.Status)
	}
	var signedEvents int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Where("event_type = ? AND aggregate_id = ?", enums.EventDocumentFullySigned, docID).Count(&signedEvents).Error)
	assert.Equal(t, int64(1), signedEvents)

	_, err = f.svc.ResumeCascade(ctx, ResumeInput{DocumentID: docID, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	resumed, err := f.svc.ResumeCascade(ctx, ResumeInput{DocumentID: docID, Actor: f.operator})
	require.NoError(t, err)
	assert.Equal(t, docID, resumed.Document.ID)
	settled := f.settlementsFor(t, roomID)
	require.Len(t, settled, 1)
	assert.Equal(t, "250.00", settled[0].Amount)
	assert.Equal(t, enums.RoomStatusSettling, f.roomStatus(t, roomID))
	assert.Equal(t, 2, f.notifier.count(enums.NotificationKindSettlementCreated))

	_, err = f.svc.ResumeCascade(ctx, ResumeInput{DocumentID: docID, Actor: f.operator})
	require.NoError(t, err)
	assert.Len(t, f.settlementsFor(t, roomID), 1)
}

func TestResumeCascadeRequiresSignedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	doc := f.upload(t, roomID)

	_, err := f.svc.ResumeCascade(ctx, ResumeInput{DocumentID: doc.ID, Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ResumeCascade(ctx, ResumeInput{DocumentID: uuid.New(), Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRejectionFailsDocumentImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	f.agree(t, roomID, "70")
	doc := f.upload(t, roomID)

	_, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{f.buyer.UserID, f.seller.UserID}, Actor: f.seller})
	require.NoError(t, err)
	f.notifier.reset()

	reason := "wrong counterparty name"
	res, err := f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureActionReject, Reason: &reason, Actor: f.buyer})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentSignatureRejected, res.Document.SignatureStatus)
	assert.Equal(t, enums.SignatureRequestRejected, res.Request.Status)
	require.NotNil(t, res.Request.RejectionReason)
	assert.Equal(t, reason, *res.Request.RejectionReason)

	got, err := f.svc.Get(ctx, doc.ID, f.seller)
	require.NoError(t, err)
	for _, r := range got.Requests {
		if r.SignerID == f.seller.UserID {
			assert.Equal(t, enums.SignatureRequestPending, r.Status)
		}
	}

	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureActionSign, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	assert.Empty(t, f.settlementsFor(t, roomID))
	assert.Equal(t, enums.RoomStatusSigning, f.roomStatus(t, roomID))
	// uploader and both signers, deduplicated
	assert.Equal(t, 2, f.notifier.count(enums.NotificationKindDocumentRejected))
}

func TestReRequestResetsRejectedSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	f.agree(t, roomID, "80")
	doc := f.upload(t, roomID)
	signers := []uuid.UUID{f.buyer.UserID, f.seller.UserID}
	deadline := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)

	_, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: signers, Actor: f.seller})
	require.NoError(t, err)
	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureActionReject, Actor: f.buyer})
	require.NoError(t, err)

	view, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: signers, Deadline: &deadline, Actor: f.seller})
	require.NoError(t, err)
	assert.Equal(t, enums.DocumentSignatureRequested, view.Document.SignatureStatus)
	require.Len(t, view.Requests, 2)
	for _, r := range view.Requests {
		assert.Equal(t, enums.SignatureRequestPending, r.Status)
		assert.Nil(t, r.RejectedAt)
		assert.Nil(t, r.RejectionReason)
		require.NotNil(t, r.Deadline)
	}

	f.sign(t, doc.ID, f.seller)
	res := f.sign(t, doc.ID, f.buyer)
	assert.True(t, res.QuorumComplete)
	assert.Len(t, f.settlementsFor(t, roomID), 1)

	_, err = f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: signers, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReRequestSubsetRestartsWholeRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	f.agree(t, roomID, "80")
	doc := f.upload(t, roomID)

	_, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{f.buyer.UserID, f.seller.UserID}, Actor: f.seller})
	require.NoError(t, err)
	f.sign(t, doc.ID, f.seller)
	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureActionReject, Actor: f.buyer})
	require.NoError(t, err)

	view, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{f.seller.UserID}, Actor: f.seller})
	require.NoError(t, err)
	require.Len(t, view.Requests, 2)
	for _, r := range view.Requests {
		assert.Equal(t, enums.SignatureRequestPending, r.Status)
		assert.Nil(t, r.SignedAt)
		assert.Nil(t, r.RejectedAt)
	}

	first := f.sign(t, doc.ID, f.seller)
	assert.False(t, first.QuorumComplete)
	last := f.sign(t, doc.ID, f.buyer)
	assert.True(t, last.QuorumComplete)
	assert.Len(t, f.settlementsFor(t, roomID), 1)
	assert.Equal(t, enums.RoomStatusSettling, f.roomStatus(t, roomID))
}

func TestSignedDocumentWithoutAcceptedOfferDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	doc := f.upload(t, roomID)

	_, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{f.buyer.UserID}, Actor: f.seller})
	require.NoError(t, err)
	res := f.sign(t, doc.ID, f.buyer)

	assert.True(t, res.QuorumComplete)
	assert.Equal(t, enums.DocumentSignatureSigned, res.Document.SignatureStatus)
	assert.Empty(t, f.settlementsFor(t, roomID))
	assert.Equal(t, enums.RoomStatusSetup, f.roomStatus(t, roomID))
}

func TestRecordSignatureRequiresPendingRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	doc := f.upload(t, roomID)

	_, err := f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureActionSign, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: uuid.New(), Action: enums.SignatureActionSign, Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.RecordSignature(ctx, RecordInput{DocumentID: doc.ID, Action: enums.SignatureAction("approve"), Actor: f.buyer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRequestSignaturesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)
	doc := f.upload(t, roomID)

	_, err := f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{uuid.New()}, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	outsider := rooms.Actor{UserID: uuid.New(), Role: enums.UserRoleMember}
	_, err = f.svc.RequestSignatures(ctx, RequestInput{DocumentID: doc.ID, SignerIDs: []uuid.UUID{f.buyer.UserID}, Actor: outsider})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestUploadAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomID := f.openRoom(t, nil)

	_, err := f.svc.Upload(ctx, UploadInput{RoomID: roomID, Type: enums.DocumentTypeNDA, Name: "NDA", FileURL: "not a url", Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	first := f.upload(t, roomID)
	second := f.upload(t, roomID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, enums.DocumentSignatureDraft, first.SignatureStatus)

	docs, err := f.svc.List(ctx, roomID, f.buyer)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestGenerateContractRequiresAcceptedOffer(t *testing.T) {
	f := newFixture(t)
	roomID := f.openRoom(t, nil)

	_, err := f.svc.GenerateContract(context.Background(), ContractInput{RoomID: roomID, Actor: f.seller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}
