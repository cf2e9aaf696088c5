// Package signatures tracks room documents and the signature quorum that
// triggers settlement.
package signatures

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/events"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox"
	"github.com/angelmondragon/dealroom-backend/pkg/outbox/payloads"
)

const (
	maxNameLength    = 255
	maxReasonLength  = 2000
	maxPayloadLength = 64 * 1024
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, event events.Event) (events.Outcome, error)
}

type roomWorkflow interface {
	rooms.Workflow
	Authorize(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error)
}

type Service interface {
	Upload(ctx context.Context, input UploadInput) (*models.Document, error)
	GenerateContract(ctx context.Context, input ContractInput) (*DocumentView, error)
	Get(ctx context.Context, documentID uuid.UUID, actor rooms.Actor) (*DocumentView, error)
	List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Document, error)
	RequestSignatures(ctx context.Context, input RequestInput) (*DocumentView, error)
	RecordSignature(ctx context.Context, input RecordInput) (*RecordResult, error)
	ResumeCascade(ctx context.Context, input ResumeInput) (*DocumentView, error)
}

// ServiceParams wires the signature tracker. Metrics may be nil.
type ServiceParams struct {
	Repo     Repository
	Rooms    roomWorkflow
	Offers   offers.Ledger
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    audit.Recorder
	Events   dispatcher
	Notifier notifications.Notifier
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
}

type service struct {
	repo     Repository
	rooms    roomWorkflow
	offers   offers.Ledger
	tx       txRunner
	outbox   outboxPublisher
	audit    audit.Recorder
	events   dispatcher
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("signatures repository required")
	case params.Rooms == nil:
		return nil, fmt.Errorf("room workflow required")
	case params.Offers == nil:
		return nil, fmt.Errorf("offer ledger required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Events == nil:
		return nil, fmt.Errorf("event dispatcher required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		rooms:    params.Rooms,
		offers:   params.Offers,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		events:   params.Events,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

type uploadDetail struct {
	Type    enums.DocumentType `json:"type"`
	Name    string             `json:"name"`
	Version int                `json:"version"`
}

func (s *service) Upload(ctx context.Context, input UploadInput) (*models.Document, error) {
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid document type %q", input.Type)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "name must be 1-%d characters", maxNameLength)
	}
	fileURL := strings.TrimSpace(input.FileURL)
	if parsed, err := url.ParseRequestURI(fileURL); err != nil || parsed.Host == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_url must be an absolute url")
	}

	doc := &models.Document{
		RoomID:          input.RoomID,
		UploadedBy:      input.Actor.UserID,
		Type:            input.Type,
		Name:            name,
		FileURL:         &fileURL,
		SignatureStatus: enums.DocumentSignatureDraft,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		room, err := s.lockMemberRoom(ctx, tx, input.RoomID, input.Actor)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		if doc.Version, err = repo.NextDocumentVersion(ctx, room.ID, doc.Type); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read document version")
		}
		if err := repo.CreateDocument(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create document")
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionDocumentUploaded,
			TargetType: enums.AuditTargetDocument,
			TargetID:   &doc.ID,
			Detail:     uploadDetail{Type: doc.Type, Name: doc.Name, Version: doc.Version},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithRoomID(ctx, doc.RoomID.String()), "document_id", doc.ID.String()), "document uploaded")
	return doc, nil
}

type contractDetail struct {
	OfferID   uuid.UUID   `json:"offer_id"`
	Version   int         `json:"version"`
	SignerIDs []uuid.UUID `json:"signer_ids"`
	Deadline  *time.Time  `json:"deadline,omitempty"`
}

func (s *service) GenerateContract(ctx context.Context, input ContractInput) (*DocumentView, error) {
	started := time.Now()
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}

	var (
		view    DocumentView
		room    *models.Room
		signers []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		room, err = s.lockMemberRoom(ctx, tx, input.RoomID, input.Actor)
		if err != nil {
			return err
		}
		if room.Status != enums.RoomStatusSigning {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "contracts are generated while the room is signing, not %s", room.Status)
		}
		participants, err := s.rooms.ParticipantsTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if !rooms.HasCounterparties(participants) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a contract requires a buyer and a seller participant")
		}
		offer, err := s.offers.LatestAcceptedTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if offer == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "room has no accepted offer")
		}

		repo := s.repo.WithTx(tx)
		version, err := repo.NextDocumentVersion(ctx, room.ID, enums.DocumentTypeLicense)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read document version")
		}
		body, err := renderContract(version, *room, *offer, participants, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render contract")
		}
		offerID := offer.ID
		doc := &models.Document{
			RoomID:          room.ID,
			UploadedBy:      input.Actor.UserID,
			Type:            enums.DocumentTypeLicense,
			Name:            fmt.Sprintf("License agreement v%d", version),
			Body:            &body,
			OfferID:         &offerID,
			SignatureStatus: enums.DocumentSignatureRequested,
			Version:         version,
		}
		if err := repo.CreateDocument(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contract")
		}

		for _, p := range counterparties(participants) {
			signers = append(signers, p.UserID)
		}
		signers = uniqueIDs(signers)
		if err := repo.UpsertPending(ctx, doc.ID, signers, input.Deadline); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request signatures")
		}
		requests, err := repo.ListRequests(ctx, doc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionContractGenerated,
			TargetType: enums.AuditTargetDocument,
			TargetID:   &doc.ID,
			Detail:     contractDetail{OfferID: offerID, Version: version, SignerIDs: signers, Deadline: input.Deadline},
		}); err != nil {
			return err
		}
		view = DocumentView{Document: *doc, Requests: requests}
		return nil
	})
	s.metrics.ObserveOperation("generate_contract", started, err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, s.signatureNotices(room, &view.Document, signers)...)
	s.logg.Info(s.logg.WithField(s.logg.WithRoomID(ctx, room.ID.String()), "document_id", view.Document.ID.String()), "contract generated")
	return &view, nil
}

func (s *service) Get(ctx context.Context, documentID uuid.UUID, actor rooms.Actor) (*DocumentView, error) {
	doc, err := s.repo.FindDocument(ctx, documentID)
	if err != nil {
		return nil, mapDocumentError(err, "load document")
	}
	if _, err := s.rooms.Authorize(ctx, doc.RoomID, actor); err != nil {
		return nil, err
	}
	requests, err := s.repo.ListRequests(ctx, doc.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
	}
	return &DocumentView{Document: *doc, Requests: requests}, nil
}

func (s *service) List(ctx context.Context, roomID uuid.UUID, actor rooms.Actor) ([]models.Document, error) {
	if roomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	if _, err := s.rooms.Authorize(ctx, roomID, actor); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}
	return docs, nil
}

type requestDetail struct {
	SignerIDs []uuid.UUID `json:"signer_ids"`
	Deadline  *time.Time  `json:"deadline,omitempty"`
}

func (s *service) RequestSignatures(ctx context.Context, input RequestInput) (*DocumentView, error) {
	started := time.Now()
	if input.DocumentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}
	signers := uniqueIDs(input.SignerIDs)
	if len(signers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one signer required")
	}

	var (
		view DocumentView
		room *models.Room
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		doc, err := repo.LockDocument(ctx, input.DocumentID)
		if err != nil {
			return mapDocumentError(err, "lock document")
		}
		room, err = s.lockMemberRoom(ctx, tx, doc.RoomID, input.Actor)
		if err != nil {
			return err
		}
		if doc.SignatureStatus == enums.DocumentSignatureSigned {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "document is already signed")
		}
		if doc.SignatureStatus == enums.DocumentSignatureRejected {
			// a rejected document restarts the round for every signer on it,
			// otherwise an unlisted rejection would block the quorum forever
			prior, err := repo.ListRequests(ctx, doc.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
			}
			signers = uniqueIDs(append(signers, signerIDs(prior)...))
		}
		participants, err := s.rooms.ParticipantsTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		for _, signer := range signers {
			if _, ok := rooms.FindParticipant(participants, signer); !ok {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "signer %s is not a room participant", signer)
			}
		}

		if err := repo.UpsertPending(ctx, doc.ID, signers, input.Deadline); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request signatures")
		}
		if err := repo.SetDocumentStatus(ctx, doc.ID, enums.DocumentSignatureRequested); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update document status")
		}
		doc.SignatureStatus = enums.DocumentSignatureRequested
		requests, err := repo.ListRequests(ctx, doc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     enums.AuditActionSignaturesRequested,
			TargetType: enums.AuditTargetDocument,
			TargetID:   &doc.ID,
			Detail:     requestDetail{SignerIDs: signers, Deadline: input.Deadline},
		}); err != nil {
			return err
		}
		view = DocumentView{Document: *doc, Requests: requests}
		return nil
	})
	s.metrics.ObserveOperation("request_signatures", started, err)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, s.signatureNotices(room, &view.Document, signers)...)
	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
		"document_id": view.Document.ID.String(),
		"signers":     len(signers),
	})
	s.logg.Info(logCtx, "signatures requested")
	return &view, nil
}

type recordDetail struct {
	SignerID       uuid.UUID                     `json:"signer_id"`
	Action         enums.SignatureAction         `json:"action"`
	Reason         *string                       `json:"reason,omitempty"`
	QuorumComplete bool                          `json:"quorum_complete"`
	CascadePending bool                          `json:"cascade_pending,omitempty"`
	DocumentStatus enums.DocumentSignatureStatus `json:"document_status"`
}

// RecordSignature applies one signer's decision. The document row is locked
// for the whole decision so that exactly one signer observes the completed
// quorum and dispatches DocumentFullySigned. Handlers run under a savepoint:
// their failure leaves the signature committed and the cascade pending.
func (s *service) RecordSignature(ctx context.Context, input RecordInput) (*RecordResult, error) {
	started := time.Now()
	if input.DocumentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid signature action %q", input.Action)
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	payload := trimmed(input.Payload)
	if payload != nil && len(*payload) > maxPayloadLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signature payload too large")
	}
	reason := trimmed(input.Reason)
	if reason != nil && len(*reason) > maxReasonLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason exceeds %d characters", maxReasonLength)
	}

	var (
		result       RecordResult
		room         *models.Room
		participants []models.RoomParticipant
		requests     []models.SignatureRequest
		outcome      events.Outcome
		cascadeErr   error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// reset per attempt, WithTx may rerun this closure
		result, outcome, cascadeErr = RecordResult{}, events.Outcome{}, nil
		repo := s.repo.WithTx(tx)
		doc, err := repo.LockDocument(ctx, input.DocumentID)
		if err != nil {
			return mapDocumentError(err, "lock document")
		}
		room, err = s.rooms.LockTx(ctx, tx, doc.RoomID)
		if err != nil {
			return err
		}
		if room.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
		}
		participants, err = s.rooms.ParticipantsTx(ctx, tx, room.ID)
		if err != nil {
			return err
		}

		req, err := repo.FindRequest(ctx, doc.ID, input.Actor.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no signature request for this signer")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature request")
		}
		if req.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "signature request is already %s", req.Status)
		}
		if doc.SignatureStatus != enums.DocumentSignatureRequested {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "document is %s", doc.SignatureStatus)
		}

		now := s.now()
		detail := recordDetail{SignerID: input.Actor.UserID, Action: input.Action}
		action := enums.AuditActionSignatureRecorded
		switch input.Action {
		case enums.SignatureActionSign:
			updated, err := repo.SignRequest(ctx, req.ID, payload, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record signature")
			}
			if updated == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "signature request changed concurrently")
			}
			req.Status = enums.SignatureRequestSigned
			req.SignedAt = &now
			req.SignaturePayload = payload

			// check the full set, not just this signer
			requests, err = repo.ListRequests(ctx, doc.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
			}
			if allSigned(requests) {
				flipped, err := repo.MarkDocumentSigned(ctx, doc.ID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark document signed")
				}
				doc.SignatureStatus = enums.DocumentSignatureSigned
				if flipped == 1 {
					result.QuorumComplete = true
					if err := s.emitFullySigned(ctx, tx, doc, requests, input.Actor, now); err != nil {
						return err
					}
					cascadeErr = tx.Transaction(func(sp *gorm.DB) error {
						var err error
						outcome, err = s.dispatchFullySigned(ctx, sp, doc, requests, input.Actor, now)
						return err
					})
					if cascadeErr != nil {
						outcome = events.Outcome{}
						result.CascadePending = true
					}
				}
			}
		case enums.SignatureActionReject:
			action = enums.AuditActionSignatureRejected
			updated, err := repo.RejectRequest(ctx, req.ID, reason, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rejection")
			}
			if updated == 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "signature request changed concurrently")
			}
			req.Status = enums.SignatureRequestRejected
			req.RejectedAt = &now
			req.RejectionReason = reason
			detail.Reason = reason

			if err := repo.SetDocumentStatus(ctx, doc.ID, enums.DocumentSignatureRejected); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark document rejected")
			}
			doc.SignatureStatus = enums.DocumentSignatureRejected
			requests, err = repo.ListRequests(ctx, doc.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
			}
			event := payloads.DocumentRejectedEvent{DocumentID: doc.ID, RoomID: room.ID, SignerID: input.Actor.UserID}
			if reason != nil {
				event.Reason = *reason
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDocumentRejected,
				AggregateType: enums.AggregateDocument,
				AggregateID:   doc.ID,
				Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
				Data:          event,
				OccurredAt:    now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit document rejected")
			}
		}

		detail.QuorumComplete = result.QuorumComplete
		detail.CascadePending = result.CascadePending
		detail.DocumentStatus = doc.SignatureStatus
		if err := s.audit.Record(ctx, tx, audit.Entry{
			RoomID:     room.ID,
			ActorID:    input.Actor.Ref(),
			Action:     action,
			TargetType: enums.AuditTargetSignatureRequest,
			TargetID:   &req.ID,
			Detail:     detail,
		}); err != nil {
			return err
		}
		result.Document = *doc
		result.Request = *req
		return nil
	})
	s.metrics.ObserveOperation("record_signature", started, err)
	if err != nil {
		return nil, err
	}
	s.metrics.IncSignature(string(input.Action))
	if cascadeErr != nil {
		s.metrics.ObserveCascade(metrics.CascadeFailed)
		failCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
			"document_id": result.Document.ID.String(),
		})
		s.logg.Error(failCtx, "settlement cascade failed, document left signed for resume", cascadeErr)
	}

	switch {
	case input.Action == enums.SignatureActionReject:
		recipients := append([]uuid.UUID{result.Document.UploadedBy}, signerIDs(requests)...)
		s.notifier.Notify(ctx, directNotices(uniqueIDs(recipients), notifications.Notice{
			RoomID:  &room.ID,
			Kind:    enums.NotificationKindDocumentRejected,
			Message: fmt.Sprintf("%q was rejected by a signer", result.Document.Name),
			Link:    notifications.RoomLink(room.ID),
		})...)
	case result.QuorumComplete:
		s.notifier.Notify(ctx, notifications.Fanout(participants, notifications.Notice{
			RoomID:  &room.ID,
			Kind:    enums.NotificationKindDocumentSigned,
			Message: fmt.Sprintf("%q is fully signed", result.Document.Name),
			Link:    notifications.RoomLink(room.ID),
		})...)
		outcome.Run(ctx)
	}

	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, room.ID.String()), map[string]any{
		"document_id":     result.Document.ID.String(),
		"action":          input.Action,
		"quorum_complete": result.QuorumComplete,
	})
	s.logg.Info(logCtx, "signature recorded")
	return &result, nil
}

// emitFullySigned writes DocumentFullySigned to the outbox in the signing
// transaction.
func (s *service) emitFullySigned(ctx context.Context, tx *gorm.DB, doc *models.Document, requests []models.SignatureRequest, actor rooms.Actor, now time.Time) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventDocumentFullySigned,
		AggregateType: enums.AggregateDocument,
		AggregateID:   doc.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data: payloads.DocumentFullySignedEvent{
			DocumentID: doc.ID,
			RoomID:     doc.RoomID,
			SignerIDs:  signerIDs(requests),
			SignedAt:   now,
		},
		OccurredAt: now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit document signed")
	}
	return nil
}

// dispatchFullySigned runs the in-process DocumentFullySigned subscribers.
func (s *service) dispatchFullySigned(ctx context.Context, tx *gorm.DB, doc *models.Document, requests []models.SignatureRequest, actor rooms.Actor, now time.Time) (events.Outcome, error) {
	outcome, err := s.events.Dispatch(ctx, tx, events.Event{
		Name:       events.DocumentFullySigned,
		RoomID:     doc.RoomID,
		ActorID:    actor.Ref(),
		OccurredAt: now,
		Data:       events.DocumentFullySignedData{DocumentID: doc.ID, SignerIDs: signerIDs(requests)},
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return events.Outcome{}, typed
		}
		return events.Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "document signed handlers")
	}
	return outcome, nil
}

// ResumeCascade re-dispatches DocumentFullySigned for a signed document whose
// cascade failed. Subscribers are idempotent, so resuming a completed cascade
// changes nothing.
func (s *service) ResumeCascade(ctx context.Context, input ResumeInput) (*DocumentView, error) {
	started := time.Now()
	if input.DocumentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "operator role required")
	}

	var (
		view    DocumentView
		outcome events.Outcome
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		doc, err := repo.LockDocument(ctx, input.DocumentID)
		if err != nil {
			return mapDocumentError(err, "lock document")
		}
		if doc.SignatureStatus != enums.DocumentSignatureSigned {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "document is %s", doc.SignatureStatus)
		}
		requests, err := repo.ListRequests(ctx, doc.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load signature requests")
		}
		outcome, err = s.dispatchFullySigned(ctx, tx, doc, requests, input.Actor, s.now())
		if err != nil {
			return err
		}
		view = DocumentView{Document: *doc, Requests: requests}
		return nil
	})
	s.metrics.ObserveOperation("resume_cascade", started, err)
	if err != nil {
		return nil, err
	}
	outcome.Run(ctx)

	logCtx := s.logg.WithFields(s.logg.WithRoomID(ctx, view.Document.RoomID.String()), map[string]any{
		"document_id": view.Document.ID.String(),
	})
	s.logg.Info(logCtx, "document signed cascade resumed")
	return &view, nil
}

func (s *service) lockMemberRoom(ctx context.Context, tx *gorm.DB, roomID uuid.UUID, actor rooms.Actor) (*models.Room, error) {
	room, err := s.rooms.LockTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	participants, err := s.rooms.ParticipantsTx(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if err := rooms.RequireMember(participants, actor); err != nil {
		return nil, err
	}
	if room.Status.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "room is %s", room.Status)
	}
	return room, nil
}

func (s *service) signatureNotices(room *models.Room, doc *models.Document, signers []uuid.UUID) []notifications.Notice {
	return directNotices(signers, notifications.Notice{
		RoomID:  &room.ID,
		Kind:    enums.NotificationKindSignatureRequested,
		Message: fmt.Sprintf("Your signature is requested on %q in %q", doc.Name, room.Title),
		Link:    notifications.RoomLink(room.ID),
	})
}

func directNotices(userIDs []uuid.UUID, template notifications.Notice) []notifications.Notice {
	notices := make([]notifications.Notice, 0, len(userIDs))
	for _, id := range userIDs {
		n := template
		n.UserID = id
		notices = append(notices, n)
	}
	return notices
}

func mapDocumentError(err error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
