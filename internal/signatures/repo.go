package signatures

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
	"github.com/angelmondragon/dealroom-backend/pkg/db/models"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Repository persists documents and their signature requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateDocument(ctx context.Context, doc *models.Document) error
	FindDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	LockDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, roomID uuid.UUID) ([]models.Document, error)
	NextDocumentVersion(ctx context.Context, roomID uuid.UUID, docType enums.DocumentType) (int, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status enums.DocumentSignatureStatus) error
	MarkDocumentSigned(ctx context.Context, id uuid.UUID) (int64, error)

	UpsertPending(ctx context.Context, documentID uuid.UUID, signerIDs []uuid.UUID, deadline *time.Time) error
	FindRequest(ctx context.Context, documentID, signerID uuid.UUID) (*models.SignatureRequest, error)
	ListRequests(ctx context.Context, documentID uuid.UUID) ([]models.SignatureRequest, error)
	SignRequest(ctx context.Context, id uuid.UUID, payload *string, at time.Time) (int64, error)
	RejectRequest(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (int64, error)

	ListOverdue(ctx context.Context, now time.Time, limit int) ([]OverdueRequest, error)
	MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
}

// OverdueRequest is a pending signature request whose advisory deadline has
// passed without a reminder being sent.
type OverdueRequest struct {
	RequestID    uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	RoomID       uuid.UUID
	SignerID     uuid.UUID
	Deadline     time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateDocument(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *repository) FindDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) LockDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *repository) ListDocuments(ctx context.Context, roomID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, err
}

func (r *repository) NextDocumentVersion(ctx context.Context, roomID uuid.UUID, docType enums.DocumentType) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("COALESCE(MAX(version), 0)").
		Where("room_id = ? AND type = ?", roomID, docType).
		Scan(&max).Error
	return max + 1, err
}

func (r *repository) SetDocumentStatus(ctx context.Context, id uuid.UUID, status enums.DocumentSignatureStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Update("signature_status", status).Error
}

// MarkDocumentSigned flips the document to signed once. Zero rows means
// another signer already completed the quorum.
func (r *repository) MarkDocumentSigned(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND signature_status <> ?", id, enums.DocumentSignatureSigned).
		Update("signature_status", enums.DocumentSignatureSigned)
	return result.RowsAffected, result.Error
}

// UpsertPending creates a pending request per signer, resetting any prior
// outcome for signers already on the document.
func (r *repository) UpsertPending(ctx context.Context, documentID uuid.UUID, signerIDs []uuid.UUID, deadline *time.Time) error {
	if len(signerIDs) == 0 {
		return nil
	}
	rows := make([]models.SignatureRequest, 0, len(signerIDs))
	for _, signer := range signerIDs {
		rows = append(rows, models.SignatureRequest{
			DocumentID: documentID,
			SignerID:   signer,
			Status:     enums.SignatureRequestPending,
			Deadline:   deadline,
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "document_id"}, {Name: "signer_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":            enums.SignatureRequestPending,
				"deadline":          deadline,
				"signed_at":         nil,
				"rejected_at":       nil,
				"rejection_reason":  nil,
				"signature_payload": nil,
				"reminded_at":       nil,
				"updated_at":        dbpkg.NowUTC(),
			}),
		}).
		Create(&rows).Error
}

func (r *repository) FindRequest(ctx context.Context, documentID, signerID uuid.UUID) (*models.SignatureRequest, error) {
	var req models.SignatureRequest
	if err := r.db.WithContext(ctx).
		First(&req, "document_id = ? AND signer_id = ?", documentID, signerID).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListRequests(ctx context.Context, documentID uuid.UUID) ([]models.SignatureRequest, error) {
	var reqs []models.SignatureRequest
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *repository) SignRequest(ctx context.Context, id uuid.UUID, payload *string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SignatureRequest{}).
		Where("id = ? AND status = ?", id, enums.SignatureRequestPending).
		Updates(map[string]any{
			"status":            enums.SignatureRequestSigned,
			"signed_at":         at,
			"signature_payload": payload,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) RejectRequest(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SignatureRequest{}).
		Where("id = ? AND status = ?", id, enums.SignatureRequestPending).
		Updates(map[string]any{
			"status":           enums.SignatureRequestRejected,
			"rejected_at":      at,
			"rejection_reason": reason,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]OverdueRequest, error) {
	var rows []OverdueRequest
	err := r.db.WithContext(ctx).
		Table("signature_requests AS sr").
		Select("sr.id AS request_id, sr.document_id, d.name AS document_name, d.room_id, sr.signer_id, sr.deadline").
		Joins("JOIN documents d ON d.id = sr.document_id").
		Where("sr.status = ? AND sr.reminded_at IS NULL AND sr.deadline IS NOT NULL AND sr.deadline < ?", enums.SignatureRequestPending, now).
		Order("sr.deadline ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// MarkReminded stamps reminded_at on still-pending requests so each overdue
// request is announced once per signature round.
func (r *repository) MarkReminded(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.SignatureRequest{}).
		Where("id IN ? AND status = ? AND reminded_at IS NULL", ids, enums.SignatureRequestPending).
		Update("reminded_at", at)
	return result.RowsAffected, result.Error
}
