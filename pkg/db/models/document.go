package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
)

// Document is a file record attached to a room and optionally put up for signature.
type Document struct {
	ID              uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RoomID          uuid.UUID                     `gorm:"column:room_id;type:uuid;not null"`
	UploadedBy      uuid.UUID                     `gorm:"column:uploaded_by;type:uuid;not null"`
	Type            enums.DocumentType            `gorm:"column:type;type:document_type;not null"`
	Name            string                        `gorm:"column:name;type:text;not null"`
	FileURL         *string                       `gorm:"column:file_url;type:text"`
	Body            *string                       `gorm:"column:body;type:text"`
	OfferID         *uuid.UUID                    `gorm:"column:offer_id;type:uuid"`
	SignatureStatus enums.DocumentSignatureStatus `gorm:"column:signature_status;type:document_signature_status;not null;default:'draft'"`
	Version         int                           `gorm:"column:version;not null;default:1"`
	CreatedAt       time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}

// SignatureRequest tracks one signer's obligation on a document.
type SignatureRequest struct {
	ID               uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DocumentID       uuid.UUID                    `gorm:"column:document_id;type:uuid;not null"`
	SignerID         uuid.UUID                    `gorm:"column:signer_id;type:uuid;not null"`
	Status           enums.SignatureRequestStatus `gorm:"column:status;type:signature_request_status;not null;default:'pending'"`
	Deadline         *time.Time                   `gorm:"column:deadline"`
	SignedAt         *time.Time                   `gorm:"column:signed_at"`
	RejectedAt       *time.Time                   `gorm:"column:rejected_at"`
	RejectionReason  *string                      `gorm:"column:rejection_reason;type:text"`
	SignaturePayload *string                      `gorm:"column:signature_payload;type:text"`
	RemindedAt       *time.Time                   `gorm:"column:reminded_at"`
	CreatedAt        time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *SignatureRequest) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
