package enums

import "fmt"

// DocumentType maps to the document_type enum in Postgres.
type DocumentType string

const (
	DocumentTypeNDA     DocumentType = "nda"
	DocumentTypeLicense DocumentType = "license"
	DocumentTypeOther   DocumentType = "other"
)

var validDocumentTypes = []DocumentType{
	DocumentTypeNDA,
	DocumentTypeLicense,
	DocumentTypeOther,
}

// IsValid reports whether the value matches the canonical document_type enum.
func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocumentType converts raw input into DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	for _, candidate := range validDocumentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}

// DocumentSignatureStatus maps to the document_signature_status enum in Postgres.
type DocumentSignatureStatus string

const (
	DocumentSignatureDraft     DocumentSignatureStatus = "draft"
	DocumentSignatureRequested DocumentSignatureStatus = "sign_requested"
	DocumentSignatureSigned    DocumentSignatureStatus = "signed"
	DocumentSignatureRejected  DocumentSignatureStatus = "rejected"
)

var validDocumentSignatureStatuses = []DocumentSignatureStatus{
	DocumentSignatureDraft,
	DocumentSignatureRequested,
	DocumentSignatureSigned,
	DocumentSignatureRejected,
}

// String implements fmt.Stringer.
func (d DocumentSignatureStatus) String() string {
	return string(d)
}

// IsValid reports whether the value matches the canonical document_signature_status enum.
func (d DocumentSignatureStatus) IsValid() bool {
	for _, candidate := range validDocumentSignatureStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocumentSignatureStatus converts raw input into DocumentSignatureStatus.
func ParseDocumentSignatureStatus(value string) (DocumentSignatureStatus, error) {
	for _, candidate := range validDocumentSignatureStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document signature status %q", value)
}
