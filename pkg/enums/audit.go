package enums

import "fmt"

// AuditAction maps to the audit_action enum in Postgres.
type AuditAction string

const (
	AuditActionRoomCreated             AuditAction = "room_created"
	AuditActionParticipantAdded        AuditAction = "participant_added"
	AuditActionRoomStatusChanged       AuditAction = "room_status_changed"
	AuditActionOfferSubmitted          AuditAction = "offer_submitted"
	AuditActionOfferResolved           AuditAction = "offer_resolved"
	AuditActionDocumentUploaded        AuditAction = "document_uploaded"
	AuditActionContractGenerated       AuditAction = "contract_generated"
	AuditActionSignaturesRequested     AuditAction = "signatures_requested"
	AuditActionSignatureRecorded       AuditAction = "signature_recorded"
	AuditActionSignatureRejected       AuditAction = "signature_rejected"
	AuditActionFeePolicyApplied        AuditAction = "fee_policy_applied"
	AuditActionSettlementCreated       AuditAction = "settlement_created"
	AuditActionSettlementStatusChanged AuditAction = "settlement_status_changed"
)

var validAuditActions = []AuditAction{
	AuditActionRoomCreated,
	AuditActionParticipantAdded,
	AuditActionRoomStatusChanged,
	AuditActionOfferSubmitted,
	AuditActionOfferResolved,
	AuditActionDocumentUploaded,
	AuditActionContractGenerated,
	AuditActionSignaturesRequested,
	AuditActionSignatureRecorded,
	AuditActionSignatureRejected,
	AuditActionFeePolicyApplied,
	AuditActionSettlementCreated,
	AuditActionSettlementStatusChanged,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value matches the canonical audit_action enum.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}

// AuditTargetType maps to the audit_target_type enum in Postgres.
type AuditTargetType string

const (
	AuditTargetRoom             AuditTargetType = "room"
	AuditTargetParticipant      AuditTargetType = "participant"
	AuditTargetOffer            AuditTargetType = "offer"
	AuditTargetDocument         AuditTargetType = "document"
	AuditTargetSignatureRequest AuditTargetType = "signature_request"
	AuditTargetSettlement       AuditTargetType = "settlement"
)

var validAuditTargetTypes = []AuditTargetType{
	AuditTargetRoom,
	AuditTargetParticipant,
	AuditTargetOffer,
	AuditTargetDocument,
	AuditTargetSignatureRequest,
	AuditTargetSettlement,
}

// IsValid reports whether the value matches the canonical audit_target_type enum.
func (a AuditTargetType) IsValid() bool {
	for _, candidate := range validAuditTargetTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditTargetType converts raw input into AuditTargetType.
func ParseAuditTargetType(value string) (AuditTargetType, error) {
	for _, candidate := range validAuditTargetTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit target type %q", value)
}
