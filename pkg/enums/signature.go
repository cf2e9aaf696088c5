package enums

import "fmt"

// SignatureRequestStatus maps to the signature_request_status enum in Postgres.
type SignatureRequestStatus string

const (
	SignatureRequestPending  SignatureRequestStatus = "pending"
	SignatureRequestSigned   SignatureRequestStatus = "signed"
	SignatureRequestRejected SignatureRequestStatus = "rejected"
)

var validSignatureRequestStatuses = []SignatureRequestStatus{
	SignatureRequestPending,
	SignatureRequestSigned,
	SignatureRequestRejected,
}

// String implements fmt.Stringer.
func (s SignatureRequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical signature_request_status enum.
func (s SignatureRequestStatus) IsValid() bool {
	for _, candidate := range validSignatureRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSignatureRequestStatus converts raw input into SignatureRequestStatus.
func ParseSignatureRequestStatus(value string) (SignatureRequestStatus, error) {
	for _, candidate := range validSignatureRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid signature request status %q", value)
}

// IsTerminal reports whether the request has already been acted on.
func (s SignatureRequestStatus) IsTerminal() bool {
	return s == SignatureRequestSigned || s == SignatureRequestRejected
}

// SignatureAction maps to the signature_action enum in Postgres.
type SignatureAction string

const (
	SignatureActionSign   SignatureAction = "sign"
	SignatureActionReject SignatureAction = "reject"
)

var validSignatureActions = []SignatureAction{
	SignatureActionSign,
	SignatureActionReject,
}

// IsValid reports whether the value matches the canonical signature_action enum.
func (s SignatureAction) IsValid() bool {
	for _, candidate := range validSignatureActions {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSignatureAction converts raw input into SignatureAction.
func ParseSignatureAction(value string) (SignatureAction, error) {
	for _, candidate := range validSignatureActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid signature action %q", value)
}
