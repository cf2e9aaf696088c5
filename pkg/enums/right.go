package enums

import "fmt"

// RightStatus maps to the right_status enum in Postgres.
type RightStatus string

const (
	RightStatusDraft            RightStatus = "draft"
	RightStatusPublished        RightStatus = "published"
	RightStatusUnderNegotiation RightStatus = "under_negotiation"
	RightStatusSold             RightStatus = "sold"
)

var validRightStatuses = []RightStatus{
	RightStatusDraft,
	RightStatusPublished,
	RightStatusUnderNegotiation,
	RightStatusSold,
}

// String implements fmt.Stringer.
func (r RightStatus) String() string {
	return string(r)
}

// IsValid reports whether the value matches the canonical right_status enum.
func (r RightStatus) IsValid() bool {
	for _, candidate := range validRightStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRightStatus converts raw input into RightStatus.
func ParseRightStatus(value string) (RightStatus, error) {
	for _, candidate := range validRightStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid right status %q", value)
}
