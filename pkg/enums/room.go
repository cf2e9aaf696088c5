package enums

import "fmt"

// RoomStatus maps to the room_status enum in Postgres.
type RoomStatus string

const (
	RoomStatusSetup       RoomStatus = "setup"
	RoomStatusNegotiating RoomStatus = "negotiating"
	RoomStatusSigning     RoomStatus = "signing"
	RoomStatusSettling    RoomStatus = "settling"
	RoomStatusCompleted   RoomStatus = "completed"
	RoomStatusTerminated  RoomStatus = "terminated"
)

var validRoomStatuses = []RoomStatus{
	RoomStatusSetup,
	RoomStatusNegotiating,
	RoomStatusSigning,
	RoomStatusSettling,
	RoomStatusCompleted,
	RoomStatusTerminated,
}

// String implements fmt.Stringer.
func (r RoomStatus) String() string {
	return string(r)
}

// IsValid reports whether the value matches the canonical room_status enum.
func (r RoomStatus) IsValid() bool {
	for _, candidate := range validRoomStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoomStatus converts raw input into RoomStatus.
func ParseRoomStatus(value string) (RoomStatus, error) {
	for _, candidate := range validRoomStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid room status %q", value)
}

// IsTerminal reports whether no further transition may leave the status.
func (r RoomStatus) IsTerminal() bool {
	return r == RoomStatusCompleted || r == RoomStatusTerminated
}

// RoomType maps to the room_type enum in Postgres.
type RoomType string

const (
	RoomTypeDeal      RoomType = "deal"
	RoomTypeLicense   RoomType = "license"
	RoomTypeValuation RoomType = "valuation"
)

var validRoomTypes = []RoomType{
	RoomTypeDeal,
	RoomTypeLicense,
	RoomTypeValuation,
}

// IsValid reports whether the value matches the canonical room_type enum.
func (r RoomType) IsValid() bool {
	for _, candidate := range validRoomTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoomType converts raw input into RoomType.
func ParseRoomType(value string) (RoomType, error) {
	for _, candidate := range validRoomTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid room type %q", value)
}
