package enums

import "fmt"

// ParticipantRole maps to the participant_role enum in Postgres.
type ParticipantRole string

const (
	ParticipantRoleBuyer        ParticipantRole = "buyer"
	ParticipantRoleSeller       ParticipantRole = "seller"
	ParticipantRoleBrokerBuyer  ParticipantRole = "broker_buyer"
	ParticipantRoleBrokerSeller ParticipantRole = "broker_seller"
	ParticipantRoleAdvisor      ParticipantRole = "advisor"
)

var validParticipantRoles = []ParticipantRole{
	ParticipantRoleBuyer,
	ParticipantRoleSeller,
	ParticipantRoleBrokerBuyer,
	ParticipantRoleBrokerSeller,
	ParticipantRoleAdvisor,
}

// IsValid reports whether the value matches the canonical participant_role enum.
func (p ParticipantRole) IsValid() bool {
	for _, candidate := range validParticipantRoles {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseParticipantRole converts raw input into ParticipantRole.
func ParseParticipantRole(value string) (ParticipantRole, error) {
	for _, candidate := range validParticipantRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid participant role %q", value)
}

// IsSigningParty reports whether the role signs generated contracts.
func (p ParticipantRole) IsSigningParty() bool {
	return p == ParticipantRoleBuyer || p == ParticipantRoleSeller
}
