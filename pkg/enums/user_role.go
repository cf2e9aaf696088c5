package enums

import "fmt"

// UserRole is the platform-level role carried in access tokens.
type UserRole string

const (
	UserRoleMember   UserRole = "member"
	UserRoleOperator UserRole = "operator"
)

var validUserRoles = []UserRole{
	UserRoleMember,
	UserRoleOperator,
}

// IsValid reports whether the value is a known platform role.
func (u UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
