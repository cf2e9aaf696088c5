package auth

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload identifies the participant a token is minted for.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	JTI    string
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid user role %q", p.Role)
	}
	return nil
}

// AccessTokenClaims is the JWT body carried by API requests.
type AccessTokenClaims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) payload() AccessTokenPayload {
	return AccessTokenPayload{UserID: c.UserID, Role: c.Role, JTI: c.ID}
}
