package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// AccessTokenPayload is what the caller supplies when minting. An empty JTI
// gets a random one.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	Role         enums.Role
	Subscription enums.PlanName
	JTI          string
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid role %q", p.Role)
	}
	return nil
}

// AccessTokenClaims is the JWT body. The registered jti doubles as the
// session id tracked in Redis.
type AccessTokenClaims struct {
	UserID       uuid.UUID      `json:"user_id"`
	Role         enums.Role     `json:"role"`
	Subscription enums.PlanName `json:"subscription,omitempty"`
	jwt.RegisteredClaims
}

// SessionID returns the access session the token belongs to.
func (c *AccessTokenClaims) SessionID() string { return c.ID }
