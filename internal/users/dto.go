package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// UserDTO is the transport shape that omits credentials and raw API keys.
type UserDTO struct {
	ID                    uuid.UUID      `json:"id"`
	Email                 string         `json:"email"`
	Name                  string         `json:"name"`
	Role                  enums.Role     `json:"role"`
	Subscription          enums.PlanName `json:"subscription"`
	SubscriptionStartDate *time.Time     `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time     `json:"subscription_end_date,omitempty"`
	IsActive              bool           `json:"is_active"`
	LastLoginAt           *time.Time     `json:"last_login_at,omitempty"`
	OrganizationID        *uuid.UUID     `json:"organization_id,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// UsageDTO reports the caller's token allowance and which provider keys they hold.
type UsageDTO struct {
	Plan                enums.PlanName           `json:"plan"`
	SubscriptionEndDate *time.Time               `json:"subscription_end_date,omitempty"`
	TokensLimit         int64                    `json:"tokens_limit"`
	TokensUsed          int64                    `json:"tokens_used"`
	TokensRemaining     int64                    `json:"tokens_remaining"`
	TokensResetDate     *time.Time               `json:"tokens_reset_date,omitempty"`
	Keys                map[enums.KeyType]string `json:"keys"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email           string
	PasswordHash    string
	Name            string
	Role            enums.Role
	Subscription    enums.PlanName
	TokensLimit     int64
	TokensResetDate *time.Time
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                    u.ID,
		Email:                 u.Email,
		Name:                  u.Name,
		Role:                  u.Role,
		Subscription:          u.Subscription,
		SubscriptionStartDate: u.SubscriptionStartDate,
		SubscriptionEndDate:   u.SubscriptionEndDate,
		IsActive:              u.IsActive,
		LastLoginAt:           u.LastLoginAt,
		OrganizationID:        u.OrganizationID,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func UsageFromModel(u *models.User) *UsageDTO {
	keys := make(map[enums.KeyType]string)
	for _, kt := range []enums.KeyType{enums.KeyTypeGLM, enums.KeyTypeBytez, enums.KeyTypeOpenRouter} {
		if v := u.APIKey(kt); v != nil && *v != "" {
			keys[kt] = keypool.Mask(*v)
		}
	}
	return &UsageDTO{
		Plan:                u.Subscription,
		SubscriptionEndDate: u.SubscriptionEndDate,
		TokensLimit:         u.TokensLimit,
		TokensUsed:          u.TokensUsed,
		TokensRemaining:     u.TokensRemaining,
		TokensResetDate:     u.TokensResetDate,
		Keys:                keys,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleUser
	}
	plan := c.Subscription
	if plan == "" {
		plan = enums.PlanFree
	}
	return &models.User{
		Email:           c.Email,
		PasswordHash:    c.PasswordHash,
		Name:            c.Name,
		Role:            role,
		IsActive:        true,
		Subscription:    plan,
		TokensLimit:     c.TokensLimit,
		TokensRemaining: c.TokensLimit,
		TokensResetDate: c.TokensResetDate,
	}
}
