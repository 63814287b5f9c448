package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// User is the canonical identity, subscription and entitlement record.
type User struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex:ux_users_email"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Name         string     `gorm:"column:name;not null;default:''"`
	Role         enums.Role `gorm:"column:role;type:text;not null;default:'user';index"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`

	Subscription          enums.PlanName `gorm:"column:subscription;type:text;not null;default:'free';index:ix_users_subscription_end,priority:1"`
	SubscriptionStartDate *time.Time     `gorm:"column:subscription_start_date"`
	SubscriptionEndDate   *time.Time     `gorm:"column:subscription_end_date;index:ix_users_subscription_end,priority:2"`

	TokensLimit     int64      `gorm:"column:tokens_limit;not null;default:0"`
	TokensUsed      int64      `gorm:"column:tokens_used;not null;default:0"`
	TokensRemaining int64      `gorm:"column:tokens_remaining;not null;default:0"`
	TokensResetDate *time.Time `gorm:"column:tokens_reset_date"`

	GLMAPIKey        *string `gorm:"column:glm_api_key"`
	BytezAPIKey      *string `gorm:"column:bytez_api_key"`
	OpenRouterAPIKey *string `gorm:"column:openrouter_api_key"`

	OrganizationID *uuid.UUID `gorm:"column:organization_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// APIKey returns the key value currently stored for the given provider.
func (u *User) APIKey(keyType enums.KeyType) *string {
	switch keyType {
	case enums.KeyTypeGLM:
		return u.GLMAPIKey
	case enums.KeyTypeBytez:
		return u.BytezAPIKey
	case enums.KeyTypeOpenRouter:
		return u.OpenRouterAPIKey
	}
	return nil
}
