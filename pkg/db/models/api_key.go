package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// APIKeyPoolEntry is one upstream provider credential shared by up to MaxUsers users.
type APIKeyPoolEntry struct {
	ID            uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	KeyType       enums.KeyType `gorm:"column:key_type;type:text;not null;index:ix_api_key_pool_pick,priority:1"`
	KeyValue      string        `gorm:"column:key_value;not null;uniqueIndex:ux_api_key_pool_value"`
	Label         string        `gorm:"column:label;not null;default:''"`
	MaxUsers      int           `gorm:"column:max_users;not null"`
	AssignedCount int           `gorm:"column:assigned_count;not null;default:0"`
	IsActive      bool          `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime;index:ix_api_key_pool_pick,priority:2"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

func (APIKeyPoolEntry) TableName() string { return "api_key_pool" }

func (k *APIKeyPoolEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&k.ID)
	return nil
}

// APIKeyAssignment links a user to the pool key they were given. Ordered by
// CreatedAt, a key's assignments form its assigned user list.
type APIKeyAssignment struct {
	ID        uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	KeyID     uuid.UUID     `gorm:"column:key_id;type:uuid;not null;index"`
	UserID    uuid.UUID     `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_api_key_assignments_user_type,priority:1"`
	KeyType   enums.KeyType `gorm:"column:key_type;type:text;not null;uniqueIndex:ux_api_key_assignments_user_type,priority:2"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime"`
}

func (a *APIKeyAssignment) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
