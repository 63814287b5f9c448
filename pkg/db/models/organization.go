package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

type Organization struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;not null;uniqueIndex:ux_organizations_slug"`
	OwnerID   uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

type OrganizationMember struct {
	OrganizationID uuid.UUID     `gorm:"column:organization_id;type:uuid;primaryKey"`
	UserID         uuid.UUID     `gorm:"column:user_id;type:uuid;primaryKey;index"`
	Role           enums.OrgRole `gorm:"column:role;type:text;not null"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
}
