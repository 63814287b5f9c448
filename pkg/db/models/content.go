package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// ContentFields is shared by every marketplace catalog table.
type ContentFields struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID        uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	OrganizationID *uuid.UUID          `gorm:"column:organization_id;type:uuid;index"`
	Title          string              `gorm:"column:title;not null"`
	Slug           string              `gorm:"column:slug;not null"`
	Description    string              `gorm:"column:description;not null;default:''"`
	Category       string              `gorm:"column:category;not null;default:'';index"`
	Tags           string              `gorm:"column:tags;not null;default:''"`
	Price          int64               `gorm:"column:price;not null;default:0"`
	IsFree         bool                `gorm:"column:is_free;not null;default:false"`
	Status         enums.ContentStatus `gorm:"column:status;type:text;not null;default:'draft';index"`
	PreviewURL     string              `gorm:"column:preview_url;not null;default:''"`
	DownloadURL    string              `gorm:"column:download_url;not null;default:''"`
	Downloads      int64               `gorm:"column:downloads;not null;default:0"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

type Template struct {
	ContentFields
	TechStack string `gorm:"column:tech_stack;not null;default:''"`
}

func (t *Template) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

type Component struct {
	ContentFields
	Framework string `gorm:"column:framework;not null;default:''"`
}

func (c *Component) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// ContentApproval is one submission of an item for review.
type ContentApproval struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ContentID   uuid.UUID           `gorm:"column:content_id;type:uuid;not null;index" json:"content_id"`
	ContentType enums.ItemType      `gorm:"column:content_type;type:text;not null" json:"content_type"`
	Status      enums.ContentStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	SubmittedBy uuid.UUID           `gorm:"column:submitted_by;type:uuid;not null" json:"submitted_by"`
	ReviewedBy  *uuid.UUID          `gorm:"column:reviewed_by;type:uuid" json:"reviewed_by"`
	Notes       string              `gorm:"column:notes;not null;default:''" json:"notes"`
	SubmittedAt time.Time           `gorm:"column:submitted_at;autoCreateTime" json:"submitted_at"`
	ReviewedAt  *time.Time          `gorm:"column:reviewed_at" json:"reviewed_at"`
}

func (a *ContentApproval) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
