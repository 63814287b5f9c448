package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

type AuditLog struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ActorID      *uuid.UUID        `gorm:"column:actor_id;type:uuid;index" json:"actor_id"`
	ActorRole    string            `gorm:"column:actor_role;not null;default:''" json:"actor_role"`
	Action       enums.AuditAction `gorm:"column:action;type:text;not null;index" json:"action"`
	ResourceType string            `gorm:"column:resource_type;not null;default:''" json:"resource_type"`
	ResourceID   string            `gorm:"column:resource_id;not null;default:''" json:"resource_id"`
	Metadata     json.RawMessage   `gorm:"column:metadata;type:jsonb" json:"metadata"`
	IPAddress    string            `gorm:"column:ip_address;not null;default:''" json:"ip_address"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
