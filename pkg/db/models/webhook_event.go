package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// WebhookEvent keeps one row per delivered gateway event for reconciliation.
type WebhookEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Provider    enums.WebhookProvider `gorm:"column:provider;type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	EventID     string                `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType   string                `gorm:"column:event_type;not null"`
	UserID      *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	Payload     json.RawMessage       `gorm:"column:payload;type:jsonb"`
	Outcome     string                `gorm:"column:outcome;not null;default:''"`
	ProcessedAt time.Time             `gorm:"column:processed_at;autoCreateTime"`
}

func (w *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
