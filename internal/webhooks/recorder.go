package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// EventRecord is one delivered gateway event kept for reconciliation.
type EventRecord struct {
	Provider  enums.WebhookProvider
	EventID   string
	EventType string
	UserID    *uuid.UUID
	Payload   json.RawMessage
	Outcome   string
}

// Recorder writes webhook_events rows. Redeliveries of a stored event are ignored.
type Recorder struct {
	db *gorm.DB
}

func NewRecorder(conn *gorm.DB) (*Recorder, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Recorder{db: conn}, nil
}

// Record reports false when the event was stored before.
func (r *Recorder) Record(ctx context.Context, rec EventRecord) (bool, error) {
	row := &models.WebhookEvent{
		Provider:  rec.Provider,
		EventID:   rec.EventID,
		EventType: rec.EventType,
		UserID:    rec.UserID,
		Payload:   rec.Payload,
		Outcome:   rec.Outcome,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_webhook_events_provider_event") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
