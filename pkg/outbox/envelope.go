package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version written by Emit when the caller does
// not pick one.
const EnvelopeVersion = 1

var (
	ErrEnvelopeMissingID   = errors.New("envelope missing eventId")
	ErrEnvelopeMissingData = errors.New("envelope missing data")
)

// ActorRef identifies who produced the event. Nil for system jobs.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is stored in outbox_events.payload and is also the Pub/Sub
// message body, byte for byte.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// HasData is false for an absent body and for a literal JSON null.
func (e PayloadEnvelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeEnvelope parses a stored or published envelope. Version 0 is read as
// EnvelopeVersion so rows written before versioning stay decodable.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env.EventID = strings.TrimSpace(env.EventID)
	env.EventType = strings.TrimSpace(env.EventType)
	if env.Version == 0 {
		env.Version = EnvelopeVersion
	}
	if env.EventID == "" {
		return env, ErrEnvelopeMissingID
	}
	if !env.HasData() {
		return env, ErrEnvelopeMissingData
	}
	return env, nil
}
