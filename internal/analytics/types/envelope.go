package types

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
)

// Envelope is a domain event as the analytics worker sees it: the published
// body merged with the routing attributes the relay stamps on the message.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Payload       json.RawMessage
}

// EnvelopeFromMessage builds an Envelope from a Pub/Sub body and attributes.
// Attributes win for routing fields. The body wins for identity and time.
func EnvelopeFromMessage(data []byte, attrs map[string]string) (Envelope, error) {
	stored, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return Envelope{}, err
	}
	attr := func(key string) string { return strings.TrimSpace(attrs[key]) }

	eventType, err := enums.ParseOutboxEventType(cmp.Or(attr("event_type"), stored.EventType))
	if err != nil {
		return Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return Envelope{}, errors.New("aggregate_id missing")
	}

	occurred := stored.OccurredAt
	if occurred.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			occurred = parsed
		}
	}

	return Envelope{
		EventID:       stored.EventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    occurred.UTC(),
		Actor:         stored.Actor,
		Payload:       stored.Data,
	}, nil
}
