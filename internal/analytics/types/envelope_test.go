package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
)

func body(t *testing.T, env outbox.PayloadEnvelope) []byte {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestEnvelopeFromMessage(t *testing.T) {
	purchaseID := uuid.NewString()
	buyer := uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 19800))

	env, err := EnvelopeFromMessage(body(t, outbox.PayloadEnvelope{
		EventID:    "evt-1",
		EventType:  string(enums.EventPurchaseCompleted),
		OccurredAt: occurred,
		Actor:      &outbox.ActorRef{UserID: buyer, Role: "user"},
		Data:       json.RawMessage(`{"purchase_id":"` + purchaseID + `"}`),
	}), map[string]string{
		"event_type":     "purchase.completed",
		"aggregate_type": "item_purchase",
		"aggregate_id":   purchaseID,
	})
	require.NoError(t, err)

	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, enums.EventPurchaseCompleted, env.EventType)
	assert.Equal(t, enums.AggregateItemPurchase, env.AggregateType)
	assert.Equal(t, purchaseID, env.AggregateID)
	assert.Equal(t, outbox.EnvelopeVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(occurred))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	require.NotNil(t, env.Actor)
	assert.Equal(t, buyer, env.Actor.UserID)
}

func TestEnvelopeFromMessageFallsBackToBodyAndAttributes(t *testing.T) {
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	env, err := EnvelopeFromMessage(body(t, outbox.PayloadEnvelope{
		EventID:   "evt-2",
		EventType: string(enums.EventSubscriptionActivated),
		Data:      json.RawMessage(`{}`),
	}), map[string]string{
		"aggregate_type": "user",
		"aggregate_id":   "u-1",
		"created_at":     created.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.EventSubscriptionActivated, env.EventType)
	assert.True(t, env.OccurredAt.Equal(created))
}

func TestEnvelopeFromMessageRejects(t *testing.T) {
	valid := outbox.PayloadEnvelope{EventID: "evt-3", Data: json.RawMessage(`{}`)}
	attrs := func(aggregateType, aggregateID string) map[string]string {
		return map[string]string{
			"event_type":     "purchase.completed",
			"aggregate_type": aggregateType,
			"aggregate_id":   aggregateID,
		}
	}

	cases := map[string]struct {
		data  []byte
		attrs map[string]string
	}{
		"not json":          {data: []byte("not json"), attrs: attrs("item_purchase", "x")},
		"missing event id":  {data: body(t, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}), attrs: attrs("item_purchase", "x")},
		"unknown aggregate": {data: body(t, valid), attrs: attrs("shipment", "x")},
		"missing aggregate": {data: body(t, valid), attrs: attrs("item_purchase", "")},
		"unknown event":     {data: body(t, valid), attrs: map[string]string{"event_type": "order.created", "aggregate_type": "user", "aggregate_id": "x"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := EnvelopeFromMessage(tc.data, tc.attrs)
			assert.Error(t, err)
		})
	}
}
