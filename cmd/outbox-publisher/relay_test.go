package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/registry"
)

type fakeDB struct{ pingErr error }

func (f fakeDB) Ping(context.Context) error { return f.pingErr }

func (fakeDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeStore struct {
	rows      []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (s *fakeStore) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	s.terminal = append(s.terminal, id)
	return nil
}

type fakeDLQ struct{ entries []models.OutboxDLQ }

func (d *fakeDLQ) DeadLetterTx(_ *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, _ error) error {
	d.entries = append(d.entries, models.OutboxDLQ{EventID: row.ID, EventType: row.EventType, ErrorReason: reason})
	return nil
}

type fakePublisher struct {
	err      error
	messages []*gcppubsub.Message
	topics   []string
}

func (p *fakePublisher) PublishSync(_ context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return "msg-1", nil
}

type relayFixture struct {
	relay     *Relay
	store     *fakeStore
	dlq       *fakeDLQ
	publisher *fakePublisher
}

func newRelayFixture(t *testing.T, maxAttempts int) *relayFixture {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic"})
	require.NoError(t, err)

	f := &relayFixture{store: &fakeStore{}, dlq: &fakeDLQ{}, publisher: &fakePublisher{}}
	f.relay, err = NewRelay(RelayParams{
		Config:    &config.OutboxConfig{BatchSize: 10, PollIntervalMS: 1, MaxAttempts: maxAttempts},
		Logger:    logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:        fakeDB{},
		Broker:    fakeDB{},
		Store:     f.store,
		DLQ:       f.dlq,
		Registry:  reg,
		Publisher: f.publisher,
		Metrics:   metrics.NewOutboxMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return f
}

func purchaseRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	purchaseID := uuid.New()
	actor := uuid.New()
	data, err := json.Marshal(payloads.PurchaseCompletedEvent{
		PurchaseID:        purchaseID,
		BuyerID:           actor,
		ItemType:          enums.ItemTypeTemplate,
		PaidAmount:        1000,
		DeveloperEarnings: 700,
		PlatformFee:       300,
		Currency:          "INR",
	})
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		EventType:  string(enums.EventPurchaseCompleted),
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{UserID: actor, Role: "user"},
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPurchaseCompleted,
		AggregateType: enums.AggregateItemPurchase,
		AggregateID:   purchaseID,
		Payload:       envelope,
		AttemptCount:  attempts,
	}
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)
}

func TestDrainBatchPublishesWithAttributes(t *testing.T) {
	f := newRelayFixture(t, 5)
	row := purchaseRow(t, 0)
	f.store.rows = []models.OutboxEvent{row}

	claimed, err := f.relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, []uuid.UUID{row.ID}, f.store.published)
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, "domain-topic", f.publisher.topics[0])

	msg := f.publisher.messages[0]
	assert.Equal(t, []byte(row.Payload), msg.Data)
	assert.Equal(t, string(enums.EventPurchaseCompleted), msg.Attributes["event_type"])
	assert.Equal(t, string(enums.AggregateItemPurchase), msg.Attributes["aggregate_type"])
	assert.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, "1", msg.Attributes["event_version"])
	assert.NotEmpty(t, msg.Attributes["event_id"])
	assert.NotEmpty(t, msg.Attributes["actor_id"])
	assert.Equal(t, "2026-03-01T10:00:00Z", msg.Attributes["occurred_at"])
}

func TestDrainBatchRetriesTransientFailure(t *testing.T) {
	f := newRelayFixture(t, 5)
	row := purchaseRow(t, 1)
	f.store.rows = []models.OutboxEvent{row}
	f.publisher.err = errors.New("unavailable")

	_, err := f.relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, f.store.failed)
	assert.Empty(t, f.store.published)
	assert.Empty(t, f.dlq.entries)
}

func TestDrainBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 3)
	row := purchaseRow(t, 2)
	f.store.rows = []models.OutboxEvent{row}
	f.publisher.err = errors.New("unavailable")

	_, err := f.relay.drainBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, f.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, f.dlq.entries[0].ErrorReason)
	assert.Equal(t, row.ID, f.dlq.entries[0].EventID)
	assert.Equal(t, []uuid.UUID{row.ID}, f.store.terminal)
	assert.Empty(t, f.store.failed)
}

func TestDrainBatchDeadLettersUnknownEvents(t *testing.T) {
	f := newRelayFixture(t, 5)
	good := purchaseRow(t, 0)
	bad := purchaseRow(t, 0)
	bad.EventType = "order.created"
	f.store.rows = []models.OutboxEvent{bad, good}

	claimed, err := f.relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	require.Len(t, f.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, f.dlq.entries[0].ErrorReason)
	assert.Equal(t, []uuid.UUID{bad.ID}, f.store.terminal)
	assert.Equal(t, []uuid.UUID{good.ID}, f.store.published)
}

func TestDrainBatchNonRetryablePublishError(t *testing.T) {
	f := newRelayFixture(t, 5)
	row := purchaseRow(t, 0)
	f.store.rows = []models.OutboxEvent{row}
	f.publisher.err = registry.NewNonRetryableError(errors.New("topic missing"))

	_, err := f.relay.drainBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, f.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, f.dlq.entries[0].ErrorReason)
}

func TestDrainBatchPropagatesClaimError(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.store.fetchErr = errors.New("db down")

	_, err := f.relay.drainBatch(context.Background())
	require.ErrorContains(t, err, "claim outbox rows")
}

func TestRunFailsFastOnDependency(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.relay.db = fakeDB{pingErr: errors.New("refused")}

	err := f.relay.Run(context.Background())
	require.ErrorContains(t, err, "database ping failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newRelayFixture(t, 5)
	f.relay.jitter = func(d time.Duration) time.Duration { return d }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.relay.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithJitterStaysInWindow(t *testing.T) {
	for i := 0; i < 20; i++ {
		got := withJitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Second)
		assert.Less(t, got, time.Second+jitterWindow)
	}
	assert.Zero(t, withJitter(0))
}
