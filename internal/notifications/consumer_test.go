package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *memoryStore) DedupKey(scope string, parts ...string) string {
	return "cmp:dedup:" + scope + ":" + strings.Join(parts, ":")
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

type recordingSender struct {
	sent []email.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg email.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type idleReceiver struct{}

func (idleReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newConsumer(t *testing.T, sender email.Sender) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(&memoryStore{data: map[string]string{}}, time.Hour)
	require.NoError(t, err)
	c, err := NewConsumer(idleReceiver{}, sender, manager, logger.Nop())
	require.NoError(t, err)
	return c
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		EventType:  string(eventType),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return &pubsub.Message{ID: "msg-1", Data: body, Attributes: map[string]string{"event_type": string(eventType)}}
}

func TestConsumerSendsPurchaseReceiptOnce(t *testing.T) {
	sender := &recordingSender{}
	c := newConsumer(t, sender)
	eventID := uuid.New()
	msg := message(t, enums.EventPurchaseCompleted, eventID, payloads.PurchaseCompletedEvent{
		PurchaseID: uuid.New(),
		BuyerEmail: "buyer@example.com",
		ItemType:   enums.ItemTypeTemplate,
		ItemTitle:  "Landing Kit",
		PaidAmount: 49900,
		Currency:   "INR",
	})

	assert.True(t, c.process(context.Background(), msg).ack)
	assert.True(t, c.process(context.Background(), msg).ack)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "buyer@example.com", sender.sent[0].To)
	assert.Equal(t, CategoryPurchaseReceipt, sender.sent[0].Category)
	assert.Contains(t, sender.sent[0].Text, "INR 499.00")
}

func TestConsumerSendsSubscriptionReceipt(t *testing.T) {
	sender := &recordingSender{}
	c := newConsumer(t, sender)
	msg := message(t, enums.EventSubscriptionActivated, uuid.New(), payloads.SubscriptionActivatedEvent{
		UserID:   uuid.New(),
		Email:    "pro@example.com",
		Name:     "Asha",
		Plan:     enums.PlanPro,
		Amount:   99900,
		Currency: "INR",
		EndDate:  time.Date(2026, 11, 18, 0, 0, 0, 0, time.UTC),
	})

	require.True(t, c.process(context.Background(), msg).ack)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, CategorySubscriptionPay, sender.sent[0].Category)
	assert.Contains(t, sender.sent[0].Text, "Hi Asha")
	assert.Contains(t, sender.sent[0].Text, "18 Nov 2026")
}

func TestConsumerSkipsUnrelatedEvents(t *testing.T) {
	sender := &recordingSender{}
	c := newConsumer(t, sender)
	msg := message(t, enums.EventPaymentFailed, uuid.New(), payloads.PaymentFailedEvent{})

	assert.True(t, c.process(context.Background(), msg).ack)
	assert.Empty(t, sender.sent)
}

func TestConsumerNacksAndRetriesWhenSendFails(t *testing.T) {
	sender := &recordingSender{err: errors.New("sendgrid down")}
	c := newConsumer(t, sender)
	msg := message(t, enums.EventPurchaseCompleted, uuid.New(), payloads.PurchaseCompletedEvent{BuyerEmail: "b@example.com"})

	assert.True(t, c.process(context.Background(), msg).nack)

	sender.err = nil
	assert.True(t, c.process(context.Background(), msg).ack)
	assert.Len(t, sender.sent, 1)
}

func TestConsumerAcksMalformedEnvelope(t *testing.T) {
	c := newConsumer(t, &recordingSender{})
	msg := &pubsub.Message{Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventPurchaseCompleted)}}
	assert.True(t, c.process(context.Background(), msg).ack)
}

func TestTemplates(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	reminder := ExpiryReminder("a@example.com", "", enums.PlanUltra, now.Add(48*time.Hour), now)
	assert.Equal(t, "Your ultra plan expires in 2 days", reminder.Subject)
	assert.Contains(t, reminder.Text, "Hi,")

	notice := DowngradeNotice("a@example.com", "Ravi <admin>", enums.PlanPro)
	assert.Equal(t, CategoryDowngrade, notice.Category)
	assert.Contains(t, notice.HTML, "Ravi &lt;admin&gt;")
}
