package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/registry"
)

const consumerName = "email-notifications"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, id string) error
}

// Consumer turns domain events into transactional email.
type Consumer struct {
	subscription receiver
	sender       email.Sender
	decoders     *registry.DecoderRegistry
	idempotency  processedTracker
	logg         *logger.Logger
	metrics      *metrics.ConsumerMetrics
}

// NewConsumer builds the email notification consumer.
func NewConsumer(subscription receiver, sender email.Sender, manager processedTracker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		sender:       sender,
		decoders:     registry.NewDomainDecoders(),
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		res := c.process(ctx, msg)
		c.metrics.Message(consumerName, msg.Attributes["event_type"], res.outcome)
		if res.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack     bool
	nack    bool
	outcome string
}

func acked(outcome string) processResult { return processResult{ack: true, outcome: outcome} }

func retry() processResult { return processResult{nack: true, outcome: metrics.ConsumerRetry} }

// WithMetrics attaches a delivery counter. Safe to skip in tests.
func (c *Consumer) WithMetrics(m *metrics.ConsumerMetrics) *Consumer {
	c.metrics = m
	return c
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	switch eventType {
	case enums.EventSubscriptionActivated, enums.EventPurchaseCompleted:
	default:
		return acked(metrics.ConsumerSkipped)
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return acked(metrics.ConsumerPoison)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return acked(metrics.ConsumerPoison)
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return acked(metrics.ConsumerPoison)
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return retry()
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return acked(metrics.ConsumerDuplicate)
	}

	var message email.Message
	switch payload := decoded.(type) {
	case *payloads.SubscriptionActivatedEvent:
		message = SubscriptionReceipt(*payload)
	case *payloads.PurchaseCompletedEvent:
		message = PurchaseReceipt(*payload)
	}

	if err := c.sender.Send(logCtx, message); err != nil {
		c.logg.Error(logCtx, "notification email failed", err)
		if derr := c.idempotency.Delete(ctx, consumerName, eventID.String()); derr != nil {
			c.logg.Error(logCtx, "idempotency release failed", derr)
		}
		return retry()
	}
	c.logg.Info(c.logg.WithField(logCtx, "category", message.Category), "notification email sent")
	return acked(metrics.ConsumerHandled)
}
