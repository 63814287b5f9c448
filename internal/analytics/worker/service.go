// Package worker consumes domain events for the analytics pipeline.
package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/componentry-backend/internal/analytics/types"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
)

const consumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// Handlers that implement Supports only see the event types they claim.
// Other deliveries are acked without touching the dedup store.
type eventFilter interface {
	Supports(eventType enums.OutboxEventType) bool
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type dedupStore interface {
	CheckAndMarkKey(ctx context.Context, consumer, id string) (bool, error)
	Delete(ctx context.Context, consumer string, id string) error
}

type Params struct {
	Subscription receiver
	Handler      Handler
	Dedup        dedupStore
	Logger       *logger.Logger
	Metrics      *metrics.ConsumerMetrics
}

type Service struct {
	subscription receiver
	handler      Handler
	dedup        dedupStore
	logg         *logger.Logger
	metrics      *metrics.ConsumerMetrics
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Dedup == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: p.Subscription,
		handler:      p.Handler,
		dedup:        p.Dedup,
		logg:         p.Logger,
		metrics:      p.Metrics,
	}, nil
}

// Run blocks until ctx is cancelled. Messages are nacked only for failures a
// redelivery could fix.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		envelope, outcome := s.process(ctx, msg)
		s.metrics.Message(consumerName, string(envelope.EventType), outcome)
		if outcome == metrics.ConsumerRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) (types.Envelope, string) {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := types.EnvelopeFromMessage(msg.Data, msg.Attributes)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed analytics message")
		return envelope, metrics.ConsumerPoison
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
		"occurred_at":  envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	if filter, ok := s.handler.(eventFilter); ok && !filter.Supports(envelope.EventType) {
		s.logg.Debug(ctx, "event not tracked by analytics")
		return envelope, metrics.ConsumerSkipped
	}

	seen, err := s.dedup.CheckAndMarkKey(ctx, consumerName, envelope.EventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency check failed", err)
		return envelope, metrics.ConsumerRetry
	}
	if seen {
		s.logg.Info(ctx, "event already processed")
		return envelope, metrics.ConsumerDuplicate
	}

	if err := s.handler.Handle(ctx, envelope); err != nil {
		s.logg.Error(ctx, "analytics handler failed", err)
		if err := s.dedup.Delete(ctx, consumerName, envelope.EventID); err != nil {
			s.logg.Error(ctx, "failed to release idempotency key", err)
		}
		return envelope, metrics.ConsumerRetry
	}
	s.logg.Info(ctx, "analytics event handled")
	return envelope, metrics.ConsumerHandled
}
