package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/componentry-backend/internal/purchases"
	"github.com/angelmondragon/componentry-backend/internal/webhooks"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
)

const provider = string(enums.WebhookProviderStripe)

type intentSettler interface {
	CompleteStripeIntent(ctx context.Context, intentID string) (*purchases.CheckoutCompletion, error)
	FailStripeIntent(ctx context.Context, intentID, reason string) error
}

type eventRecorder interface {
	Record(ctx context.Context, rec webhooks.EventRecord) (bool, error)
}

type ServiceParams struct {
	Purchases intentSettler
	Events    eventRecorder
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// Service settles Stripe-backed marketplace checkouts from PaymentIntent events.
type Service struct {
	purchases intentSettler
	events    eventRecorder
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases service required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event recorder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		purchases: params.Purchases,
		events:    params.Events,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{"event": eventType, "event_id": event.ID})

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
	default:
		s.logg.Info(ctx, "stripe event ignored")
		s.metrics.Webhook(provider, eventType, "ignored")
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.metrics.Webhook(provider, eventType, "invalid_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if intent.ID == "" {
		s.metrics.Webhook(provider, eventType, "invalid_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	ctx = s.logg.WithField(ctx, "payment_intent_id", intent.ID)

	var err error
	if event.Type == stripe.EventTypePaymentIntentSucceeded {
		_, err = s.purchases.CompleteStripeIntent(ctx, intent.ID)
	} else {
		err = s.purchases.FailStripeIntent(ctx, intent.ID, failureReason(&intent))
	}

	outcome := "processed"
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		// Intents created outside checkout are acknowledged so Stripe stops retrying.
		s.logg.Warn(ctx, "stripe payment intent has no checkout")
		outcome = "unmatched"
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		s.logg.Warn(ctx, "stripe payment intent conflicts with settled checkout")
		outcome = "conflict"
	default:
		s.metrics.Webhook(provider, eventType, "error")
		return err
	}

	if _, err := s.events.Record(ctx, webhooks.EventRecord{
		Provider:  enums.WebhookProviderStripe,
		EventID:   event.ID,
		EventType: eventType,
		UserID:    userFromMetadata(intent.Metadata),
		Payload:   event.Data.Raw,
		Outcome:   outcome,
	}); err != nil {
		s.logg.Error(ctx, "stripe webhook event not recorded", err)
	}
	s.metrics.Webhook(provider, eventType, outcome)
	return nil
}

func failureReason(intent *stripe.PaymentIntent) string {
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return "payment intent failed"
}

func userFromMetadata(metadata map[string]string) *uuid.UUID {
	id, err := uuid.Parse(metadata["user_id"])
	if err != nil {
		return nil
	}
	return &id
}
