package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/componentry-backend/api/responses"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

const (
	maxWebhookBody  = 1 << 20
	stripeSigHeader = "Stripe-Signature"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// EventGuard dedupes provider event ids across retries.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type SigningSecretSource interface {
	SigningSecret() string
}

// verifyStripe reads the body and checks it against the signing secret.
func verifyStripe(r *http.Request, secret string) (stripe.Event, error) {
	header := r.Header.Get(stripeSigHeader)
	if header == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeSignature, "stripe signature missing")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	event, err := webhook.ConstructEventWithOptions(body, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeSignature, err, "verify signature")
	}
	return event, nil
}

// StripeWebhook settles Stripe checkouts from PaymentIntent events. Unlike the
// Razorpay endpoint it answers with real status codes so Stripe redelivers
// anything that was not applied.
func StripeWebhook(svc StripeWebhookService, signer SigningSecretSource, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil || signer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhooks not configured"))
			return
		}

		event, err := verifyStripe(r, signer.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)})
		}

		if guard != nil {
			seen, err := guard.CheckAndMark(ctx, event.ID)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			case seen:
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if guard != nil {
				if derr := guard.Delete(ctx, event.ID); derr != nil && logg != nil {
					logg.Error(ctx, "release stripe event guard failed", derr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
