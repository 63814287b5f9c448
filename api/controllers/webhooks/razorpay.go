package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/componentry-backend/api/responses"
	razorpaywebhook "github.com/angelmondragon/componentry-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type RazorpayWebhookService interface {
	Handle(ctx context.Context, body []byte, signature, eventID string) razorpaywebhook.Result
}

// RazorpayWebhook always answers 200; failures are reported in the body so
// Razorpay does not disable the endpoint.
func RazorpayWebhook(svc RazorpayWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result := razorpaywebhook.Result{Status: razorpaywebhook.StatusError, Message: "webhooks not configured"}

		if svc != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "razorpay webhook body unreadable", err)
				}
				result.Message = "unreadable body"
			} else {
				result = svc.Handle(ctx, body, r.Header.Get("X-Razorpay-Signature"), r.Header.Get("X-Razorpay-Event-Id"))
			}
		}

		responses.WriteAck(w, result)
	}
}
