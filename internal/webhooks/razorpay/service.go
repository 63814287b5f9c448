package razorpaywebhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/webhooks"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/razorpay"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"

	provider = string(enums.WebhookProviderRazorpay)
)

// Result is the body returned to Razorpay. The HTTP status is always 200.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type guard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type eventRecorder interface {
	Record(ctx context.Context, rec webhooks.EventRecord) (bool, error)
}

// ServiceParams groups dependencies for the Razorpay webhook handler. An
// empty WebhookSecret disables signature verification.
type ServiceParams struct {
	DB            *gorm.DB
	WebhookSecret string
	Guard         guard
	Events        eventRecorder
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
}

// Service observes Razorpay events. It records what it saw and never mutates
// users, subscriptions or transactions; verify-payment stays authoritative.
type Service struct {
	db      *gorm.DB
	secret  string
	guard   guard
	events  eventRecorder
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db required")
	}
	if params.Events == nil {
		return nil, errors.New("webhook event recorder required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:      params.DB,
		secret:  params.WebhookSecret,
		guard:   params.Guard,
		events:  params.Events,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

// Handle verifies, deduplicates and dispatches one delivery. Every failure is
// folded into the returned Result.
func (s *Service) Handle(ctx context.Context, body []byte, signature, eventID string) Result {
	if s.secret == "" {
		s.logg.Warn(ctx, "razorpay webhook secret not configured; skipping signature verification")
	} else if !razorpay.VerifyWebhookSignature(s.secret, body, signature) {
		s.metrics.Webhook(provider, "unknown", "invalid_signature")
		s.logg.Warn(ctx, "razorpay webhook signature mismatch")
		return Result{Status: StatusError, Message: "invalid signature"}
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil || event.Event == "" {
		s.metrics.Webhook(provider, "unknown", "invalid_payload")
		s.logg.Warn(ctx, "razorpay webhook payload could not be decoded")
		return Result{Status: StatusError, Message: "invalid payload"}
	}

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"event": event.Event, "event_id": eventID})

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, eventID)
		if err != nil {
			s.logg.Error(ctx, "razorpay webhook idempotency check failed", err)
		} else if seen {
			s.metrics.Webhook(provider, event.Event, "duplicate")
			s.logg.Info(ctx, "razorpay webhook duplicate ignored")
			return Result{Status: StatusOK, Message: "duplicate event"}
		}
	}

	outcome, err := s.dispatch(ctx, eventID, body, &event)
	if err != nil {
		if s.guard != nil {
			if derr := s.guard.Delete(ctx, eventID); derr != nil {
				s.logg.Error(ctx, "razorpay webhook idempotency release failed", derr)
			}
		}
		s.metrics.Webhook(provider, event.Event, "error")
		s.logg.Error(ctx, "razorpay webhook handling failed", err)
		return Result{Status: StatusError, Message: "event could not be processed"}
	}
	s.metrics.Webhook(provider, event.Event, outcome)
	return Result{Status: StatusOK}
}

func (s *Service) dispatch(ctx context.Context, eventID string, body []byte, event *Event) (string, error) {
	switch event.Event {
	case EventPaymentCaptured, EventPaymentFailed:
		if event.Payload.Payment == nil {
			return "", errors.New("payment entity missing")
		}
		return s.observePayment(ctx, eventID, body, event.Event, event.Payload.Payment.Entity)
	case EventRefundProcessed:
		if event.Payload.Refund == nil {
			return "", errors.New("refund entity missing")
		}
		return s.observeRefund(ctx, eventID, body, event.Payload.Refund.Entity)
	default:
		s.logg.Info(ctx, "razorpay webhook event ignored")
		return "ignored", nil
	}
}

func (s *Service) observePayment(ctx context.Context, eventID string, body []byte, name string, payment PaymentEntity) (string, error) {
	email := payment.Notes["email"]
	if email == "" {
		email = payment.Email
	}
	userID, err := s.findUser(ctx, email)
	if err != nil {
		return "", err
	}
	txn, err := s.findTransaction(ctx, payment.OrderID, payment.ID)
	if err != nil {
		return "", err
	}

	outcome := describe(userID, txn)
	fields := map[string]any{
		"payment_id": payment.ID,
		"order_id":   payment.OrderID,
		"amount":     payment.Amount,
		"outcome":    outcome,
	}
	if txn != nil {
		fields["transaction_id"] = txn.ID.String()
		fields["transaction_status"] = string(txn.Status)
	}
	if name == EventPaymentFailed {
		fields["error_code"] = payment.ErrorCode
		fields["error_description"] = payment.ErrorDescription
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "razorpay payment event observed")

	if err := s.record(ctx, eventID, name, userID, body, outcome); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) observeRefund(ctx context.Context, eventID string, body []byte, refund RefundEntity) (string, error) {
	txn, err := s.findTransaction(ctx, "", refund.PaymentID)
	if err != nil {
		return "", err
	}
	var userID *uuid.UUID
	if txn != nil {
		userID = &txn.UserID
	}
	outcome := describe(userID, txn)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"refund_id":  refund.ID,
		"payment_id": refund.PaymentID,
		"amount":     refund.Amount,
		"outcome":    outcome,
	}), "razorpay refund event observed")

	if err := s.record(ctx, eventID, EventRefundProcessed, userID, body, outcome); err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) record(ctx context.Context, eventID, name string, userID *uuid.UUID, body []byte, outcome string) error {
	_, err := s.events.Record(ctx, webhooks.EventRecord{
		Provider:  enums.WebhookProviderRazorpay,
		EventID:   eventID,
		EventType: name,
		UserID:    userID,
		Payload:   json.RawMessage(body),
		Outcome:   outcome,
	})
	return err
}

func (s *Service) findUser(ctx context.Context, email string) (*uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	var user models.User
	if err := s.db.WithContext(ctx).Select("id").Where("email = ?", email).Limit(1).Find(&user).Error; err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, nil
	}
	return &user.ID, nil
}

func (s *Service) findTransaction(ctx context.Context, orderID, paymentID string) (*models.PaymentTransaction, error) {
	q := s.db.WithContext(ctx).Model(&models.PaymentTransaction{})
	switch {
	case orderID != "" && paymentID != "":
		q = q.Where("gateway_order_id = ? OR gateway_payment_id = ?", orderID, paymentID)
	case orderID != "":
		q = q.Where("gateway_order_id = ?", orderID)
	case paymentID != "":
		q = q.Where("gateway_payment_id = ?", paymentID)
	default:
		return nil, nil
	}
	var txns []models.PaymentTransaction
	if err := q.Limit(1).Find(&txns).Error; err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return &txns[0], nil
}

func describe(userID *uuid.UUID, txn *models.PaymentTransaction) string {
	switch {
	case txn != nil:
		return "matched"
	case userID != nil:
		return "user_only"
	default:
		return "unmatched"
	}
}
