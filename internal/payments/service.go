package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/plans"
	"github.com/angelmondragon/componentry-backend/internal/subscriptions"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/componentry-backend/pkg/razorpay"
)

const (
	outcomeSuccess          = "success"
	outcomeAlreadyProcessed = "already_processed"
	outcomeInvalidSignature = "invalid_signature"
	outcomeConflict         = "conflict"
	outcomeError            = "error"
)

// Service handles subscription orders through Razorpay.
type Service interface {
	CreateOrder(ctx context.Context, actor access.Actor, input CreateOrderInput) (*CreateOrderResult, error)
	VerifyPayment(ctx context.Context, actor access.Actor, input VerifyPaymentInput) (*VerifyResult, error)
	MarkFailed(ctx context.Context, actor access.Actor, orderID, reason string) error
}

type CreateOrderInput struct {
	PlanName string `json:"plan_name" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

type CreateOrderResult struct {
	OrderID       string    `json:"order_id"`
	KeyID         string    `json:"key_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Receipt       string    `json:"receipt"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

type VerifyPaymentInput struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
	PlanName          string `json:"plan_name" validate:"required"`
}

type VerifyResult struct {
	Status              string         `json:"status"`
	Plan                enums.PlanName `json:"plan"`
	SubscriptionEndDate *time.Time     `json:"subscription_end_date,omitempty"`
	KeysAssigned        []string       `json:"keys_assigned"`
	AlreadyProcessed    bool           `json:"already_processed"`
	TransactionID       uuid.UUID      `json:"transaction_id"`
}

type FailPaymentInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	DB            *db.Client
	Repo          *Repository
	Gateway       razorpay.Gateway
	KeySecret     string
	Currency      string
	Subscriptions subscriptions.Service
	Outbox        outbox.Emitter
	Audit         audit.Recorder
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
}

type service struct {
	db            *db.Client
	repo          *Repository
	gateway       razorpay.Gateway
	keySecret     string
	currency      string
	subscriptions subscriptions.Service
	outbox        outbox.Emitter
	audit         audit.Recorder
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	now           func() time.Time
}

// NewService builds the payment service. A nil Gateway is allowed; order
// creation then fails with a dependency error.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "INR"
	}
	recorder := params.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		db:            params.DB,
		repo:          params.Repo,
		gateway:       params.Gateway,
		keySecret:     params.KeySecret,
		currency:      currency,
		subscriptions: params.Subscriptions,
		outbox:        params.Outbox,
		audit:         recorder,
		metrics:       params.Metrics,
		logg:          logg,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateOrder records a pending transaction and then opens the gateway order,
// so every remote order has a local row to reconcile against.
func (s *service) CreateOrder(ctx context.Context, actor access.Actor, input CreateOrderInput) (*CreateOrderResult, error) {
	planName, err := enums.ParsePlanName(strings.ToLower(strings.TrimSpace(input.PlanName)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan")
	}
	plan, err := plans.Get(planName)
	if err != nil {
		return nil, err
	}
	if !plan.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan does not require payment")
	}
	if input.Amount != plan.Price {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match plan price").
			WithDetails(map[string]any{"expected": plan.Price, "received": input.Amount})
	}
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}

	conn := s.db.DB().WithContext(ctx)
	user, err := loadActiveUser(conn, actor.UserID)
	if err != nil {
		return nil, err
	}

	txn := &models.PaymentTransaction{
		UserID:   user.ID,
		Purpose:  enums.PaymentPurposeSubscription,
		PlanName: &planName,
		Amount:   plan.Price,
		Currency: s.currency,
		Status:   enums.PaymentStatusPending,
		Gateway:  enums.GatewayRazorpay,
		Receipt:  NewReceipt("sub"),
	}
	if err := s.repo.Create(conn, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"plan":           planName.String(),
	})

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   txn.Amount,
		Currency: txn.Currency,
		Receipt:  txn.Receipt,
		Notes: map[string]string{
			"user_id":        user.ID.String(),
			"email":          user.Email,
			"plan_name":      planName.String(),
			"transaction_id": txn.ID.String(),
		},
	})
	if err != nil {
		if _, ferr := s.repo.Fail(conn, txn.ID, "gateway order failed: "+err.Error(), s.now()); ferr != nil {
			s.logg.Error(logCtx, "mark transaction failed", ferr)
		}
		s.logg.Error(logCtx, "razorpay order create failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
	}
	if err := s.repo.SetOrderID(conn, txn.ID, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway order id")
	}
	s.metrics.OrderCreated(string(enums.PaymentPurposeSubscription), string(enums.GatewayRazorpay))
	s.logg.Info(s.logg.WithField(logCtx, "order_id", order.ID), "razorpay order created")

	return &CreateOrderResult{
		OrderID:       order.ID,
		KeyID:         s.gateway.KeyID(),
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Receipt:       txn.Receipt,
		TransactionID: txn.ID,
	}, nil
}

// VerifyPayment is the authoritative completion path for subscription orders.
func (s *service) VerifyPayment(ctx context.Context, actor access.Actor, input VerifyPaymentInput) (*VerifyResult, error) {
	orderID := strings.TrimSpace(input.RazorpayOrderID)
	paymentID := strings.TrimSpace(input.RazorpayPaymentID)
	signature := strings.TrimSpace(input.RazorpaySignature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id, payment id and signature are required")
	}
	purpose := string(enums.PaymentPurposeSubscription)

	if !razorpay.VerifyPaymentSignature(s.keySecret, orderID, paymentID, signature) {
		s.metrics.Verification(purpose, outcomeInvalidSignature)
		s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID), "payment signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature")
	}

	planName, err := enums.ParsePlanName(strings.ToLower(strings.TrimSpace(input.PlanName)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan")
	}

	var result *VerifyResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.repo.FindByOrderID(tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if txn == nil || txn.UserID != actor.UserID || txn.Purpose != enums.PaymentPurposeSubscription {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if txn.PlanName == nil || *txn.PlanName != planName {
			return pkgerrors.New(pkgerrors.CodeValidation, "plan does not match order")
		}

		if txn.Status == enums.PaymentStatusCompleted {
			result, err = s.replay(tx, txn, paymentID)
			return err
		}

		now := s.now()
		won, err := s.repo.Complete(tx, txn.ID, paymentID, &signature, now)
		if err != nil {
			if db.IsUniqueViolation(err, "ux_payment_transactions_gateway_payment_id") {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment already applied to another order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payment transaction")
		}
		if !won {
			current, err := s.repo.FindByID(tx, txn.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment transaction")
			}
			if current.Status != enums.PaymentStatusCompleted {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment transaction is not payable").
					WithDetails(map[string]any{"status": current.Status})
			}
			result, err = s.replay(tx, current, paymentID)
			return err
		}

		activation, err := s.subscriptions.Activate(ctx, tx, txn.UserID, planName, now)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(activation.KeysAssigned))
		for _, k := range activation.KeysAssigned {
			keys = append(keys, k.String())
		}

		event := payloads.SubscriptionActivatedEvent{
			UserID:        activation.User.ID,
			Email:         activation.User.Email,
			Name:          activation.User.Name,
			TransactionID: txn.ID,
			Plan:          planName,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			StartDate:     derefTime(activation.User.SubscriptionStartDate),
			EndDate:       derefTime(activation.User.SubscriptionEndDate),
			KeysAssigned:  keys,
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionActivated,
			AggregateType: enums.AggregateUser,
			AggregateID:   activation.User.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data:          event,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit subscription activated")
		}

		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditPaymentVerified,
			ResourceType: "payment_transaction",
			ResourceID:   txn.ID.String(),
			Metadata: map[string]any{
				"order_id":   orderID,
				"payment_id": paymentID,
				"plan":       planName,
				"extended":   activation.Extended,
			},
		})

		result = &VerifyResult{
			Status:              outcomeSuccess,
			Plan:                planName,
			SubscriptionEndDate: activation.User.SubscriptionEndDate,
			KeysAssigned:        keys,
			TransactionID:       txn.ID,
		}
		return nil
	})
	if err != nil {
		outcome := outcomeError
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			outcome = outcomeConflict
		}
		s.metrics.Verification(purpose, outcome)
		return nil, err
	}

	if result.AlreadyProcessed {
		s.metrics.Verification(purpose, outcomeAlreadyProcessed)
	} else {
		s.metrics.Verification(purpose, outcomeSuccess)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":       orderID,
			"transaction_id": result.TransactionID.String(),
			"plan":           planName.String(),
		}), "payment verified")
	}
	return result, nil
}

// replay answers a verify call for an already completed order.
func (s *service) replay(tx *gorm.DB, txn *models.PaymentTransaction, paymentID string) (*VerifyResult, error) {
	if txn.GatewayPaymentID == nil || *txn.GatewayPaymentID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid with a different payment")
	}
	user, err := loadUser(tx, txn.UserID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, 2)
	for _, kt := range []enums.KeyType{enums.KeyTypeGLM, enums.KeyTypeBytez, enums.KeyTypeOpenRouter} {
		if v := user.APIKey(kt); v != nil && *v != "" {
			keys = append(keys, kt.String())
		}
	}
	return &VerifyResult{
		Status:              outcomeSuccess,
		Plan:                *txn.PlanName,
		SubscriptionEndDate: user.SubscriptionEndDate,
		KeysAssigned:        keys,
		AlreadyProcessed:    true,
		TransactionID:       txn.ID,
	}, nil
}

// MarkFailed records a client reported failure for a pending order.
func (s *service) MarkFailed(ctx context.Context, actor access.Actor, orderID, reason string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "payment failed on client"
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.repo.FindByOrderID(tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if txn == nil || txn.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		switch txn.Status {
		case enums.PaymentStatusFailed:
			return nil
		case enums.PaymentStatusPending:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already settled").
				WithDetails(map[string]any{"status": txn.Status})
		}

		changed, err := s.repo.Fail(tx, txn.ID, reason, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
		}
		if !changed {
			return nil
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.PaymentFailedEvent{
				TransactionID: txn.ID,
				UserID:        txn.UserID,
				Purpose:       txn.Purpose,
				Amount:        txn.Amount,
				Reason:        reason,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment failed")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditPaymentFailed,
			ResourceType: "payment_transaction",
			ResourceID:   txn.ID.String(),
			Metadata:     map[string]any{"order_id": orderID, "reason": reason},
		})
		return nil
	})
}

func loadUser(conn *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := conn.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &user, nil
}

func loadActiveUser(conn *gorm.DB, id uuid.UUID) (*models.User, error) {
	user, err := loadUser(conn, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account disabled")
	}
	return user, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
