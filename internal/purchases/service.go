package purchases

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
	"github.com/angelmondragon/componentry-backend/internal/cart"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/internal/payments"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
	"github.com/angelmondragon/componentry-backend/pkg/razorpay"
	stripeclient "github.com/angelmondragon/componentry-backend/pkg/stripe"
)

const (
	statusSuccess = "success"

	outcomeSuccess          = "success"
	outcomeAlreadyProcessed = "already_processed"
	outcomeInvalidSignature = "invalid_signature"
	outcomeError            = "error"
)

// StripeGateway is the subset of the Stripe client the checkout flow uses.
type StripeGateway interface {
	CreatePaymentIntent(ctx context.Context, req stripeclient.IntentRequest) (*stripeclient.PaymentIntent, error)
	Refund(ctx context.Context, req stripeclient.RefundRequest) (string, error)
}

// Service runs marketplace checkout, settlement and refunds.
type Service interface {
	Checkout(ctx context.Context, actor access.Actor, input CheckoutInput) (*CheckoutResult, error)
	VerifyCheckout(ctx context.Context, actor access.Actor, input VerifyCheckoutInput) (*CheckoutCompletion, error)
	CompleteStripeIntent(ctx context.Context, intentID string) (*CheckoutCompletion, error)
	FailStripeIntent(ctx context.Context, intentID, reason string) error
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error)
	DeveloperEarnings(ctx context.Context, developerID uuid.UUID) (*EarningsSummary, error)
	Refund(ctx context.Context, actor access.Actor, purchaseID uuid.UUID, input RefundInput) (*PurchaseDTO, error)
}

type itemChecker interface {
	FindByID(db *gorm.DB, itemType enums.ItemType, id uuid.UUID) (*marketplace.Item, error)
	HasCompletedPurchase(db *gorm.DB, userID, itemID uuid.UUID, itemType enums.ItemType) (bool, error)
}

// ServiceParams groups dependencies for the purchase service. Either gateway
// may be nil; checkouts through a missing gateway fail with a dependency error.
type ServiceParams struct {
	DB                *db.Client
	Repo              *Repository
	Payments          *payments.Repository
	Items             itemChecker
	Carts             cart.CartRepository
	Razorpay          razorpay.Gateway
	RazorpayKeySecret string
	Stripe            StripeGateway
	Currency          string
	DeveloperSharePct int
	Outbox            outbox.Emitter
	Audit             audit.Recorder
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

type service struct {
	db        *db.Client
	repo      *Repository
	payments  *payments.Repository
	items     itemChecker
	carts     cart.CartRepository
	razorpay  razorpay.Gateway
	keySecret string
	stripe    StripeGateway
	currency  string
	sharePct  int
	outbox    outbox.Emitter
	audit     audit.Recorder
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil || params.Payments == nil {
		return nil, fmt.Errorf("purchase and payment repositories required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("item checker required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "INR"
	}
	share := params.DeveloperSharePct
	if share <= 0 || share > 100 {
		share = DefaultDeveloperSharePct
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
		db:        params.DB,
		repo:      params.Repo,
		payments:  params.Payments,
		items:     params.Items,
		carts:     params.Carts,
		razorpay:  params.Razorpay,
		keySecret: params.RazorpayKeySecret,
		stripe:    params.Stripe,
		currency:  currency,
		sharePct:  share,
		outbox:    params.Outbox,
		audit:     recorder,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Checkout snapshots the cart into pending purchases under one pending
// transaction, then opens the gateway order for the total.
func (s *service) Checkout(ctx context.Context, actor access.Actor, input CheckoutInput) (*CheckoutResult, error) {
	gateway, err := enums.ParsePaymentGateway(strings.ToLower(strings.TrimSpace(input.Gateway)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment gateway")
	}
	switch {
	case gateway == enums.GatewayRazorpay && s.razorpay == nil,
		gateway == enums.GatewayStripe && s.stripe == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured").
			WithDetails(map[string]any{"gateway": gateway})
	}

	conn := s.db.DB().WithContext(ctx)
	user, err := loadUser(conn, actor.UserID)
	if err != nil {
		return nil, err
	}
	userCart, err := s.carts.FindByUser(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if userCart == nil || len(userCart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range userCart.Items {
		if err := s.checkPurchasable(conn, actor.UserID, line); err != nil {
			return nil, err
		}
	}

	txn := &models.PaymentTransaction{
		UserID:   actor.UserID,
		Purpose:  enums.PaymentPurposeMarketplace,
		Amount:   userCart.Subtotal,
		Currency: s.currency,
		Status:   enums.PaymentStatusPending,
		Gateway:  gateway,
		Receipt:  payments.NewReceipt("mkt"),
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.payments.Create(tx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment transaction")
		}
		for _, line := range userCart.Items {
			purchase := &models.ItemPurchase{
				UserID:        actor.UserID,
				ItemID:        line.ItemID,
				ItemType:      line.ItemType,
				ItemTitle:     line.Title,
				DeveloperID:   line.DeveloperID,
				TransactionID: &txn.ID,
				Price:         line.Price,
				PaidAmount:    line.Price,
				Currency:      s.currency,
				Status:        enums.PaymentStatusPending,
			}
			if err := s.repo.Create(tx, purchase); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create item purchase")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"gateway":        string(gateway),
	})
	result := &CheckoutResult{
		TransactionID: txn.ID,
		Gateway:       gateway,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Receipt:       txn.Receipt,
		ItemCount:     len(userCart.Items),
	}

	var remoteID string
	switch gateway {
	case enums.GatewayRazorpay:
		order, err := s.razorpay.CreateOrder(ctx, razorpay.OrderRequest{
			Amount:   txn.Amount,
			Currency: txn.Currency,
			Receipt:  txn.Receipt,
			Notes: map[string]string{
				"user_id":        user.ID.String(),
				"email":          user.Email,
				"purpose":        string(enums.PaymentPurposeMarketplace),
				"transaction_id": txn.ID.String(),
			},
		})
		if err != nil {
			return nil, s.abandon(logCtx, txn.ID, err)
		}
		remoteID = order.ID
		result.OrderID = order.ID
		result.KeyID = s.razorpay.KeyID()
	case enums.GatewayStripe:
		intent, err := s.stripe.CreatePaymentIntent(ctx, stripeclient.IntentRequest{
			Amount:   txn.Amount,
			Currency: txn.Currency,
			Metadata: map[string]string{
				"user_id":        user.ID.String(),
				"transaction_id": txn.ID.String(),
				"receipt":        txn.Receipt,
			},
			IdempotencyKey: "checkout-" + txn.ID.String(),
		})
		if err != nil {
			return nil, s.abandon(logCtx, txn.ID, err)
		}
		remoteID = intent.ID
		result.OrderID = intent.ID
		result.ClientSecret = intent.ClientSecret
	}

	if err := s.payments.SetOrderID(conn, txn.ID, remoteID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway order id")
	}
	s.metrics.OrderCreated(string(enums.PaymentPurposeMarketplace), string(gateway))
	s.logg.Info(s.logg.WithField(logCtx, "order_id", remoteID), "marketplace checkout opened")
	return result, nil
}

func (s *service) checkPurchasable(conn *gorm.DB, userID uuid.UUID, line models.CartItem) error {
	item, err := s.items.FindByID(conn, line.ItemType, line.ItemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil || item.Status != enums.ContentStatusApproved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "an item in the cart is no longer available").
			WithDetails(map[string]any{"item_id": line.ItemID, "item_type": line.ItemType})
	}
	owned, err := s.items.HasCompletedPurchase(conn, userID, line.ItemID, line.ItemType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	if owned {
		return pkgerrors.New(pkgerrors.CodeConflict, "an item in the cart is already purchased").
			WithDetails(map[string]any{"item_id": line.ItemID, "item_type": line.ItemType})
	}
	return nil
}

// abandon fails the local transaction after the gateway refused the order.
func (s *service) abandon(ctx context.Context, txnID uuid.UUID, cause error) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.payments.Fail(tx, txnID, "gateway order failed: "+cause.Error(), s.now()); err != nil {
			return err
		}
		return s.repo.FailPending(tx, txnID)
	})
	if err != nil {
		s.logg.Error(ctx, "mark checkout failed", err)
	}
	s.logg.Error(ctx, "gateway order create failed", cause)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "create gateway order")
}

func (s *service) VerifyCheckout(ctx context.Context, actor access.Actor, input VerifyCheckoutInput) (*CheckoutCompletion, error) {
	orderID := strings.TrimSpace(input.RazorpayOrderID)
	paymentID := strings.TrimSpace(input.RazorpayPaymentID)
	signature := strings.TrimSpace(input.RazorpaySignature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id, payment id and signature are required")
	}
	purpose := string(enums.PaymentPurposeMarketplace)
	if !razorpay.VerifyPaymentSignature(s.keySecret, orderID, paymentID, signature) {
		s.metrics.Verification(purpose, outcomeInvalidSignature)
		s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID), "checkout signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature")
	}

	var result *CheckoutCompletion
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.payments.FindByOrderID(tx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if txn == nil || txn.UserID != actor.UserID ||
			txn.Purpose != enums.PaymentPurposeMarketplace || txn.Gateway != enums.GatewayRazorpay {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		result, err = s.settle(ctx, tx, txn, paymentID, &signature, &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()})
		return err
	})
	return s.finish(ctx, purpose, result, err)
}

func (s *service) CompleteStripeIntent(ctx context.Context, intentID string) (*CheckoutCompletion, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	var result *CheckoutCompletion
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.payments.FindByOrderID(tx, intentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if txn == nil || txn.Gateway != enums.GatewayStripe || txn.Purpose != enums.PaymentPurposeMarketplace {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		result, err = s.settle(ctx, tx, txn, intentID, nil, &outbox.ActorRef{UserID: txn.UserID, Role: "system"})
		return err
	})
	return s.finish(ctx, string(enums.PaymentPurposeMarketplace), result, err)
}

func (s *service) finish(ctx context.Context, purpose string, result *CheckoutCompletion, err error) (*CheckoutCompletion, error) {
	if err != nil {
		s.metrics.Verification(purpose, outcomeError)
		return nil, err
	}
	if result.AlreadyProcessed {
		s.metrics.Verification(purpose, outcomeAlreadyProcessed)
		return result, nil
	}
	s.refundDuplicates(ctx, result)
	s.metrics.Verification(purpose, outcomeSuccess)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": result.TransactionID.String(),
		"items":          len(result.Purchases),
		"duplicates":     len(result.Duplicates),
		"paid_amount":    result.PaidAmount,
	}), "marketplace checkout completed")
	return result, nil
}

// settle completes the transaction and every purchase under it. It must run
// inside tx; a replay with the same payment id returns the stored outcome.
func (s *service) settle(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, paymentID string, signature *string, actor *outbox.ActorRef) (*CheckoutCompletion, error) {
	if txn.Status == enums.PaymentStatusCompleted {
		return s.replay(tx, txn, paymentID)
	}
	now := s.now()
	won, err := s.payments.Complete(tx, txn.ID, paymentID, signature, now)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_payment_transactions_gateway_payment_id") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already applied to another order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payment transaction")
	}
	if !won {
		current, err := s.payments.FindByID(tx, txn.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment transaction")
		}
		if current.Status != enums.PaymentStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment transaction is not payable").
				WithDetails(map[string]any{"status": current.Status})
		}
		return s.replay(tx, current, paymentID)
	}

	buyer, err := loadUser(tx, txn.UserID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByTransaction(tx, txn.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchases")
	}

	paid := *txn
	paid.GatewayPaymentID = &paymentID
	completion := &CheckoutCompletion{Status: statusSuccess, TransactionID: txn.ID, txn: &paid}
	for i := range rows {
		p := &rows[i]
		if p.Status != enums.PaymentStatusPending && p.Status != enums.PaymentStatusFailed {
			continue
		}
		outcome, err := s.settleLine(tx, buyer.ID, p, now)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case lineSkipped:
			continue
		case lineOwned:
			if _, err := s.repo.Cancel(tx, p.ID, now); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel duplicate purchase")
			}
			p.Status, p.AccessGranted, p.CompletedAt = enums.PaymentStatusCancelled, false, nil
			p.DeveloperEarnings, p.PlatformFee = 0, 0
			completion.Duplicates = append(completion.Duplicates, FromModel(*p))
			completion.duplicates = append(completion.duplicates, *p)
			continue
		}

		completion.PaidAmount += p.PaidAmount
		completion.DeveloperEarnings += p.DeveloperEarnings
		completion.PlatformFee += p.PlatformFee
		completion.Purchases = append(completion.Purchases, FromModel(*p))

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseCompleted,
			AggregateType: enums.AggregateItemPurchase,
			AggregateID:   p.ID,
			Actor:         actor,
			Data: payloads.PurchaseCompletedEvent{
				PurchaseID:        p.ID,
				TransactionID:     p.TransactionID,
				BuyerID:           buyer.ID,
				BuyerEmail:        buyer.Email,
				DeveloperID:       p.DeveloperID,
				ItemID:            p.ItemID,
				ItemType:          p.ItemType,
				ItemTitle:         p.ItemTitle,
				PaidAmount:        p.PaidAmount,
				DeveloperEarnings: p.DeveloperEarnings,
				PlatformFee:       p.PlatformFee,
				Currency:          p.Currency,
				Gateway:           txn.Gateway,
				CompletedAt:       now,
			},
			OccurredAt: now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit purchase completed")
		}
	}

	if err := s.payments.SetSplit(tx, txn.ID, completion.DeveloperEarnings, completion.PlatformFee); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store revenue split")
	}

	carts := s.carts.WithTx(tx)
	buyerCart, err := carts.FindByUser(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if buyerCart != nil {
		if err := cart.ClearTx(ctx, carts, buyerCart.ID); err != nil {
			return nil, err
		}
	}

	var actorID *uuid.UUID
	var actorRole enums.Role
	if actor != nil && actor.Role != "system" {
		actorID = &actor.UserID
		actorRole = enums.Role(actor.Role)
	}
	s.audit.RecordTx(ctx, tx, audit.Entry{
		ActorID:      actorID,
		ActorRole:    actorRole,
		Action:       enums.AuditPurchaseCompleted,
		ResourceType: "payment_transaction",
		ResourceID:   txn.ID.String(),
		Metadata: map[string]any{
			"gateway":            string(txn.Gateway),
			"payment_id":         paymentID,
			"items":              len(completion.Purchases),
			"paid_amount":        completion.PaidAmount,
			"developer_earnings": completion.DeveloperEarnings,
			"platform_fee":       completion.PlatformFee,
		},
	})
	return completion, nil
}

type lineOutcome int

const (
	lineSettled lineOutcome = iota
	lineSkipped
	lineOwned
)

const lineSavepoint = "purchase_line"

// settleLine completes one purchase unless the buyer already owns the item,
// either from an earlier checkout or from one settling concurrently.
func (s *service) settleLine(tx *gorm.DB, buyerID uuid.UUID, p *models.ItemPurchase, now time.Time) (lineOutcome, error) {
	owned, err := s.items.HasCompletedPurchase(tx, buyerID, p.ItemID, p.ItemType)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check ownership")
	}
	if owned {
		return lineOwned, nil
	}
	if err := tx.SavePoint(lineSavepoint).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "savepoint")
	}
	MarkCompleted(p, now, s.sharePct)
	settled, err := s.repo.Complete(tx, p)
	switch {
	case err != nil && db.IsUniqueViolation(err, ownedIndex):
		if rbErr := tx.RollbackTo(lineSavepoint).Error; rbErr != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, rbErr, "rollback purchase line")
		}
		return lineOwned, nil
	case err != nil:
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete purchase")
	case !settled:
		return lineSkipped, nil
	}
	return lineSettled, nil
}

// refundDuplicates returns the money for lines cancelled during settlement.
// It runs after commit; a refused refund is logged for reconciliation.
func (s *service) refundDuplicates(ctx context.Context, result *CheckoutCompletion) {
	for i := range result.duplicates {
		p := &result.duplicates[i]
		if p.PaidAmount <= 0 {
			continue
		}
		lineCtx := s.logg.WithFields(ctx, map[string]any{
			"purchase_id": p.ID.String(),
			"item_id":     p.ItemID.String(),
			"paid_amount": p.PaidAmount,
		})
		refundID, err := s.requestRefund(ctx, result.txn, p, "item already owned")
		if err != nil {
			s.logg.Error(lineCtx, "duplicate purchase refund failed", err)
			continue
		}
		if err := s.repo.SetRefundID(s.db.DB().WithContext(ctx), p.ID, refundID); err != nil {
			s.logg.Error(s.logg.WithField(lineCtx, "refund_id", refundID), "store duplicate refund id", err)
		}
		s.logg.Warn(s.logg.WithField(lineCtx, "refund_id", refundID), "duplicate purchase refunded")
	}
}

func (s *service) replay(tx *gorm.DB, txn *models.PaymentTransaction, paymentID string) (*CheckoutCompletion, error) {
	if txn.GatewayPaymentID == nil || *txn.GatewayPaymentID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid with a different payment")
	}
	rows, err := s.repo.ListByTransaction(tx, txn.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchases")
	}
	completion := &CheckoutCompletion{
		Status:            statusSuccess,
		TransactionID:     txn.ID,
		DeveloperEarnings: txn.DeveloperEarnings,
		PlatformFee:       txn.PlatformFee,
		AlreadyProcessed:  true,
	}
	for _, p := range rows {
		if p.Status == enums.PaymentStatusCancelled {
			completion.Duplicates = append(completion.Duplicates, FromModel(p))
			continue
		}
		completion.PaidAmount += p.PaidAmount
		completion.Purchases = append(completion.Purchases, FromModel(p))
	}
	return completion, nil
}

func (s *service) FailStripeIntent(ctx context.Context, intentID, reason string) error {
	intentID = strings.TrimSpace(intentID)
	if strings.TrimSpace(reason) == "" {
		reason = "payment intent failed"
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.payments.FindByOrderID(tx, intentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
		}
		if txn == nil || txn.Gateway != enums.GatewayStripe {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		changed, err := s.payments.Fail(tx, txn.ID, reason, s.now())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
		}
		if !changed {
			return nil
		}
		if err := s.repo.FailPending(tx, txn.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail purchases")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentTransaction,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: txn.UserID, Role: "system"},
			Data: payloads.PaymentFailedEvent{
				TransactionID: txn.ID,
				UserID:        txn.UserID,
				Purpose:       txn.Purpose,
				Amount:        txn.Amount,
				Reason:        reason,
			},
			OccurredAt: s.now(),
		})
	})
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(s.db.DB().WithContext(ctx), userID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchases")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(p models.ItemPurchase) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.PurchasedAt, ID: p.ID}
	})
	result := &ListResult{Items: make([]PurchaseDTO, 0, len(rows)), NextCursor: next}
	for _, p := range rows {
		result.Items = append(result.Items, FromModel(p))
	}
	return result, nil
}

func (s *service) DeveloperEarnings(ctx context.Context, developerID uuid.UUID) (*EarningsSummary, error) {
	rows, err := s.repo.EarningsByItem(s.db.DB().WithContext(ctx), developerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate earnings")
	}
	summary := &EarningsSummary{DeveloperID: developerID, Items: rows}
	if summary.Items == nil {
		summary.Items = []ItemEarnings{}
	}
	for _, row := range rows {
		summary.Sales += row.Sales
		summary.PaidAmount += row.PaidAmount
		summary.DeveloperEarnings += row.DeveloperEarnings
		summary.PlatformFee += row.PlatformFee
	}
	return summary, nil
}

// Refund revokes a completed purchase, commits that, then asks the gateway to
// return the money. A purchase already refunded locally but lacking a gateway
// refund id can be refunded again to retry the gateway call.
func (s *service) Refund(ctx context.Context, actor access.Actor, purchaseID uuid.UUID, input RefundInput) (*PurchaseDTO, error) {
	if !actor.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	reason := strings.TrimSpace(input.Reason)

	var (
		purchase *models.ItemPurchase
		txn      *models.PaymentTransaction
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		purchase, err = s.repo.LockByID(tx, purchaseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load purchase")
		}
		if purchase == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		if purchase.TransactionID != nil && purchase.PaidAmount > 0 {
			if txn, err = s.payments.FindByID(tx, *purchase.TransactionID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transaction")
			}
		}

		switch {
		case purchase.Status == enums.PaymentStatusCompleted:
			return s.revoke(ctx, tx, actor, purchase, txn, reason)
		case purchase.Status == enums.PaymentStatusRefunded && purchase.GatewayRefundID == nil && txn != nil:
			return nil
		case purchase.Status == enums.PaymentStatusRefunded:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already refunded")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed purchases can be refunded").
				WithDetails(map[string]any{"status": purchase.Status})
		}
	})
	if err != nil {
		return nil, err
	}

	if txn != nil {
		logCtx := s.logg.WithField(ctx, "purchase_id", purchase.ID.String())
		refundID, err := s.requestRefund(ctx, txn, purchase, reason)
		if err != nil {
			s.logg.Error(logCtx, "gateway refund failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund recorded, gateway refund pending; retry").
				WithDetails(map[string]any{"purchase_id": purchase.ID})
		}
		if err := s.repo.SetRefundID(s.db.DB().WithContext(ctx), purchase.ID, refundID); err != nil {
			s.logg.Error(s.logg.WithField(logCtx, "refund_id", refundID), "store refund id", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refund id")
		}
		purchase.GatewayRefundID = &refundID
		s.logg.Info(s.logg.WithField(logCtx, "refund_id", refundID), "purchase refunded")
	}
	dto := FromModel(*purchase)
	return &dto, nil
}

// revoke moves a locked completed purchase to refunded inside tx.
func (s *service) revoke(ctx context.Context, tx *gorm.DB, actor access.Actor, purchase *models.ItemPurchase, txn *models.PaymentTransaction, reason string) error {
	now := s.now()
	changed, err := s.repo.MarkRefunded(tx, purchase.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark purchase refunded")
	}
	if !changed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase already refunded")
	}
	if txn != nil {
		remaining, err := s.repo.CountCompletedForTransaction(tx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count purchases")
		}
		if remaining == 0 {
			if err := s.payments.MarkRefunded(tx, txn.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark transaction refunded")
			}
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPurchaseRefunded,
		AggregateType: enums.AggregateItemPurchase,
		AggregateID:   purchase.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Data: payloads.PurchaseRefundedEvent{
			PurchaseID:  purchase.ID,
			BuyerID:     purchase.UserID,
			DeveloperID: purchase.DeveloperID,
			PaidAmount:  purchase.PaidAmount,
			Reason:      reason,
			RefundedAt:  now,
		},
		OccurredAt: now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit purchase refunded")
	}

	s.audit.RecordTx(ctx, tx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditPurchaseRefunded,
		ResourceType: "item_purchase",
		ResourceID:   purchase.ID.String(),
		Metadata: map[string]any{
			"reason":      reason,
			"paid_amount": purchase.PaidAmount,
		},
	})

	purchase.Status = enums.PaymentStatusRefunded
	purchase.AccessGranted = false
	purchase.RefundedAt = &now
	return nil
}

func (s *service) requestRefund(ctx context.Context, txn *models.PaymentTransaction, purchase *models.ItemPurchase, reason string) (string, error) {
	if txn == nil || txn.GatewayPaymentID == nil {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway reference")
	}
	switch txn.Gateway {
	case enums.GatewayRazorpay:
		if s.razorpay == nil {
			return "", pkgerrors.New(pkgerrors.CodeDependency, "razorpay not configured")
		}
		id, err := s.razorpay.Refund(ctx, *txn.GatewayPaymentID, purchase.PaidAmount, map[string]string{
			"purchase_id": purchase.ID.String(),
			"reason":      reason,
		})
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "razorpay refund")
		}
		return id, nil
	case enums.GatewayStripe:
		if s.stripe == nil {
			return "", pkgerrors.New(pkgerrors.CodeDependency, "stripe not configured")
		}
		id, err := s.stripe.Refund(ctx, stripeclient.RefundRequest{
			PaymentIntentID: *txn.GatewayPaymentID,
			Amount:          purchase.PaidAmount,
			Reason:          reason,
			IdempotencyKey:  "refund-" + purchase.ID.String(),
		})
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe refund")
		}
		return id, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "unknown gateway")
}

func loadUser(conn *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := conn.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &user, nil
}
