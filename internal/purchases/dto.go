package purchases

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

type CheckoutInput struct {
	Gateway string `json:"gateway" validate:"required,oneof=razorpay stripe"`
}

type CheckoutResult struct {
	TransactionID uuid.UUID            `json:"transaction_id"`
	Gateway       enums.PaymentGateway `json:"gateway"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Receipt       string               `json:"receipt"`
	ItemCount     int                  `json:"item_count"`
	OrderID       string               `json:"order_id,omitempty"`
	KeyID         string               `json:"key_id,omitempty"`
	ClientSecret  string               `json:"client_secret,omitempty"`
}

type VerifyCheckoutInput struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

type CheckoutCompletion struct {
	Status            string        `json:"status"`
	TransactionID     uuid.UUID     `json:"transaction_id"`
	PaidAmount        int64         `json:"paid_amount"`
	DeveloperEarnings int64         `json:"developer_earnings"`
	PlatformFee       int64         `json:"platform_fee"`
	Purchases         []PurchaseDTO `json:"purchases"`
	// Duplicates are lines the buyer already owned when the payment landed;
	// they are cancelled and their amount is refunded.
	Duplicates       []PurchaseDTO `json:"refunded_duplicates,omitempty"`
	AlreadyProcessed bool          `json:"already_processed"`

	txn        *models.PaymentTransaction
	duplicates []models.ItemPurchase
}

type RefundInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

type PurchaseDTO struct {
	ID            uuid.UUID           `json:"id"`
	ItemID        uuid.UUID           `json:"item_id"`
	ItemType      enums.ItemType      `json:"item_type"`
	ItemTitle     string              `json:"item_title"`
	DeveloperID   uuid.UUID           `json:"developer_id"`
	TransactionID *uuid.UUID          `json:"transaction_id,omitempty"`
	Price         int64               `json:"price"`
	PaidAmount    int64               `json:"paid_amount"`
	Currency      string              `json:"currency"`
	Status        enums.PaymentStatus `json:"status"`
	AccessGranted bool                `json:"access_granted"`
	PurchasedAt   time.Time           `json:"purchased_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	RefundedAt    *time.Time          `json:"refunded_at,omitempty"`
	RefundID      *string             `json:"refund_id,omitempty"`
}

func FromModel(p models.ItemPurchase) PurchaseDTO {
	return PurchaseDTO{
		ID:            p.ID,
		ItemID:        p.ItemID,
		ItemType:      p.ItemType,
		ItemTitle:     p.ItemTitle,
		DeveloperID:   p.DeveloperID,
		TransactionID: p.TransactionID,
		Price:         p.Price,
		PaidAmount:    p.PaidAmount,
		Currency:      p.Currency,
		Status:        p.Status,
		AccessGranted: p.AccessGranted,
		PurchasedAt:   p.PurchasedAt,
		CompletedAt:   p.CompletedAt,
		RefundedAt:    p.RefundedAt,
		RefundID:      p.GatewayRefundID,
	}
}

type ListResult struct {
	Items      []PurchaseDTO `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// EarningsSummary totals a developer's completed marketplace sales.
type EarningsSummary struct {
	DeveloperID       uuid.UUID      `json:"developer_id"`
	Sales             int64          `json:"sales"`
	PaidAmount        int64          `json:"paid_amount"`
	DeveloperEarnings int64          `json:"developer_earnings"`
	PlatformFee       int64          `json:"platform_fee"`
	Items             []ItemEarnings `json:"items"`
}
