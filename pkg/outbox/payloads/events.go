package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// SubscriptionActivatedEvent is emitted when a verified payment activates or extends a plan.
type SubscriptionActivatedEvent struct {
	UserID        uuid.UUID      `json:"user_id"`
	Email         string         `json:"email"`
	Name          string         `json:"name,omitempty"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	Plan          enums.PlanName `json:"plan"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	StartDate     time.Time      `json:"start_date"`
	EndDate       time.Time      `json:"end_date"`
	KeysAssigned  []string       `json:"keys_assigned,omitempty"`
}

// SubscriptionExpiredEvent is emitted by the expiry job after a downgrade.
type SubscriptionExpiredEvent struct {
	UserID       uuid.UUID      `json:"user_id"`
	Email        string         `json:"email"`
	PreviousPlan enums.PlanName `json:"previous_plan"`
	ExpiredAt    time.Time      `json:"expired_at"`
}

// PurchaseCompletedEvent is emitted per item once a marketplace checkout is paid.
type PurchaseCompletedEvent struct {
	PurchaseID        uuid.UUID            `json:"purchase_id"`
	TransactionID     *uuid.UUID           `json:"transaction_id,omitempty"`
	BuyerID           uuid.UUID            `json:"buyer_id"`
	BuyerEmail        string               `json:"buyer_email"`
	DeveloperID       uuid.UUID            `json:"developer_id"`
	ItemID            uuid.UUID            `json:"item_id"`
	ItemType          enums.ItemType       `json:"item_type"`
	ItemTitle         string               `json:"item_title"`
	PaidAmount        int64                `json:"paid_amount"`
	DeveloperEarnings int64                `json:"developer_earnings"`
	PlatformFee       int64                `json:"platform_fee"`
	Currency          string               `json:"currency"`
	Gateway           enums.PaymentGateway `json:"gateway,omitempty"`
	CompletedAt       time.Time            `json:"completed_at"`
}

// PurchaseRefundedEvent is emitted when an admin refunds a purchase.
type PurchaseRefundedEvent struct {
	PurchaseID  uuid.UUID `json:"purchase_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	DeveloperID uuid.UUID `json:"developer_id"`
	PaidAmount  int64     `json:"paid_amount"`
	Reason      string    `json:"reason,omitempty"`
	RefundedAt  time.Time `json:"refunded_at"`
}

// PaymentFailedEvent records a gateway or client reported failure.
type PaymentFailedEvent struct {
	TransactionID uuid.UUID            `json:"transaction_id"`
	UserID        uuid.UUID            `json:"user_id"`
	Purpose       enums.PaymentPurpose `json:"purpose"`
	Amount        int64                `json:"amount"`
	Reason        string               `json:"reason,omitempty"`
}
