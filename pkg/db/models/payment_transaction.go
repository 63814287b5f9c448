package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// PaymentTransaction records one gateway payment, for a subscription plan or a
// marketplace checkout. Amounts are in minor units.
type PaymentTransaction struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null;index:ix_payment_transactions_user,priority:1"`
	Purpose           enums.PaymentPurpose `gorm:"column:purpose;type:text;not null"`
	PlanName          *enums.PlanName      `gorm:"column:plan_name;type:text"`
	Amount            int64                `gorm:"column:amount;not null"`
	Currency          string               `gorm:"column:currency;not null;default:'INR'"`
	Status            enums.PaymentStatus  `gorm:"column:status;type:text;not null;default:'pending';index"`
	Gateway           enums.PaymentGateway `gorm:"column:gateway;type:text;not null"`
	Receipt           string               `gorm:"column:receipt;not null;uniqueIndex:ux_payment_transactions_receipt"`
	GatewayOrderID    *string              `gorm:"column:gateway_order_id;uniqueIndex:ux_payment_transactions_gateway_order_id"`
	GatewayPaymentID  *string              `gorm:"column:gateway_payment_id;uniqueIndex:ux_payment_transactions_gateway_payment_id"`
	GatewaySignature  *string              `gorm:"column:gateway_signature"`
	DeveloperEarnings int64                `gorm:"column:developer_earnings;not null;default:0"`
	PlatformFee       int64                `gorm:"column:platform_fee;not null;default:0"`
	FailureReason     *string              `gorm:"column:failure_reason"`
	CompletedAt       *time.Time           `gorm:"column:completed_at"`
	RefundedAt        *time.Time           `gorm:"column:refunded_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime;index:ix_payment_transactions_user,priority:2,sort:desc"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
