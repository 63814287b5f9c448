package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// ItemPurchaseOwnedIndex enforces one completed purchase per buyer and item.
const ItemPurchaseOwnedIndex = "ux_item_purchases_owned"

// ItemPurchase is a buyer's entitlement to one marketplace item. A buyer holds
// at most one completed row per item.
type ItemPurchase struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index:ix_item_purchases_user_item,priority:1;uniqueIndex:ux_item_purchases_owned,priority:1,where:status = 'completed'"`
	ItemID            uuid.UUID           `gorm:"column:item_id;type:uuid;not null;index:ix_item_purchases_user_item,priority:2;uniqueIndex:ux_item_purchases_owned,priority:2"`
	ItemType          enums.ItemType      `gorm:"column:item_type;type:text;not null;uniqueIndex:ux_item_purchases_owned,priority:3"`
	ItemTitle         string              `gorm:"column:item_title;not null;default:''"`
	DeveloperID       uuid.UUID           `gorm:"column:developer_id;type:uuid;not null;index"`
	TransactionID     *uuid.UUID          `gorm:"column:transaction_id;type:uuid;index"`
	Price             int64               `gorm:"column:price;not null"`
	PaidAmount        int64               `gorm:"column:paid_amount;not null;default:0"`
	DeveloperEarnings int64               `gorm:"column:developer_earnings;not null;default:0"`
	PlatformFee       int64               `gorm:"column:platform_fee;not null;default:0"`
	Currency          string              `gorm:"column:currency;not null;default:'INR'"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	AccessGranted     bool                `gorm:"column:access_granted;not null;default:false"`
	PurchasedAt       time.Time           `gorm:"column:purchased_at;autoCreateTime"`
	CompletedAt       *time.Time          `gorm:"column:completed_at"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	GatewayRefundID   *string             `gorm:"column:gateway_refund_id"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *ItemPurchase) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
