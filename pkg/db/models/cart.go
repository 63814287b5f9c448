package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// ShoppingCart is the single cart a user owns. Subtotal and ItemCount are
// derived from Items and rewritten on every change.
type ShoppingCart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_shopping_carts_user"`
	Subtotal  int64      `gorm:"column:subtotal;not null;default:0"`
	ItemCount int        `gorm:"column:item_count;not null;default:0"`
	Currency  string     `gorm:"column:currency;not null;default:'INR'"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *ShoppingCart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type CartItem struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID      `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_item,priority:1"`
	ItemID      uuid.UUID      `gorm:"column:item_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_item,priority:2"`
	ItemType    enums.ItemType `gorm:"column:item_type;type:text;not null;uniqueIndex:ux_cart_items_cart_item,priority:3"`
	Title       string         `gorm:"column:title;not null"`
	DeveloperID uuid.UUID      `gorm:"column:developer_id;type:uuid;not null"`
	Price       int64          `gorm:"column:price;not null"`
	Position    int            `gorm:"column:position;not null"`
	AddedAt     time.Time      `gorm:"column:added_at;autoCreateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
