package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

type AddItemInput struct {
	ItemType string    `json:"item_type" validate:"required,itemtype"`
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
}

type CartItemDTO struct {
	ItemID      uuid.UUID      `json:"item_id"`
	ItemType    enums.ItemType `json:"item_type"`
	Title       string         `json:"title"`
	DeveloperID uuid.UUID      `json:"developer_id"`
	Price       int64          `json:"price"`
	AddedAt     time.Time      `json:"added_at"`
}

type CartDTO struct {
	ID              uuid.UUID     `json:"id"`
	Items           []CartItemDTO `json:"items"`
	Subtotal        int64         `json:"subtotal"`
	DisplaySubtotal string        `json:"display_subtotal"`
	ItemCount       int           `json:"item_count"`
	Currency        string        `json:"currency"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// FromModel maps a persisted cart into its API shape.
func FromModel(cart *models.ShoppingCart) *CartDTO {
	dto := &CartDTO{
		ID:              cart.ID,
		Items:           make([]CartItemDTO, 0, len(cart.Items)),
		Subtotal:        cart.Subtotal,
		DisplaySubtotal: decimal.New(cart.Subtotal, -2).StringFixed(2),
		ItemCount:       cart.ItemCount,
		Currency:        cart.Currency,
		UpdatedAt:       cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		dto.Items = append(dto.Items, CartItemDTO{
			ItemID:      item.ItemID,
			ItemType:    item.ItemType,
			Title:       item.Title,
			DeveloperID: item.DeveloperID,
			Price:       item.Price,
			AddedAt:     item.AddedAt,
		})
	}
	return dto
}
