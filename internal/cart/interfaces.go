package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.ShoppingCart, error)
	Create(ctx context.Context, cart *models.ShoppingCart) error
	AddItem(ctx context.Context, item *models.CartItem) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, itemType enums.ItemType) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	Recompute(ctx context.Context, cartID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
