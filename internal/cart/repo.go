package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// Repository persists shopping carts and their line items.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser loads the user's cart with items in insertion order, or nil.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.ShoppingCart, error) {
	var cart models.ShoppingCart
	err := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) Create(ctx context.Context, cart *models.ShoppingCart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

// AddItem appends the item after the current last position.
func (r *Repository) AddItem(ctx context.Context, item *models.CartItem) error {
	var maxPos int
	if err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ?", item.CartID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPos).Error; err != nil {
		return err
	}
	item.Position = maxPos + 1
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID, itemType enums.ItemType) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND item_id = ? AND item_type = ?", cartID, itemID, itemType).
		Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

// Recompute rewrites subtotal and item_count from the cart's items.
func (r *Repository) Recompute(ctx context.Context, cartID uuid.UUID) error {
	var totals struct {
		Subtotal  int64
		ItemCount int
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ?", cartID).
		Select("COALESCE(SUM(price), 0) AS subtotal, COUNT(*) AS item_count").
		Scan(&totals).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.ShoppingCart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"subtotal":   totals.Subtotal,
			"item_count": totals.ItemCount,
			"updated_at": time.Now().UTC(),
		}).Error
}
