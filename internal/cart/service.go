package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

type itemLoader interface {
	FindByID(db *gorm.DB, itemType enums.ItemType, id uuid.UUID) (*marketplace.Item, error)
	HasCompletedPurchase(db *gorm.DB, userID, itemID uuid.UUID, itemType enums.ItemType) (bool, error)
}

// Service exposes cart operations for the authenticated buyer.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
}

type service struct {
	repo     CartRepository
	tx       txRunner
	conn     *gorm.DB
	items    itemLoader
	currency string
}

// NewService builds a cart service backed by the provided stack.
func NewService(client *db.Client, repo CartRepository, items itemLoader, currency string) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if items == nil {
		return nil, fmt.Errorf("item loader required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}
	return &service{
		repo:     repo,
		tx:       client,
		conn:     client.DB(),
		items:    items,
		currency: currency,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(cart), nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*CartDTO, error) {
	itemType, err := enums.ParseItemType(input.ItemType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item type")
	}
	conn := s.conn.WithContext(ctx)
	item, err := s.items.FindByID(conn, itemType, input.ItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}
	if item == nil || item.Status != enums.ContentStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	if item.OwnerID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own item")
	}
	if item.IsFree || item.Price == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "free items are claimed, not purchased")
	}
	owned, err := s.items.HasCompletedPurchase(conn, userID, item.ID, item.Type)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	if owned {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "item already purchased")
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, existing := range cart.Items {
		if existing.ItemID == item.ID && existing.ItemType == item.Type {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "item already in cart")
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line := &models.CartItem{
			CartID:      cart.ID,
			ItemID:      item.ID,
			ItemType:    item.Type,
			Title:       item.Title,
			DeveloperID: item.OwnerID,
			Price:       item.Price,
		}
		if err := repo.AddItem(ctx, line); err != nil {
			if db.IsUniqueViolation(err, "ux_cart_items_cart_item") {
				return pkgerrors.New(pkgerrors.CodeConflict, "item already in cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
		}
		if err := repo.Recompute(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		removed, err := repo.RemoveItem(ctx, cart.ID, itemID, itemType)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}
		if err := repo.Recompute(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return ClearTx(ctx, s.repo.WithTx(tx), cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// ClearTx empties a cart inside the caller's transaction.
func ClearTx(ctx context.Context, repo CartRepository, cartID uuid.UUID) error {
	if err := repo.ClearItems(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if err := repo.Recompute(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute cart")
	}
	return nil
}

// ensureCart returns the user's cart, creating it on first use.
func (s *service) ensureCart(ctx context.Context, userID uuid.UUID) (*models.ShoppingCart, error) {
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart != nil {
		return cart, nil
	}
	cart = &models.ShoppingCart{UserID: userID, Currency: s.currency}
	if err := s.repo.Create(ctx, cart); err != nil {
		if !db.IsUniqueViolation(err, "ux_shopping_carts_user") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
		}
		cart, err = s.repo.FindByUser(ctx, userID)
		if err != nil || cart == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
	}
	return cart, nil
}
