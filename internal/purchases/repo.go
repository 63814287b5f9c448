package purchases

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

// Repository persists item purchases.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Create(db *gorm.DB, purchase *models.ItemPurchase) error {
	return db.Create(purchase).Error
}

// ownedIndex keeps a buyer at one completed row per item.
const ownedIndex = models.ItemPurchaseOwnedIndex

// FindByID returns nil, nil when the purchase does not exist.
func (r *Repository) FindByID(db *gorm.DB, id uuid.UUID) (*models.ItemPurchase, error) {
	return r.find(db, id)
}

// LockByID is FindByID holding a row lock until tx ends.
func (r *Repository) LockByID(tx *gorm.DB, id uuid.UUID) (*models.ItemPurchase, error) {
	return r.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repository) find(db *gorm.DB, id uuid.UUID) (*models.ItemPurchase, error) {
	var purchase models.ItemPurchase
	if err := db.Where("id = ?", id).First(&purchase).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *Repository) ListByTransaction(db *gorm.DB, transactionID uuid.UUID) ([]models.ItemPurchase, error) {
	var rows []models.ItemPurchase
	err := db.Where("transaction_id = ?", transactionID).Order("purchased_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// Complete writes a settled purchase while it is still pending or failed; a
// client reported failure may precede a valid payment.
func (r *Repository) Complete(db *gorm.DB, p *models.ItemPurchase) (bool, error) {
	res := db.Model(&models.ItemPurchase{}).
		Where("id = ? AND status IN ?", p.ID, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Updates(map[string]any{
			"status":             p.Status,
			"completed_at":       p.CompletedAt,
			"access_granted":     p.AccessGranted,
			"developer_earnings": p.DeveloperEarnings,
			"platform_fee":       p.PlatformFee,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FailPending fails every still pending purchase of a transaction.
func (r *Repository) FailPending(db *gorm.DB, transactionID uuid.UUID) error {
	return db.Model(&models.ItemPurchase{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.PaymentStatusPending).
		Updates(map[string]any{"status": enums.PaymentStatusFailed, "updated_at": time.Now().UTC()}).Error
}

// Cancel voids a line that was never settled.
func (r *Repository) Cancel(db *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := db.Model(&models.ItemPurchase{}).
		Where("id = ? AND status IN ?", id, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Updates(map[string]any{
			"status":             enums.PaymentStatusCancelled,
			"access_granted":     false,
			"developer_earnings": 0,
			"platform_fee":       0,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetRefundID records the gateway refund once; a second call is a no-op.
func (r *Repository) SetRefundID(db *gorm.DB, id uuid.UUID, refundID string) error {
	return db.Model(&models.ItemPurchase{}).
		Where("id = ? AND gateway_refund_id IS NULL", id).
		Updates(map[string]any{"gateway_refund_id": refundID, "updated_at": time.Now().UTC()}).Error
}

// MarkRefunded revokes access on a completed purchase.
func (r *Repository) MarkRefunded(db *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := db.Model(&models.ItemPurchase{}).
		Where("id = ? AND status IN ?", id, enums.PaymentStatusRefunded.Sources()).
		Updates(map[string]any{
			"status":         enums.PaymentStatusRefunded,
			"access_granted": false,
			"refunded_at":    now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CountCompletedForTransaction(db *gorm.DB, transactionID uuid.UUID) (int64, error) {
	var count int64
	err := db.Model(&models.ItemPurchase{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.PaymentStatusCompleted).
		Count(&count).Error
	return count, err
}

func (r *Repository) ListByUser(db *gorm.DB, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.ItemPurchase, error) {
	var rows []models.ItemPurchase
	err := db.Where("user_id = ?", userID).
		Where("status IN ?", []enums.PaymentStatus{enums.PaymentStatusCompleted, enums.PaymentStatusRefunded}).
		Scopes(pagination.Scope("purchased_at", cursor, limit)).
		Find(&rows).Error
	return rows, err
}

// ItemEarnings is one developer's completed sales of a single item.
type ItemEarnings struct {
	ItemID            uuid.UUID      `json:"item_id"`
	ItemType          enums.ItemType `json:"item_type"`
	ItemTitle         string         `json:"item_title"`
	Sales             int64          `json:"sales"`
	PaidAmount        int64          `json:"paid_amount"`
	DeveloperEarnings int64          `json:"developer_earnings"`
	PlatformFee       int64          `json:"platform_fee"`
}

// EarningsByItem aggregates completed sales per item for a developer.
func (r *Repository) EarningsByItem(db *gorm.DB, developerID uuid.UUID) ([]ItemEarnings, error) {
	var rows []ItemEarnings
	err := db.Model(&models.ItemPurchase{}).
		Select("item_id, item_type, MAX(item_title) AS item_title, COUNT(*) AS sales, "+
			"COALESCE(SUM(paid_amount), 0) AS paid_amount, "+
			"COALESCE(SUM(developer_earnings), 0) AS developer_earnings, "+
			"COALESCE(SUM(platform_fee), 0) AS platform_fee").
		Where("developer_id = ? AND status = ? AND paid_amount > 0", developerID, enums.PaymentStatusCompleted).
		Group("item_id, item_type").
		Order("developer_earnings DESC").
		Scan(&rows).Error
	return rows, err
}
