package payments

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// Repository persists payment_transactions rows. Methods take the connection
// so they compose with the caller's transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Create(db *gorm.DB, txn *models.PaymentTransaction) error {
	return db.Create(txn).Error
}

func (r *Repository) FindByID(db *gorm.DB, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := db.Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByOrderID returns nil, nil when no row carries the gateway order id.
func (r *Repository) FindByOrderID(db *gorm.DB, orderID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := db.Where("gateway_order_id = ?", orderID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindByPaymentID returns nil, nil when no row carries the gateway payment id.
func (r *Repository) FindByPaymentID(db *gorm.DB, paymentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := db.Where("gateway_payment_id = ?", paymentID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *Repository) SetOrderID(db *gorm.DB, id uuid.UUID, orderID string) error {
	return db.Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Update("gateway_order_id", orderID).Error
}

// Complete moves a pending or failed row to completed. It reports false when
// another caller already settled the row.
func (r *Repository) Complete(db *gorm.DB, id uuid.UUID, paymentID string, signature *string, now time.Time) (bool, error) {
	res := db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, enums.PaymentStatusCompleted.Sources()).
		Updates(map[string]any{
			"status":             enums.PaymentStatusCompleted,
			"gateway_payment_id": paymentID,
			"gateway_signature":  signature,
			"failure_reason":     nil,
			"completed_at":       now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Fail moves a pending row to failed. It reports false when the row had
// already left pending.
func (r *Repository) Fail(db *gorm.DB, id uuid.UUID, reason string, now time.Time) (bool, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		reason = reason[:500]
	}
	res := db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": reason,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetSplit stores the aggregated revenue split of a marketplace transaction.
func (r *Repository) SetSplit(db *gorm.DB, id uuid.UUID, developerEarnings, platformFee int64) error {
	return db.Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"developer_earnings": developerEarnings,
			"platform_fee":       platformFee,
		}).Error
}

func (r *Repository) MarkRefunded(db *gorm.DB, id uuid.UUID, now time.Time) error {
	return db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, enums.PaymentStatusRefunded.Sources()).
		Updates(map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"refunded_at": now,
			"updated_at":  now,
		}).Error
}

// NewReceipt builds a gateway receipt id; Razorpay caps receipts at 40 characters.
func NewReceipt(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
