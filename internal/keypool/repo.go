package keypool

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

var candidateBatch = 16

// Repository wraps the pool tables. Every method takes the connection to use so
// callers can run it inside their own transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) FindAssignment(tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType) (*models.APIKeyAssignment, error) {
	var assignment models.APIKeyAssignment
	err := tx.Where("user_id = ? AND key_type = ?", userID, keyType).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *Repository) FindKey(tx *gorm.DB, id uuid.UUID) (*models.APIKeyPoolEntry, error) {
	var key models.APIKeyPoolEntry
	if err := tx.Where("id = ?", id).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Candidates lists keys with spare capacity in first-fit order. A non-nil
// after resumes the listing past that key.
func (r *Repository) Candidates(tx *gorm.DB, keyType enums.KeyType, after *models.APIKeyPoolEntry) ([]models.APIKeyPoolEntry, error) {
	q := tx.Where("key_type = ? AND is_active = ? AND assigned_count < max_users", keyType, true)
	if after != nil {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var keys []models.APIKeyPoolEntry
	err := q.
		Order("created_at ASC").
		Order("id ASC").
		Limit(candidateBatch).
		Find(&keys).Error
	return keys, err
}

// Claim increments assigned_count only while the key still has room. It
// reports whether this caller won the slot.
func (r *Repository) Claim(tx *gorm.DB, keyID uuid.UUID) (bool, error) {
	res := tx.Model(&models.APIKeyPoolEntry{}).
		Where("id = ? AND is_active = ? AND assigned_count < max_users", keyID, true).
		Updates(map[string]any{
			"assigned_count": gorm.Expr("assigned_count + 1"),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Unclaim decrements assigned_count without going below zero.
func (r *Repository) Unclaim(tx *gorm.DB, keyID uuid.UUID) error {
	return tx.Model(&models.APIKeyPoolEntry{}).
		Where("id = ? AND assigned_count > 0", keyID).
		Updates(map[string]any{
			"assigned_count": gorm.Expr("assigned_count - 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *Repository) CreateAssignment(tx *gorm.DB, assignment *models.APIKeyAssignment) error {
	return tx.Create(assignment).Error
}

func (r *Repository) DeleteAssignment(tx *gorm.DB, id uuid.UUID) error {
	return tx.Where("id = ?", id).Delete(&models.APIKeyAssignment{}).Error
}

// SetUserKey writes (or clears, when value is nil) the user's key column.
func (r *Repository) SetUserKey(tx *gorm.DB, userID uuid.UUID, keyType enums.KeyType, value *string) error {
	return tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update(keyType.UserColumn(), value).Error
}

func (r *Repository) CreateKey(ctx context.Context, db *gorm.DB, key *models.APIKeyPoolEntry) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *Repository) ListKeys(ctx context.Context, db *gorm.DB, keyType *enums.KeyType) ([]models.APIKeyPoolEntry, error) {
	q := db.WithContext(ctx).Order("key_type ASC").Order("created_at ASC").Order("id ASC")
	if keyType != nil {
		q = q.Where("key_type = ?", *keyType)
	}
	var keys []models.APIKeyPoolEntry
	return keys, q.Find(&keys).Error
}

func (r *Repository) AssignmentsForKeys(ctx context.Context, db *gorm.DB, keyIDs []uuid.UUID) ([]models.APIKeyAssignment, error) {
	if len(keyIDs) == 0 {
		return nil, nil
	}
	var rows []models.APIKeyAssignment
	err := db.WithContext(ctx).
		Where("key_id IN ?", keyIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Deactivate(ctx context.Context, db *gorm.DB, id uuid.UUID) (int64, error) {
	res := db.WithContext(ctx).Model(&models.APIKeyPoolEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

type statsRow struct {
	KeyType  enums.KeyType
	KeyCount int64
	Capacity int64
	Assigned int64
}

func (r *Repository) Stats(ctx context.Context, db *gorm.DB) ([]statsRow, error) {
	var rows []statsRow
	err := db.WithContext(ctx).
		Model(&models.APIKeyPoolEntry{}).
		Select("key_type, COUNT(*) AS key_count, COALESCE(SUM(max_users), 0) AS capacity, COALESCE(SUM(assigned_count), 0) AS assigned").
		Where("is_active = ?", true).
		Group("key_type").
		Order("key_type ASC").
		Scan(&rows).Error
	return rows, err
}
