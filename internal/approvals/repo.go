package approvals

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Create(db *gorm.DB, approval *models.ContentApproval) error {
	return db.Create(approval).Error
}

// FindByID returns nil, nil when no approval matches.
func (r *Repository) FindByID(db *gorm.DB, id uuid.UUID) (*models.ContentApproval, error) {
	var approval models.ContentApproval
	if err := db.Where("id = ?", id).First(&approval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &approval, nil
}

// Decide closes a pending approval. It reports false when the row was already decided.
func (r *Repository) Decide(db *gorm.DB, id, reviewer uuid.UUID, status enums.ContentStatus, notes string, now time.Time) (bool, error) {
	res := db.Model(&models.ContentApproval{}).
		Where("id = ? AND status = ?", id, enums.ContentStatusPendingApproval).
		Updates(map[string]any{
			"status":      status,
			"reviewed_by": reviewer,
			"notes":       notes,
			"reviewed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ListPending(db *gorm.DB, cursor *pagination.Cursor, limit int) ([]models.ContentApproval, error) {
	var rows []models.ContentApproval
	err := db.Where("status = ?", enums.ContentStatusPendingApproval).
		Scopes(pagination.Scope("submitted_at", cursor, limit)).
		Find(&rows).Error
	return rows, err
}
