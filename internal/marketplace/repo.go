package marketplace

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

// Repository reads and writes both catalog tables behind one item shape.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func tableFor(itemType enums.ItemType) (string, error) {
	switch itemType {
	case enums.ItemTypeTemplate:
		return "templates", nil
	case enums.ItemTypeComponent:
		return "components", nil
	}
	return "", fmt.Errorf("unknown item type %q", itemType)
}

// FindByID returns nil, nil when the item does not exist.
func (r *Repository) FindByID(db *gorm.DB, itemType enums.ItemType, id uuid.UUID) (*Item, error) {
	switch itemType {
	case enums.ItemTypeTemplate:
		var t models.Template
		if err := db.Where("id = ?", id).First(&t).Error; err != nil {
			return nil, notFoundAsNil(err)
		}
		return fromTemplate(t), nil
	case enums.ItemTypeComponent:
		var c models.Component
		if err := db.Where("id = ?", id).First(&c).Error; err != nil {
			return nil, notFoundAsNil(err)
		}
		return fromComponent(c), nil
	}
	return nil, fmt.Errorf("unknown item type %q", itemType)
}

func (r *Repository) Create(db *gorm.DB, item *Item) error {
	switch item.Type {
	case enums.ItemTypeTemplate:
		row := models.Template{ContentFields: item.ContentFields, TechStack: item.TechStack}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		item.ContentFields = row.ContentFields
		return nil
	case enums.ItemTypeComponent:
		row := models.Component{ContentFields: item.ContentFields, Framework: item.Framework}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		item.ContentFields = row.ContentFields
		return nil
	}
	return fmt.Errorf("unknown item type %q", item.Type)
}

func (r *Repository) Update(db *gorm.DB, itemType enums.ItemType, id uuid.UUID, updates map[string]any) error {
	table, err := tableFor(itemType)
	if err != nil {
		return err
	}
	updates["updated_at"] = time.Now().UTC()
	return db.Table(table).Where("id = ?", id).Updates(updates).Error
}

// TransitionStatus moves the item to next only while it is in one of from.
func (r *Repository) TransitionStatus(db *gorm.DB, itemType enums.ItemType, id uuid.UUID, from []enums.ContentStatus, next enums.ContentStatus) (bool, error) {
	table, err := tableFor(itemType)
	if err != nil {
		return false, err
	}
	res := db.Table(table).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{"status": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) IncrementDownloads(db *gorm.DB, itemType enums.ItemType, id uuid.UUID) error {
	table, err := tableFor(itemType)
	if err != nil {
		return err
	}
	return db.Table(table).Where("id = ?", id).UpdateColumn("downloads", gorm.Expr("downloads + 1")).Error
}

type approvedQuery struct {
	itemType enums.ItemType
	category string
	search   string
	freeOnly bool
	cursor   *pagination.Cursor
	limit    int
}

func (r *Repository) ListApproved(db *gorm.DB, q approvedQuery) ([]*Item, error) {
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("status = ?", enums.ContentStatusApproved)
		if q.category != "" {
			tx = tx.Where("category = ?", q.category)
		}
		if q.freeOnly {
			tx = tx.Where("is_free = ?", true)
		}
		if q.search != "" {
			like := "%" + strings.ToLower(q.search) + "%"
			tx = tx.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?)", like, like, like)
		}
		return tx.Scopes(pagination.Scope("created_at", q.cursor, q.limit))
	}

	switch q.itemType {
	case enums.ItemTypeTemplate:
		var rows []models.Template
		if err := db.Scopes(scope).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]*Item, 0, len(rows))
		for _, row := range rows {
			out = append(out, fromTemplate(row))
		}
		return out, nil
	case enums.ItemTypeComponent:
		var rows []models.Component
		if err := db.Scopes(scope).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]*Item, 0, len(rows))
		for _, row := range rows {
			out = append(out, fromComponent(row))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown item type %q", q.itemType)
}

// ListByOwner returns both item types owned by the user, newest first.
func (r *Repository) ListByOwner(db *gorm.DB, ownerID uuid.UUID) ([]*Item, error) {
	var templates []models.Template
	if err := db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&templates).Error; err != nil {
		return nil, err
	}
	var components []models.Component
	if err := db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&components).Error; err != nil {
		return nil, err
	}
	out := make([]*Item, 0, len(templates)+len(components))
	for _, t := range templates {
		out = append(out, fromTemplate(t))
	}
	for _, c := range components {
		out = append(out, fromComponent(c))
	}
	return out, nil
}

// ManagesOrganization reports whether the user may publish under the organization.
func (r *Repository) ManagesOrganization(db *gorm.DB, orgID, userID uuid.UUID) (bool, error) {
	var member models.OrganizationMember
	err := db.Where("organization_id = ? AND user_id = ?", orgID, userID).Limit(1).Find(&member).Error
	if err != nil {
		return false, err
	}
	return member.Role.CanManage(), nil
}

// HasCompletedPurchase reports whether the user already owns the item.
func (r *Repository) HasCompletedPurchase(db *gorm.DB, userID, itemID uuid.UUID, itemType enums.ItemType) (bool, error) {
	var count int64
	err := db.Model(&models.ItemPurchase{}).
		Where("user_id = ? AND item_id = ? AND item_type = ?", userID, itemID, itemType).
		Where("status = ?", enums.PaymentStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
