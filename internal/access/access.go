package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
)

// Level is the capability an actor holds over a marketplace item.
type Level int

const (
	NoAccess Level = iota
	LimitedAccess
	OwnerAccess
	FullAccess
)

func (l Level) String() string {
	switch l {
	case FullAccess:
		return "full"
	case OwnerAccess:
		return "owner"
	case LimitedAccess:
		return "limited"
	default:
		return "none"
	}
}

// CanDownload reports whether the level unlocks the item's download URL.
func (l Level) CanDownload() bool {
	return l >= LimitedAccess
}

// CanManage reports whether the level may edit, submit or archive the item.
func (l Level) CanManage() bool {
	return l >= OwnerAccess
}

// Actor is the authenticated caller. A nil *Actor is an anonymous visitor.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (a *Actor) IsStaff() bool {
	return a != nil && a.Role.IsStaff()
}

// Resource is the subset of a catalog item the resolver needs.
type Resource struct {
	ItemID         uuid.UUID
	ItemType       enums.ItemType
	OwnerID        uuid.UUID
	OrganizationID *uuid.UUID
	Status         enums.ContentStatus
	IsFree         bool
}

// FromContent builds a Resource from a catalog row.
func FromContent(itemType enums.ItemType, c models.ContentFields) Resource {
	return Resource{
		ItemID:         c.ID,
		ItemType:       itemType,
		OwnerID:        c.OwnerID,
		OrganizationID: c.OrganizationID,
		Status:         c.Status,
		IsFree:         c.IsFree,
	}
}

// CanPreview reports whether the listing or detail view may be shown.
func CanPreview(level Level, res Resource) bool {
	return res.Status == enums.ContentStatusApproved || level.CanManage()
}

type Resolver interface {
	Resolve(ctx context.Context, actor *Actor, res Resource) (Level, error)
}

type resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) (Resolver, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &resolver{db: db}, nil
}

// Resolve applies, in order: staff role, ownership (direct or as an
// organization manager), approved-and-free, completed purchase. Subscription
// plans never grant catalog entitlement.
func (r *resolver) Resolve(ctx context.Context, actor *Actor, res Resource) (Level, error) {
	if actor.IsStaff() {
		return FullAccess, nil
	}
	if actor != nil && actor.UserID != uuid.Nil {
		if actor.UserID == res.OwnerID {
			return OwnerAccess, nil
		}
		if res.OrganizationID != nil {
			manages, err := r.managesOrganization(ctx, *res.OrganizationID, actor.UserID)
			if err != nil {
				return NoAccess, err
			}
			if manages {
				return OwnerAccess, nil
			}
		}
	}

	if res.Status != enums.ContentStatusApproved {
		return NoAccess, nil
	}
	if res.IsFree {
		return LimitedAccess, nil
	}
	if actor == nil || actor.UserID == uuid.Nil {
		return NoAccess, nil
	}

	owned, err := r.hasPurchase(ctx, actor.UserID, res)
	if err != nil {
		return NoAccess, err
	}
	if owned {
		return LimitedAccess, nil
	}
	return NoAccess, nil
}

func (r *resolver) managesOrganization(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	var member models.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Limit(1).
		Find(&member).Error
	if err != nil {
		return false, fmt.Errorf("load organization member: %w", err)
	}
	return member.Role.CanManage(), nil
}

func (r *resolver) hasPurchase(ctx context.Context, userID uuid.UUID, res Resource) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ItemPurchase{}).
		Where("user_id = ? AND item_id = ? AND item_type = ?", userID, res.ItemID, res.ItemType).
		Where("status = ? AND access_granted = ?", enums.PaymentStatusCompleted, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count purchases: %w", err)
	}
	return count > 0, nil
}
