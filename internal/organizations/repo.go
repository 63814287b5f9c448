package organizations

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Create(db *gorm.DB, org *models.Organization) error {
	return db.Create(org).Error
}

func (r *Repository) AddMember(db *gorm.DB, member *models.OrganizationMember) error {
	return db.Create(member).Error
}

// FindByID returns nil, nil when the organization does not exist.
func (r *Repository) FindByID(db *gorm.DB, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := db.Where("id = ?", id).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

// FindMember returns nil, nil when the user is not a member.
func (r *Repository) FindMember(db *gorm.DB, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	var member models.OrganizationMember
	err := db.Where("organization_id = ? AND user_id = ?", orgID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// Membership is an organization seen from one member.
type Membership struct {
	ID        uuid.UUID `gorm:"column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Slug      string    `gorm:"column:slug" json:"slug"`
	OwnerID   uuid.UUID `gorm:"column:owner_id" json:"owner_id"`
	Role      string    `gorm:"column:member_role" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (r *Repository) ListForUser(db *gorm.DB, userID uuid.UUID) ([]Membership, error) {
	var rows []Membership
	err := db.Table("organizations").
		Select("organizations.id, organizations.name, organizations.slug, organizations.owner_id, organizations.created_at, organization_members.role AS member_role").
		Joins("JOIN organization_members ON organization_members.organization_id = organizations.id").
		Where("organization_members.user_id = ?", userID).
		Order("organizations.created_at ASC").
		Scan(&rows).Error
	return rows, err
}

type Member struct {
	UserID   uuid.UUID `gorm:"column:user_id" json:"user_id"`
	Email    string    `gorm:"column:email" json:"email"`
	Name     string    `gorm:"column:name" json:"name"`
	Role     string    `gorm:"column:role" json:"role"`
	JoinedAt time.Time `gorm:"column:created_at" json:"joined_at"`
}

func (r *Repository) ListMembers(db *gorm.DB, orgID uuid.UUID) ([]Member, error) {
	var rows []Member
	err := db.Table("organization_members").
		Select("organization_members.user_id, users.email, users.name, organization_members.role, organization_members.created_at").
		Joins("JOIN users ON users.id = organization_members.user_id").
		Where("organization_members.organization_id = ?", orgID).
		Order("organization_members.created_at ASC").
		Scan(&rows).Error
	return rows, err
}
