package organizations

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/marketplace"
	"github.com/angelmondragon/componentry-backend/pkg/db"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

// Service manages organizations and their members.
type Service interface {
	Create(ctx context.Context, actor access.Actor, input CreateInput) (*Membership, error)
	AddMember(ctx context.Context, actor access.Actor, orgID uuid.UUID, input AddMemberInput) (*Member, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	Members(ctx context.Context, actor access.Actor, orgID uuid.UUID) ([]Member, error)
}

type CreateInput struct {
	Name string `json:"name" validate:"required,min=2,max=120"`
	Slug string `json:"slug" validate:"omitempty,min=2,max=120"`
}

type AddMemberInput struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin member"`
}

type service struct {
	db    *db.Client
	repo  *Repository
	audit audit.Recorder
}

func NewService(client *db.Client, repo *Repository, recorder audit.Recorder) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("organization repository required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &service{db: client, repo: repo, audit: recorder}, nil
}

func (s *service) Create(ctx context.Context, actor access.Actor, input CreateInput) (*Membership, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	slug := marketplace.Slugify(input.Slug)
	if slug == "" {
		slug = marketplace.Slugify(name)
	}
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must contain letters or digits")
	}

	org := &models.Organization{Name: name, Slug: slug, OwnerID: actor.UserID}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Create(tx, org); err != nil {
			if db.IsUniqueViolation(err, "ux_organizations_slug") {
				return pkgerrors.New(pkgerrors.CodeConflict, "organization slug already taken").
					WithDetails(map[string]any{"slug": slug})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create organization")
		}
		owner := &models.OrganizationMember{OrganizationID: org.ID, UserID: actor.UserID, Role: enums.OrgRoleOwner}
		if err := s.repo.AddMember(tx, owner); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add owner")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditOrganizationCreated,
			ResourceType: "organization",
			ResourceID:   org.ID.String(),
			Metadata:     map[string]any{"slug": slug},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Membership{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		OwnerID:   org.OwnerID,
		Role:      string(enums.OrgRoleOwner),
		CreatedAt: org.CreatedAt,
	}, nil
}

func (s *service) AddMember(ctx context.Context, actor access.Actor, orgID uuid.UUID, input AddMemberInput) (*Member, error) {
	role, err := enums.ParseOrgRole(strings.ToLower(strings.TrimSpace(input.Role)))
	if err != nil || role == enums.OrgRoleOwner {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be admin or member")
	}
	if err := s.requireManager(ctx, actor, orgID); err != nil {
		return nil, err
	}

	conn := s.db.DB().WithContext(ctx)
	var user models.User
	if err := conn.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).Limit(1).Find(&user).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	member := &models.OrganizationMember{OrganizationID: orgID, UserID: user.ID, Role: role}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.AddMember(tx, member); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "user is already a member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add member")
		}
		s.audit.RecordTx(ctx, tx, audit.Entry{
			ActorID:      &actor.UserID,
			ActorRole:    actor.Role,
			Action:       enums.AuditOrganizationMemberAdded,
			ResourceType: "organization",
			ResourceID:   orgID.String(),
			Metadata:     map[string]any{"user_id": user.ID.String(), "role": string(role)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Member{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     string(role),
		JoinedAt: member.CreatedAt,
	}, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := s.repo.ListForUser(s.db.DB().WithContext(ctx), userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list organizations")
	}
	if rows == nil {
		rows = []Membership{}
	}
	return rows, nil
}

func (s *service) Members(ctx context.Context, actor access.Actor, orgID uuid.UUID) ([]Member, error) {
	conn := s.db.DB().WithContext(ctx)
	if !actor.IsStaff() {
		member, err := s.repo.FindMember(conn, orgID, actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
		}
		if member == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
	}
	rows, err := s.repo.ListMembers(conn, orgID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	if rows == nil {
		rows = []Member{}
	}
	return rows, nil
}

func (s *service) requireManager(ctx context.Context, actor access.Actor, orgID uuid.UUID) error {
	conn := s.db.DB().WithContext(ctx)
	org, err := s.repo.FindByID(conn, orgID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	if org == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	if actor.IsStaff() {
		return nil
	}
	member, err := s.repo.FindMember(conn, orgID, actor.UserID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	if member == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
	}
	if !member.Role.CanManage() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only owners and admins can add members")
	}
	return nil
}
