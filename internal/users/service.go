package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

const maxNameLength = 120

// Service covers self-service profile reads and the admin user surface.
type Service interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error)
	Usage(ctx context.Context, userID uuid.UUID) (*UsageDTO, error)
	ListUsers(ctx context.Context, params ListParams) (*ListResult, error)
	SetRole(ctx context.Context, actor access.Actor, userID uuid.UUID, role enums.Role) (*UserDTO, error)
	SetActive(ctx context.Context, actor access.Actor, userID uuid.UUID, active bool) (*UserDTO, error)
}

type UpdateProfileInput struct {
	Name string `json:"name" validate:"required,max=120"`
}

type SetRoleInput struct {
	Role string `json:"role" validate:"required"`
}

type SetActiveInput struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// ListParams filters the admin user listing.
type ListParams struct {
	Role         *enums.Role
	Subscription *enums.PlanName
	Search       string
	pagination.Params
}

type ListResult struct {
	Items      []UserDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error
	UpdateActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, q listQuery) ([]models.User, error)
}

type service struct {
	repo  repository
	audit audit.Recorder
}

func NewService(repo *Repository, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &service{repo: repo, audit: recorder}, nil
}

func (s *service) GetMe(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(name) > maxNameLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is too long")
	}
	if _, err := s.load(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateName(ctx, userID, name); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	return s.GetMe(ctx, userID)
}

func (s *service) Usage(ctx context.Context, userID uuid.UUID) (*UsageDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return UsageFromModel(user), nil
}

func (s *service) ListUsers(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Role != nil && !params.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role filter")
	}
	if params.Subscription != nil && !params.Subscription.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription filter")
	}

	rows, err := s.repo.List(ctx, listQuery{
		role:         params.Role,
		subscription: params.Subscription,
		search:       strings.ToLower(strings.TrimSpace(params.Search)),
		cursor:       cursor,
		limit:        params.Limit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(u models.User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})

	items := make([]UserDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *FromModel(&rows[i]))
	}
	return &ListResult{Items: items, NextCursor: next}, nil
}

// SetRole changes a user's platform role. Granting or revoking admin and
// superadmin is reserved to superadmins.
func (s *service) SetRole(ctx context.Context, actor access.Actor, userID uuid.UUID, role enums.Role) (*UserDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if actor.UserID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own role")
	}
	target, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if (role.IsStaff() || target.Role.IsStaff()) && actor.Role != enums.RoleSuperadmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only a superadmin can change staff roles")
	}
	if target.Role == role {
		return FromModel(target), nil
	}

	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update role")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditUserRoleChanged,
		ResourceType: "user",
		ResourceID:   userID.String(),
		Metadata:     map[string]any{"from": target.Role, "to": role},
	})
	target.Role = role
	return FromModel(target), nil
}

// SetActive enables or disables an account. Users are never hard-deleted.
func (s *service) SetActive(ctx context.Context, actor access.Actor, userID uuid.UUID, active bool) (*UserDTO, error) {
	if actor.UserID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own status")
	}
	target, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Role.IsStaff() && actor.Role != enums.RoleSuperadmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only a superadmin can change staff accounts")
	}
	if target.IsActive == active {
		return FromModel(target), nil
	}

	if err := s.repo.UpdateActive(ctx, userID, active); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update active flag")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditUserActiveChanged,
		ResourceType: "user",
		ResourceID:   userID.String(),
		Metadata:     map[string]any{"is_active": active},
	})
	target.IsActive = active
	return FromModel(target), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
