package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/pagination"
)

// Repository reads and writes the users table. Lookups return
// gorm.ErrRecordNotFound for missing rows, as do updates that matched nothing.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail expects an already normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repository) first(ctx context.Context, cond string, arg any) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(cond, arg).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin skips hooks and updated_at; a login is not a profile edit.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_login_at", at)
	return affected(res)
}

func (r *Repository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return r.set(ctx, id, "name", name)
}

func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error {
	return r.set(ctx, id, "role", role)
}

func (r *Repository) UpdateActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.set(ctx, id, "is_active", active)
}

func (r *Repository) set(ctx context.Context, id uuid.UUID, column string, value any) error {
	return affected(r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value))
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type listQuery struct {
	role         *enums.Role
	subscription *enums.PlanName
	search       string
	cursor       *pagination.Cursor
	limit        int
}

// List pages users newest first. search is matched case-insensitively
// against email and name.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.User, error) {
	tx := r.db.WithContext(ctx).Model(&models.User{})
	if q.role != nil {
		tx = tx.Where("role = ?", *q.role)
	}
	if q.subscription != nil {
		tx = tx.Where("subscription = ?", *q.subscription)
	}
	if q.search != "" {
		pattern := "%" + q.search + "%"
		tx = tx.Where("(LOWER(email) LIKE ? OR LOWER(name) LIKE ?)", pattern, pattern)
	}
	var rows []models.User
	err := tx.Scopes(pagination.Scope("created_at", q.cursor, q.limit)).Find(&rows).Error
	return rows, err
}
