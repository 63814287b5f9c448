package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/keypool"
	"github.com/angelmondragon/componentry-backend/internal/plans"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
)

const defaultBatchCap = 500

// Service defines the subscription lifecycle surface.
type Service interface {
	Activate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, plan enums.PlanName, now time.Time) (*Activation, error)
	Downgrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (*Downgrade, error)
	ResetTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (bool, error)
	FindExpiring(ctx context.Context, now time.Time, days int) ([]models.User, error)
	FindExpired(ctx context.Context, now time.Time) ([]models.User, error)
	FindTokenResetDue(ctx context.Context, now time.Time) ([]models.User, error)
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	DB       *gorm.DB
	Keys     keypool.Assigner
	BatchCap int
}

// Activation is the state written by Activate.
type Activation struct {
	User         models.User
	Plan         plans.Plan
	Extended     bool
	KeysAssigned []enums.KeyType
}

// Downgrade reports what Downgrade changed. Changed is false when the user was
// already on the free tier.
type Downgrade struct {
	User            models.User
	PreviousPlan    enums.PlanName
	PreviousEndDate *time.Time
	Changed         bool
}

type service struct {
	db       *gorm.DB
	keys     keypool.Assigner
	batchCap int
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Keys == nil {
		return nil, fmt.Errorf("key assigner required")
	}
	batchCap := params.BatchCap
	if batchCap <= 0 {
		batchCap = defaultBatchCap
	}
	return &service{db: params.DB, keys: params.Keys, batchCap: batchCap}, nil
}

// Activate moves the user onto plan. Renewing the same, still running plan
// extends from the current end date; anything else starts at now.
func (s *service) Activate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, planName enums.PlanName, now time.Time) (*Activation, error) {
	plan, err := plans.Get(planName)
	if err != nil {
		return nil, err
	}
	if !plan.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only paid plans can be activated")
	}

	user, err := loadUser(tx, userID)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	start := now
	base := now
	extended := false
	if user.Subscription == planName && user.SubscriptionEndDate != nil && user.SubscriptionEndDate.After(now) {
		base = user.SubscriptionEndDate.UTC()
		if user.SubscriptionStartDate != nil {
			start = user.SubscriptionStartDate.UTC()
		}
		extended = true
	}
	end := base.Add(plan.Duration)
	resetAt := now.Add(plans.Period)

	role := user.Role
	if role == enums.RoleUser {
		role = enums.RoleDeveloper
	}

	updates := map[string]any{
		"subscription":            planName,
		"subscription_start_date": start,
		"subscription_end_date":   end,
		"tokens_limit":            plan.TokensLimit,
		"tokens_used":             0,
		"tokens_remaining":        plan.TokensLimit,
		"tokens_reset_date":       resetAt,
		"role":                    role,
		"updated_at":              now,
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate subscription")
	}

	granted := make(map[enums.KeyType]bool, len(plan.KeyTypes))
	assigned := make([]enums.KeyType, 0, len(plan.KeyTypes))
	for _, keyType := range plan.KeyTypes {
		granted[keyType] = true
		key, err := s.keys.Assign(ctx, tx, userID, keyType)
		if err != nil {
			return nil, err
		}
		if key != nil {
			assigned = append(assigned, keyType)
		}
	}
	for _, keyType := range poolKeyTypes {
		if granted[keyType] || user.APIKey(keyType) == nil {
			continue
		}
		if err := s.keys.Release(ctx, tx, userID, keyType); err != nil {
			return nil, err
		}
	}

	fresh, err := loadUser(tx, userID)
	if err != nil {
		return nil, err
	}
	return &Activation{User: *fresh, Plan: plan, Extended: extended, KeysAssigned: assigned}, nil
}

// Downgrade returns a user whose paid period ended before now to the free
// tier and releases every pool key. The role is left as is. A user who is
// free, or whose end date is not yet past (a renewal landed after the scan),
// is left untouched and reported with Changed=false.
func (s *service) Downgrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (*Downgrade, error) {
	user, err := loadUser(tx, userID)
	if err != nil {
		return nil, err
	}
	result := &Downgrade{PreviousPlan: user.Subscription, PreviousEndDate: user.SubscriptionEndDate}
	if user.Subscription == enums.PlanFree || !expiredAt(user, now) {
		result.User = *user
		return result, nil
	}

	free := plans.Free()
	remaining := user.TokensRemaining
	if remaining > free.TokensLimit {
		remaining = free.TokensLimit
	}
	res := tx.Model(&models.User{}).
		Where("id = ? AND subscription = ? AND subscription_end_date IS NOT NULL AND subscription_end_date < ?",
			userID, user.Subscription, now.UTC()).
		Updates(map[string]any{
			"subscription":          enums.PlanFree,
			"subscription_end_date": nil,
			"tokens_limit":          free.TokensLimit,
			"tokens_remaining":      remaining,
			"updated_at":            now.UTC(),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "downgrade subscription")
	}
	if res.RowsAffected == 0 {
		result.User = *user
		return result, nil
	}

	for _, keyType := range poolKeyTypes {
		if err := s.keys.Release(ctx, tx, userID, keyType); err != nil {
			return nil, err
		}
	}

	fresh, err := loadUser(tx, userID)
	if err != nil {
		return nil, err
	}
	result.User = *fresh
	result.Changed = true
	return result, nil
}

// ResetTokens starts a new allowance window when the previous one has passed.
func (s *service) ResetTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	res := tx.Model(&models.User{}).
		Where("id = ? AND tokens_reset_date IS NOT NULL AND tokens_reset_date <= ?", userID, now).
		Updates(map[string]any{
			"tokens_used":       0,
			"tokens_remaining":  gorm.Expr("tokens_limit"),
			"tokens_reset_date": now.Add(plans.Period),
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reset tokens")
	}
	return res.RowsAffected == 1, nil
}

// FindExpiring lists pro and ultra users whose end date falls in [now, now+days].
func (s *service) FindExpiring(ctx context.Context, now time.Time, days int) ([]models.User, error) {
	if days < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "days must not be negative")
	}
	now = now.UTC()
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("subscription IN ?", enums.ExpiryTracked()).
		Where("subscription_end_date >= ? AND subscription_end_date <= ?", now, now.AddDate(0, 0, days)).
		Where("is_active = ?", true).
		Order("subscription_end_date ASC").
		Limit(s.batchCap).
		Find(&users).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find expiring subscriptions")
	}
	return users, nil
}

// FindExpired lists pro and ultra users whose end date is before now.
func (s *service) FindExpired(ctx context.Context, now time.Time) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("subscription IN ?", enums.ExpiryTracked()).
		Where("subscription_end_date < ?", now.UTC()).
		Order("subscription_end_date ASC").
		Limit(s.batchCap).
		Find(&users).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find expired subscriptions")
	}
	return users, nil
}

func (s *service) FindTokenResetDue(ctx context.Context, now time.Time) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("tokens_reset_date IS NOT NULL AND tokens_reset_date <= ?", now.UTC()).
		Order("tokens_reset_date ASC").
		Limit(s.batchCap).
		Find(&users).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find token resets")
	}
	return users, nil
}

var poolKeyTypes = []enums.KeyType{enums.KeyTypeGLM, enums.KeyTypeBytez, enums.KeyTypeOpenRouter}

func loadUser(tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := tx.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &user, nil
}

func expiredAt(user *models.User, now time.Time) bool {
	return user.SubscriptionEndDate != nil && user.SubscriptionEndDate.Before(now)
}
