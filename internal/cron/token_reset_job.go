package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type tokenResetter interface {
	FindTokenResetDue(ctx context.Context, now time.Time) ([]models.User, error)
	ResetTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (bool, error)
}

type TokenResetJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions tokenResetter
	Now           func() time.Time
}

func NewTokenResetJob(params TokenResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &tokenResetJob{logg: params.Logger, db: params.DB, subs: params.Subscriptions, now: now}, nil
}

type tokenResetJob struct {
	logg *logger.Logger
	db   txRunner
	subs tokenResetter
	now  func() time.Time
}

func (j *tokenResetJob) Name() string { return "token-reset" }

func (j *tokenResetJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	users, err := j.subs.FindTokenResetDue(ctx, now)
	if err != nil {
		return fmt.Errorf("find token resets: %w", err)
	}
	var errs error
	reset := 0
	for i := range users {
		userID := users[i].ID
		var changed bool
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			changed, err = j.subs.ResetTokens(ctx, tx, userID, now)
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		if changed {
			reset++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(users),
		"reset":      reset,
	}), "token reset complete")
	return errs
}
