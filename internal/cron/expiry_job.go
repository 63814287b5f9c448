package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/notifications"
	"github.com/angelmondragon/componentry-backend/internal/subscriptions"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiredDowngrader interface {
	FindExpired(ctx context.Context, now time.Time) ([]models.User, error)
	Downgrade(ctx context.Context, tx *gorm.DB, userID uuid.UUID, now time.Time) (*subscriptions.Downgrade, error)
}

type ExpiryJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions expiredDowngrader
	Outbox        outbox.Emitter
	Audit         audit.Recorder
	Sender        email.Sender
	Now           func() time.Time
}

func NewExpiryJob(params ExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	recorder := params.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &expiryJob{
		logg:   params.Logger,
		db:     params.DB,
		subs:   params.Subscriptions,
		outbox: params.Outbox,
		audit:  recorder,
		sender: params.Sender,
		now:    now,
	}, nil
}

type expiryJob struct {
	logg   *logger.Logger
	db     txRunner
	subs   expiredDowngrader
	outbox outbox.Emitter
	audit  audit.Recorder
	sender email.Sender
	now    func() time.Time
}

func (j *expiryJob) Name() string { return "subscription-expiry" }

func (j *expiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	users, err := j.subs.FindExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("find expired subscriptions: %w", err)
	}

	var errs error
	downgraded := 0
	for i := range users {
		user := users[i]
		userCtx := j.logg.WithUserID(ctx, user.ID.String())
		result, err := j.downgrade(userCtx, user.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: %w", user.ID, err))
			continue
		}
		if !result.Changed {
			continue
		}
		downgraded++
		// The downgrade is committed; a failed notice is only logged.
		msg := notifications.DowngradeNotice(result.User.Email, result.User.Name, result.PreviousPlan)
		if err := j.sender.Send(userCtx, msg); err != nil {
			j.logg.Error(userCtx, "downgrade notice failed", err)
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(users),
		"downgraded": downgraded,
		"failed":     len(multierr.Errors(errs)),
	}), "subscription expiry complete")
	return errs
}

func (j *expiryJob) downgrade(ctx context.Context, userID uuid.UUID, now time.Time) (*subscriptions.Downgrade, error) {
	var result *subscriptions.Downgrade
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = j.subs.Downgrade(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if !result.Changed {
			return nil
		}
		err = j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionExpired,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			Data: payloads.SubscriptionExpiredEvent{
				UserID:       userID,
				Email:        result.User.Email,
				PreviousPlan: result.PreviousPlan,
				ExpiredAt:    now,
			},
			OccurredAt: now,
		})
		if err != nil {
			return err
		}
		metadata := map[string]any{"previous_plan": string(result.PreviousPlan)}
		if result.PreviousEndDate != nil {
			metadata["end_date"] = result.PreviousEndDate.UTC()
		}
		j.audit.RecordTx(ctx, tx, audit.Entry{
			Action:       enums.AuditSubscriptionExpired,
			ResourceType: "user",
			ResourceID:   userID.String(),
			Metadata:     metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
