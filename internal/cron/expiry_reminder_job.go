package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/componentry-backend/internal/notifications"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

const (
	defaultReminderDays     = 3
	defaultReminderDedupTTL = 10 * 24 * time.Hour
	reminderDedupScope      = "expiry-reminder"
)

type expiringFinder interface {
	FindExpiring(ctx context.Context, now time.Time, days int) ([]models.User, error)
}

type onceMarker interface {
	DedupKey(scope string, parts ...string) string
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type ExpiryReminderJobParams struct {
	Logger        *logger.Logger
	Subscriptions expiringFinder
	Sender        email.Sender
	Dedup         onceMarker
	DaysBefore    int
	DedupTTL      time.Duration
	Now           func() time.Time
}

func NewExpiryReminderJob(params ExpiryReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription finder required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("dedup store required")
	}
	days := params.DaysBefore
	if days <= 0 {
		days = defaultReminderDays
	}
	ttl := params.DedupTTL
	if ttl <= 0 {
		ttl = defaultReminderDedupTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &expiryReminderJob{
		logg:   params.Logger,
		finder: params.Subscriptions,
		sender: params.Sender,
		dedup:  params.Dedup,
		days:   days,
		ttl:    ttl,
		now:    now,
	}, nil
}

type expiryReminderJob struct {
	logg   *logger.Logger
	finder expiringFinder
	sender email.Sender
	dedup  onceMarker
	days   int
	ttl    time.Duration
	now    func() time.Time
}

func (j *expiryReminderJob) Name() string { return "subscription-expiry-reminder" }

func (j *expiryReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	users, err := j.finder.FindExpiring(ctx, now, j.days)
	if err != nil {
		return fmt.Errorf("find expiring subscriptions: %w", err)
	}

	var errs error
	sent, skipped := 0, 0
	for i := range users {
		ok, err := j.remind(ctx, &users[i], now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: %w", users[i].ID, err))
			continue
		}
		if ok {
			sent++
		} else {
			skipped++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates":  len(users),
		"sent":        sent,
		"deduped":     skipped,
		"failed":      len(multierr.Errors(errs)),
		"days_before": j.days,
	}), "expiry reminders complete")
	return errs
}

// remind reports false when this (user, end date) pair was already reminded.
func (j *expiryReminderJob) remind(ctx context.Context, user *models.User, now time.Time) (bool, error) {
	if user.SubscriptionEndDate == nil {
		return false, nil
	}
	endDate := user.SubscriptionEndDate.UTC()
	key := j.dedup.DedupKey(reminderDedupScope, user.ID.String(), endDate.Format("2006-01-02"))
	first, err := j.dedup.MarkOnce(ctx, key, j.ttl)
	if err != nil {
		return false, fmt.Errorf("mark reminder: %w", err)
	}
	if !first {
		return false, nil
	}
	msg := notifications.ExpiryReminder(user.Email, user.Name, user.Subscription, endDate, now)
	if err := j.sender.Send(ctx, msg); err != nil {
		if derr := j.dedup.Del(ctx, key); derr != nil {
			err = multierr.Append(err, derr)
		}
		return false, fmt.Errorf("send reminder: %w", err)
	}
	return true, nil
}
