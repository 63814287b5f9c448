package cron

import (
	"time"

	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/internal/subscriptions"
	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
)

// LifecycleParams carry everything the subscription lifecycle jobs share.
type LifecycleParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Subscriptions subscriptions.Service
	Outbox        outbox.Emitter
	OutboxRepo    outboxRetentionRepo
	Audit         audit.Recorder
	Sender        email.Sender
	Dedup         onceMarker
	Cron          config.CronConfig
	Retention     time.Duration
}

// NewLifecycleRegistry builds the lifecycle jobs. Reminders run before expiry
// so a user expiring today still gets the final notice.
func NewLifecycleRegistry(p LifecycleParams) (*Registry, error) {
	reminder, err := NewExpiryReminderJob(ExpiryReminderJobParams{
		Logger:        p.Logger,
		Subscriptions: p.Subscriptions,
		Sender:        p.Sender,
		Dedup:         p.Dedup,
		DaysBefore:    p.Cron.ReminderDaysBefore,
		DedupTTL:      p.Cron.ReminderDedupTTL,
	})
	if err != nil {
		return nil, err
	}
	expiry, err := NewExpiryJob(ExpiryJobParams{
		Logger:        p.Logger,
		DB:            p.DB,
		Subscriptions: p.Subscriptions,
		Outbox:        p.Outbox,
		Audit:         p.Audit,
		Sender:        p.Sender,
	})
	if err != nil {
		return nil, err
	}
	tokens, err := NewTokenResetJob(TokenResetJobParams{
		Logger:        p.Logger,
		DB:            p.DB,
		Subscriptions: p.Subscriptions,
	})
	if err != nil {
		return nil, err
	}
	retention, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     p.Logger,
		DB:         p.DB,
		Repository: p.OutboxRepo,
		Retention:  p.Retention,
	})
	if err != nil {
		return nil, err
	}
	return NewRegistry(reminder, expiry, tokens, retention)
}
