package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/componentry-backend/pkg/config"
	"github.com/angelmondragon/componentry-backend/pkg/db/models"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	DeadLetterTx(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher sends one message and waits for the server ack.
type topicPublisher interface {
	PublishSync(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type RelayParams struct {
	Config    *config.OutboxConfig
	Logger    *logger.Logger
	DB        txRunner
	Broker    pinger
	Store     outboxStore
	DLQ       deadLetters
	Registry  resolver
	Publisher topicPublisher
	Metrics   *metrics.OutboxMetrics
}

type pinger interface {
	Ping(context.Context) error
}

// Relay moves committed outbox rows onto Pub/Sub. Rows are claimed with
// SKIP LOCKED inside one transaction per batch, so several relays can run.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      pinger
	store       outboxStore
	dlq         deadLetters
	registry    resolver
	publisher   topicPublisher
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      func(time.Duration) time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("outbox config is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case p.Store == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Publisher == nil:
		return nil, errors.New("publisher is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		store:       p.Store,
		dlq:         p.DLQ,
		registry:    p.Registry,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
		jitter:      withJitter,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	return r, nil
}

func (r *Relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.broker} {
		if err := dep.Ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", name), "relay dependency unavailable", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		claimed, err := r.drainBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case claimed > 0:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}
		if err := sleepCtx(ctx, r.jitter(wait)); err != nil {
			return err
		}
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

func (v verdict) String() string {
	switch v {
	case verdictPublished:
		return "published"
	case verdictRetry:
		return "retry"
	default:
		return "dead_letter"
	}
}

type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

// drainBatch claims up to batchSize rows and settles each one in the same
// transaction. A publish failure never aborts the rest of the batch.
func (r *Relay) drainBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		if claimed > 0 {
			r.metrics.Batch(claimed)
		}
		for _, row := range rows {
			d := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, d); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	topic := resolved.Descriptor.Topic

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if _, err := r.publisher.PublishSync(publishCtx, topic, buildMessage(row, resolved)); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err}
		}
		if row.AttemptCount+1 >= r.maxAttempts {
			return delivery{
				verdict: verdictDeadLetter,
				reason:  enums.OutboxDLQReasonMaxAttempts,
				topic:   topic,
				err:     fmt.Errorf("max publish attempts reached: %w", err),
			}
		}
		return delivery{verdict: verdictRetry, topic: topic, err: err}
	}
	return delivery{verdict: verdictPublished, topic: topic}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, d delivery) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
		"topic":          d.topic,
		"outcome":        d.verdict.String(),
	})
	r.metrics.Relayed(string(row.EventType), d.verdict.String())

	switch d.verdict {
	case verdictPublished:
		if err := r.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(logCtx, "outbox event published")
	case verdictRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed; will retry")
		if err := r.store.MarkFailedTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	case verdictDeadLetter:
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{"error": d.err.Error(), "error_reason": d.reason}), "outbox event dead-lettered")
		if err := r.dlq.DeadLetterTx(tx, row, d.reason, d.err); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := r.store.MarkTerminalTx(tx, row.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}

// buildMessage publishes the stored envelope verbatim. Consumers route on the
// attributes without decoding the body.
func buildMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"event_version":  strconv.Itoa(resolved.Envelope.Version),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		attrs["actor_id"] = actor.UserID.String()
		if actor.Role != "" {
			attrs["actor_role"] = actor.Role
		}
	}
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}
