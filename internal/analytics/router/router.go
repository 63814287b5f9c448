package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/componentry-backend/internal/analytics/types"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertRevenue(ctx context.Context, rows ...types.RevenueEventRow) error
}

// rowBuilder maps one decoded event to its revenue row.
type rowBuilder[T any] func(envelope types.Envelope, event *T) (types.RevenueEventRow, error)

type route func(ctx context.Context, envelope types.Envelope) error

// Router turns revenue-bearing outbox events into BigQuery rows.
type Router struct {
	routes map[enums.OutboxEventType]route
	writer Writer
	logg   *logger.Logger
}

func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	r := &Router{writer: writer, logg: logg}
	r.routes = map[enums.OutboxEventType]route{
		enums.EventSubscriptionActivated: revenueRoute(r, subscriptionRow),
		enums.EventPurchaseCompleted:     revenueRoute(r, purchaseRow),
		enums.EventPurchaseRefunded:      revenueRoute(r, refundRow),
	}
	return r, nil
}

func revenueRoute[T any](r *Router, build rowBuilder[T]) route {
	return func(ctx context.Context, envelope types.Envelope) error {
		event := new(T)
		if err := json.Unmarshal(envelope.Payload, event); err != nil {
			return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
		}
		row, err := build(envelope, event)
		if err != nil {
			return err
		}
		return r.insert(ctx, row)
	}
}

// Supports reports whether the router has a handler for eventType.
func (r *Router) Supports(eventType enums.OutboxEventType) bool {
	_, ok := r.routes[eventType]
	return ok
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	handle, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	return handle(ctx, envelope)
}

func (r *Router) insert(ctx context.Context, row types.RevenueEventRow) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_type": row.EventType,
		"user_id":    row.UserID,
		"amount":     row.Amount,
	})
	if err := r.writer.InsertRevenue(ctx, row); err != nil {
		r.logg.Error(ctx, "revenue insert failed", err)
		return err
	}
	r.logg.Debug(ctx, "revenue row inserted")
	return nil
}
