// Package idempotency remembers which domain events a consumer has already
// handled so Pub/Sub redeliveries become no-ops.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const scope = "event"

// Store is satisfied by *redis.Client.
type Store interface {
	DedupKey(scope string, parts ...string) string
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Manager keeps one marker per (consumer, event) so two consumers of the same
// subscription fan-out never suppress each other.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether eventID was seen before and marks it
// otherwise.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	return m.CheckAndMarkKey(ctx, consumer, eventID.String())
}

// CheckAndMarkKey is CheckAndMarkProcessed for opaque identifiers.
func (m *Manager) CheckAndMarkKey(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	first, err := m.store.MarkOnce(ctx, key, m.ttl)
	if err != nil {
		return false, err
	}
	return !first, nil
}

// Delete releases the marker after a failed handler so the redelivery runs.
func (m *Manager) Delete(ctx context.Context, consumer string, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case strings.TrimSpace(id) == "":
		return "", errors.New("event id is required")
	}
	return m.store.DedupKey(scope, consumer, id), nil
}
