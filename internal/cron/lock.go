package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/pkg/instance"
)

// CycleLockName names the lock shared by scheduled cycles and admin triggers.
const CycleLockName = "lifecycle-cycle"

const defaultLockTTL = 30 * time.Minute

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Lock grants exclusive cron runs across instances.
type Lock interface {
	TryAcquire(ctx context.Context) (ReleaseFunc, bool, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock holds a key with a TTL; the value names the holder so an expired
// lock taken over by another instance is never deleted by the old holder.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token func() string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store is required")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	return &RedisLock{
		store: store,
		key:   key,
		ttl:   lockTTL(ttl),
		token: func() string { return instance.GetID() + ":" + uuid.NewString() },
	}, nil
}

func lockTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultLockTTL
	}
	return ttl
}

func (l *RedisLock) TryAcquire(ctx context.Context) (ReleaseFunc, bool, error) {
	holder := l.token()
	won, err := l.store.SetNX(ctx, l.key, holder, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("take %s: %w", l.key, err)
	}
	if !won {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if _, err := l.store.DelIfValue(ctx, l.key, holder); err != nil {
			return fmt.Errorf("give back %s: %w", l.key, err)
		}
		return nil
	}, true, nil
}
