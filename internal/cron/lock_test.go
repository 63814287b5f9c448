package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != value {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", time.Minute)
	assert.Error(t, err)

	lock, err := NewRedisLock(&memoryLockStore{}, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}

func TestRedisLockExclusive(t *testing.T) {
	store := &memoryLockStore{}
	lock, err := NewRedisLock(store, "cmp:lock:cycle", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	require.NoError(t, release(ctx))
	assert.Empty(t, store.keys)

	_, ok, err = lock.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseLeavesNewHolder(t *testing.T) {
	store := &memoryLockStore{}
	lock, err := NewRedisLock(store, "cmp:lock:cycle", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	release, ok, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate TTL expiry followed by another instance taking the key.
	store.keys["cmp:lock:cycle"] = "other-instance"

	require.NoError(t, release(ctx))
	assert.Equal(t, "other-instance", store.keys["cmp:lock:cycle"])
}

func TestRedisLockStoreError(t *testing.T) {
	lock, err := NewRedisLock(&memoryLockStore{err: errors.New("down")}, "k", time.Minute)
	require.NoError(t, err)

	release, ok, err := lock.TryAcquire(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}
