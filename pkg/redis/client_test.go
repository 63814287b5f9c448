package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/config"
)

// fakeRedis emulates the two Lua scripts by their SHA so the client's
// EvalSha path is exercised without a server.
type fakeRedis struct {
	data   map[string]string
	counts map[string]int64
	ttls   map[string]time.Duration
	evals  int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	switch sha {
	case incrWindowScript.Hash():
		f.counts[keys[0]]++
		if f.counts[keys[0]] == 1 {
			f.ttls[keys[0]] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(f.counts[keys[0]], nil)
	case delIfValueScript.Hash():
		if v, ok := f.data[keys[0]]; ok && v == args[0] {
			delete(f.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT %s", sha))
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected EVAL"))
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestIncrWithTTLSetsWindowOnce(t *testing.T) {
	fake := newFakeRedis()
	client := &Client{store: fake}
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWithTTL(ctx, "cmp:rate:login", 90*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, 90*time.Second, fake.ttls["cmp:rate:login"])
	assert.Equal(t, 3, fake.evals)

	_, err := client.IncrWithTTL(ctx, "k", 0)
	assert.Error(t, err)
}

func TestDelIfValueOnlyDeletesMatchingOwner(t *testing.T) {
	fake := newFakeRedis()
	client := &Client{store: fake}
	ctx := context.Background()
	fake.data["cmp:lock:cycle"] = "owner-a"

	deleted, err := client.DelIfValue(ctx, "cmp:lock:cycle", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Contains(t, fake.data, "cmp:lock:cycle")

	deleted, err = client.DelIfValue(ctx, "cmp:lock:cycle", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, fake.data, "cmp:lock:cycle")
}

func TestMarkOnce(t *testing.T) {
	client := &Client{store: newFakeRedis()}
	ctx := context.Background()
	key := client.DedupKey("reminder", "user-1", "2026-10-21")

	first, err := client.MarkOnce(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := client.MarkOnce(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestKeyLayout(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "cmp:idempotency:POST /api/v1/checkout:abc", client.IdempotencyKey("POST /api/v1/checkout", "abc"))
	assert.Equal(t, "cmp:session:access:jti", client.AccessSessionKey("jti"))
	assert.Equal(t, "cmp:lock:lifecycle-cycle", client.LockKey("lifecycle-cycle"))
	assert.Equal(t, "cmp:dedup:reminder:u1:2026-01-01", client.DedupKey("reminder", "u1", " ", "2026-01-01"))
	assert.Equal(t, "cmp:ratelimit:login:ip:1.2.3.4", client.RateLimitKey("login", "ip", "1.2.3.4"))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = client.DelIfValue(ctx, "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/4", PoolSize: 20, DialTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
