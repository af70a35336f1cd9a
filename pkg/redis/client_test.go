package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func TestFixedWindowAllowCountsPerWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	now := time.Date(2026, 3, 15, 10, 0, 5, 0, time.UTC)
	client := &Client{cmd: fake, now: func() time.Time { return now }}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:u1", 2, time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, allowed, "hit %d", i+1)
		require.Equal(t, int64(i+1), count)
	}
	require.Len(t, fake.ttls, 1, "expiry is set once per window key")

	now = now.Add(time.Minute)
	allowed, count, err := client.FixedWindowAllow(ctx, "checkout:u1", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(1), count)
	require.Len(t, fake.ttls, 2)
}

func TestSetNXWinsOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.IdempotencyKey("webhook:payments", "evt_1")

	won, err := client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.True(t, won)
	won, err = client.SetNX(ctx, key, "1", time.Hour)
	require.NoError(t, err)
	require.False(t, won)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestDeleteIfValueChecksOwner(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}
	fake.data["bz:lock:cron"] = "worker-b"

	deleted, err := client.DeleteIfValue(ctx, "bz:lock:cron", "worker-a")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, "worker-b", fake.data["bz:lock:cron"])

	deleted, err = client.DeleteIfValue(ctx, "bz:lock:cron", "worker-b")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NotContains(t, fake.data, "bz:lock:cron")
}

func TestKeysUsePrefix(t *testing.T) {
	client := &Client{}
	require.Equal(t, "bz:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "bz:idempotency:scope", client.IdempotencyKey("scope", " "))
	require.Equal(t, "bz:rate_limit:scope:42", client.RateLimitKey("scope", 42))

	staging := &Client{prefix: "bz-staging"}
	require.Equal(t, "bz-staging:lock:cron-worker", staging.LockKey("cron-worker"))
}

func TestBuildOptions(t *testing.T) {
	_, err := buildOptions(config.RedisConfig{})
	require.Error(t, err)

	opts, err := buildOptions(config.RedisConfig{URL: "redis://:secret@cache:6380/3", PoolSize: 20, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 20, opts.PoolSize)
	require.Equal(t, 2*time.Second, opts.ReadTimeout)

	opts, err = buildOptions(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 1, opts.DB)
}

func TestDisconnectedClient(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.DeleteIfValue(context.Background(), "k", "v")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

type fakeCommands struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	var n int64
	fmt.Sscan(f.data[key], &n)
	n++
	f.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.ttls[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval only understands the release script.
func (f *fakeCommands) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if f.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
