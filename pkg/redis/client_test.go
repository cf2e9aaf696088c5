package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealroom-backend/pkg/config"
)

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, "rl:user:commands:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
	assert.Len(t, mock.expireCalls, 1)
	assert.Equal(t, time.Minute, mock.expireCalls[0].ttl)
}

func TestIncrWithTTLRepairsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.incr["k"] = 4
	client := &Client{store: mock}

	count, err := client.IncrWithTTL(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	require.Len(t, mock.expireCalls, 1)
	assert.Equal(t, "k", mock.expireCalls[0].key)
}

func TestIdempotencyRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("user-1|POST|/api/v1/rooms/r1/offers", "abc")

	set, err := client.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = client.SetNX(ctx, key, "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, client.Set(ctx, key, "record", time.Hour))
	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "record", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDelIfValueOnlyRemovesMatchingOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.data["lock"] = "owner-a"
	client := &Client{store: mock}

	deleted, err := client.DelIfValue(ctx, "lock", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "owner-a", mock.data["lock"])

	deleted, err = client.DelIfValue(ctx, "lock", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, mock.data, "lock")
}

func TestIdempotencyKeySkipsEmptyParts(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "dr:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "dr:idempotency:id", client.IdempotencyKey(" ", "id"))
}

func TestClientWithoutStore(t *testing.T) {
	client := &Client{}
	assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:pw@cache:6380/2",
		PoolSize:    20,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)
}

type mockCmdable struct {
	redis.Scripter
	data        map[string]string
	incr        map[string]int64
	ttls        map[string]time.Duration
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	ttl, ok := m.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// EvalSha emulates the compare-and-delete script.
func (m *mockCmdable) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}
