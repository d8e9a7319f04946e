package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

var _ ratelimit.Store = (*Storage)(nil)

func setupRedis(t *testing.T) (*Storage, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.KeyPrefix = fmt.Sprintf("gofeatured:test:%d:", time.Now().UnixNano())
	s, err := New(client, cfg)
	require.NoError(t, err)
	return s, client
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), Config{})
	require.NoError(t, err)
	assert.Equal(t, "gofeatured:rl:", s.config.KeyPrefix)
	assert.Equal(t, 250*time.Millisecond, s.config.OperationTimeout)
	_ = s.Close()
}

func TestNewFromURL_Invalid(t *testing.T) {
	_, err := NewFromURL("not-a-url", DefaultConfig())
	assert.Error(t, err)
}

func TestStorage_IncrementSetsExpiryOnce(t *testing.T) {
	s, client := setupRedis(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, "k", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl1, err := client.PTTL(ctx, s.config.KeyPrefix+"k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl1, time.Duration(0))
	assert.LessOrEqual(t, ttl1, 2*time.Second)

	n, err = s.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl2, err := client.PTTL(ctx, s.config.KeyPrefix+"k").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl2, 2*time.Second, "later increments keep the first expiry")
}

func TestStorage_ConcurrentIncrementsAreAtomic(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "shared", time.Minute)
		}()
	}
	wg.Wait()

	n, err := s.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestStorage_WithLimiter(t *testing.T) {
	s, _ := setupRedis(t)
	limiter := ratelimit.New(s)
	ctx := context.Background()
	key := ratelimit.Key("checkout", "user:emp-1", "/api/billing/checkout")

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, key, time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, res.OK)
	}
	res, err := limiter.Check(ctx, key, time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.OK)
}
