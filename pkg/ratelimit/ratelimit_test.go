package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(start time.Time) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: start}
	store := NewMemoryStore()
	store.now = clock.Now
	return New(store, WithClock(clock.Now)), clock
}

func TestLimiter_BoundaryAndReset(t *testing.T) {
	ctx := context.Background()
	window := time.Minute
	max := 5
	start := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	limiter, clock := newTestLimiter(start)
	key := Key("checkout", "user:emp-1", "/api/billing/checkout")

	wantReset := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	for i := 1; i <= max; i++ {
		res, err := limiter.Check(ctx, key, window, max)
		require.NoError(t, err)
		assert.True(t, res.OK, "call %d", i)
		assert.Equal(t, max-i, res.Remaining)
		assert.True(t, wantReset.Equal(res.ResetAt))
	}

	res, err := limiter.Check(ctx, key, window, max)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, wantReset.Equal(res.ResetAt))
	assert.Equal(t, 50*time.Second, res.RetryAfter(clock.Now()))

	// after the boundary a fresh window allows max calls again
	clock.Advance(wantReset.Sub(clock.Now()))
	for i := 1; i <= max; i++ {
		res, err := limiter.Check(ctx, key, window, max)
		require.NoError(t, err)
		assert.True(t, res.OK, "call %d after reset", i)
		assert.True(t, wantReset.Add(window).Equal(res.ResetAt))
	}
	res, err = limiter.Check(ctx, key, window, max)
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestLimiter_RoutesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	a := Key("checkout", "ip:10.0.0.1", "/a")
	b := Key("checkout", "ip:10.0.0.1", "/b")

	res, err := limiter.Check(ctx, a, time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.OK)
	res, err = limiter.Check(ctx, a, time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = limiter.Check(ctx, b, time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestLimiter_InvalidArguments(t *testing.T) {
	limiter, _ := newTestLimiter(time.Now())
	_, err := limiter.Check(context.Background(), "k", 0, 5)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = limiter.Check(context.Background(), "k", time.Second, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

type failingStore struct {
	calls int
	err   error
}

func (f *failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	f.calls++
	return 0, f.err
}

func TestLimiter_StoreError(t *testing.T) {
	limiter := New(&failingStore{err: errors.New("down")})
	_, err := limiter.Check(context.Background(), "k", time.Second, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}

func TestLimiter_ConcurrentChecksNeverExceedMax(t *testing.T) {
	ctx := context.Background()
	limiter := New(NewMemoryStore())

	const max = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, "checkout:ip:1:/", time.Hour, max)
			if err == nil && res.OK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, allowed, max)
	assert.Greater(t, allowed, 0)
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, "checkout", scopeOf("checkout:user:1:/x"))
	assert.Equal(t, "plain", scopeOf("plain"))
}
