package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls int
}

func (c *countingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	c.calls++
	return int64(c.calls), nil
}

func TestFallbackStore_UsesPrimaryWhenHealthy(t *testing.T) {
	primary := &countingStore{}
	local := &countingStore{}
	s := NewFallbackStore(primary, local, FallbackConfig{})

	n, err := s.Increment(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, local.calls)
}

func TestFallbackStore_FallsBackAndOpensCircuit(t *testing.T) {
	primary := &failingStore{err: errors.New("connection refused")}
	s := NewFallbackStore(primary, nil, FallbackConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	limiter := New(s)
	ctx := context.Background()

	// enforcement continues locally while the primary is down
	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "checkout:ip:1:/", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, res.OK)
	}
	res, err := limiter.Check(ctx, "checkout:ip:1:/", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.OK)

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 2, primary.calls, "open circuit stops calling the primary")
}

func TestFallbackStore_ContextCanceled(t *testing.T) {
	s := NewFallbackStore(&failingStore{err: errors.New("down")}, nil, FallbackConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Increment(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
