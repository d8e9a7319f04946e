// Package ratelimit implements fixed-window rate limiting over a pluggable
// counter store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// ErrInvalidWindow is returned for non-positive windows or limits.
var ErrInvalidWindow = errors.New("ratelimit: window and max must be positive")

// Store is an atomic counter backend.
type Store interface {
	// Increment atomically increments key and returns the new count. The first
	// increment of a key sets its expiry to ttl.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Result is the outcome of one Check.
type Result struct {
	OK        bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the time left until the window resets, never negative.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Checker is implemented by *Limiter.
type Checker interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (*Result, error)
}

var _ Checker = (*Limiter)(nil)

// Limiter counts operations per key in fixed windows.
type Limiter struct {
	store   Store
	now     func() time.Time
	metrics featured.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m featured.Metrics) Option {
	return func(l *Limiter) {
		if m != nil {
			l.metrics = m
		}
	}
}

// New creates a Limiter on top of store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		now:     time.Now,
		metrics: &featured.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one operation for key in the current window of the given
// length and reports whether it stays within max.
func (l *Limiter) Check(ctx context.Context, key string, window time.Duration, max int) (*Result, error) {
	if window <= 0 || max <= 0 {
		return nil, ErrInvalidWindow
	}
	start := time.Now()

	windowMs := window.Milliseconds()
	if windowMs == 0 {
		windowMs = 1
	}
	nowMs := l.now().UnixMilli()
	windowStart := (nowMs / windowMs) * windowMs

	count, err := l.store.Increment(ctx, fmt.Sprintf("%s:%d", key, windowStart), time.Duration(windowMs)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	res := &Result{
		OK:        count <= int64(max),
		Limit:     max,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(windowStart + windowMs),
	}
	l.metrics.RecordRateLimitCheck(scopeOf(key), res.OK, time.Since(start))
	return res, nil
}

func scopeOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
