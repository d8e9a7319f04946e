package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// FallbackStore serves increments from a distributed primary and switches to
// a local store when the primary fails or its circuit is open.
type FallbackStore struct {
	primary Store
	local   Store
	breaker CircuitBreaker
	logger  featured.Logger
	metrics featured.Metrics
}

// FallbackConfig configures a FallbackStore.
type FallbackConfig struct {
	// FailureThreshold consecutive primary errors open the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing. Default 30s.
	ResetTimeout time.Duration
	Logger       featured.Logger
	Metrics      featured.Metrics
}

// NewFallbackStore wraps primary with a circuit breaker and local fallback.
// A nil local gets a fresh MemoryStore.
func NewFallbackStore(primary, local Store, config FallbackConfig) *FallbackStore {
	if local == nil {
		local = NewMemoryStore()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &featured.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &featured.NoopMetrics{}
	}

	s := &FallbackStore{
		primary: primary,
		local:   local,
		logger:  config.Logger,
		metrics: config.Metrics,
	}
	s.breaker = NewDefaultCircuitBreaker(config.FailureThreshold, config.ResetTimeout, func(state CircuitBreakerState) {
		s.metrics.RecordCircuitBreakerStateChange(string(state))
		s.logger.Warn("rate limit store circuit changed state", featured.Field{Key: "state", Value: string(state)})
	})
	return s
}

// Increment implements Store.
func (s *FallbackStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := s.breaker.Execute(ctx, func() error {
		var err error
		count, err = s.primary.Increment(ctx, key, ttl)
		return err
	})
	if err == nil {
		return count, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	reason := "primary_error"
	if errors.Is(err, ErrCircuitOpen) {
		reason = "circuit_open"
	} else {
		s.logger.Warn("distributed rate limit store failed, using local counters",
			featured.Field{Key: "key", Value: key},
			featured.Field{Key: "error", Value: err},
		)
	}
	s.metrics.RecordRateLimitFallback(reason)
	return s.local.Increment(ctx, key, ttl)
}

// State returns the primary's circuit state.
func (s *FallbackStore) State() CircuitBreakerState {
	return s.breaker.State()
}
