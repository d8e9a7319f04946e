package billing

import (
	"context"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// DefaultFeaturedDuration is granted when a completed checkout carries no tier.
const DefaultFeaturedDuration = 7 * 24 * time.Hour

// RateLimiter guards checkout creation; *ratelimit.Limiter implements it.
type RateLimiter = ratelimit.Checker

// Config defines the standard configuration all providers should accept
type Config struct {
	// Store is the store of record: jobs, purchases, fulfillment and outbox.
	Store featured.Store

	// RateLimiter guards checkout creation. If nil, checkout is not limited.
	RateLimiter RateLimiter

	// CheckoutLimit and CheckoutWindow bound session creation per caller
	// (defaults: 5 per minute).
	CheckoutLimit  int
	CheckoutWindow time.Duration

	// DefaultDuration is the featured extension per purchase (default 7 days).
	DefaultDuration time.Duration

	// TierDurations maps a tier carried in checkout metadata to its extension.
	// Tiers missing from the map get DefaultDuration.
	TierDurations map[int]time.Duration

	// Events receives StateChanged events after fulfillment commits.
	// If nil, events stay in the outbox for a poller to deliver.
	Events featured.EventSink

	// WebhookCallback is invoked after a fulfillment was durably applied,
	// e.g. to notify the employer. Errors are logged and never fail the webhook.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error

	// Logger is an optional structured logger. Defaults to featured.NoopLogger.
	Logger featured.Logger

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// WithDefaults returns a copy of c with every optional field populated.
func (c Config) WithDefaults() Config {
	if c.CheckoutLimit <= 0 {
		c.CheckoutLimit = 5
	}
	if c.CheckoutWindow <= 0 {
		c.CheckoutWindow = time.Minute
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = DefaultFeaturedDuration
	}
	if c.Logger == nil {
		c.Logger = &featured.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// DurationForTier returns the featured extension granted for tier.
func (c Config) DurationForTier(tier int) time.Duration {
	if d, ok := c.TierDurations[tier]; ok && d > 0 {
		return d
	}
	if c.DefaultDuration > 0 {
		return c.DefaultDuration
	}
	return DefaultFeaturedDuration
}
