// Package app assembles the featured-placement service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/gofeatured/internal/config"
	"github.com/mihaimyh/gofeatured/pkg/api"
	"github.com/mihaimyh/gofeatured/pkg/billing"
	billingprom "github.com/mihaimyh/gofeatured/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/gofeatured/pkg/billing/stripe"
	"github.com/mihaimyh/gofeatured/pkg/fanout"
	"github.com/mihaimyh/gofeatured/pkg/featured"
	zerologger "github.com/mihaimyh/gofeatured/pkg/featured/logger/zerolog"
	featuredprom "github.com/mihaimyh/gofeatured/pkg/featured/metrics/prometheus"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
	"github.com/mihaimyh/gofeatured/pkg/search"
	"github.com/mihaimyh/gofeatured/pkg/search/meilisearch"
	"github.com/mihaimyh/gofeatured/storage/memory"
	"github.com/mihaimyh/gofeatured/storage/postgres"
	"github.com/mihaimyh/gofeatured/storage/redis"
)

// pinger is implemented by backends that can report readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

// Container holds the assembled application components.
type Container struct {
	config *config.Config
	logger zerolog.Logger
	log    featured.Logger

	store      featured.Store
	limiter    *ratelimit.Limiter
	billing    *stripe.Provider
	search     *search.Synchronizer
	dispatcher *fanout.Dispatcher
	handler    *api.Handler
	registry   *prometheus.Registry

	checks  map[string]pinger
	closers []func()
}

// NewContainer builds every component. Backends with no configured URL fall
// back to in-process implementations.
func NewContainer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	c := &Container{
		config:   cfg,
		logger:   logger,
		log:      zerologger.NewLogger(logger),
		registry: prometheus.NewRegistry(),
		checks:   make(map[string]pinger),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	featuredMetrics := featuredprom.NewMetrics(c.registry, cfg.MetricsNamespace)
	billingMetrics := billingprom.NewMetrics(c.registry, cfg.MetricsNamespace)

	steps := []func() error{
		func() error { return c.initStore(ctx) },
		func() error { return c.initLimiter(featuredMetrics) },
		func() error { return c.initSearch(featuredMetrics) },
		func() error { return c.initDispatcher(featuredMetrics) },
		func() error { return c.initBilling(billingMetrics) },
		c.initHandler,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	if c.config.DatabaseURL == "" {
		c.logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		c.store = memory.New()
		return nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.ConnectionString = c.config.DatabaseURL
	if c.config.DBMaxConns > 0 {
		pgCfg.MaxConns = int32(c.config.DBMaxConns)
	}
	pg, err := postgres.New(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	c.store = pg
	c.checks["postgres"] = pg
	c.closers = append(c.closers, pg.Close)
	return nil
}

func (c *Container) initLimiter(metrics featured.Metrics) error {
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if c.config.RedisURL != "" {
		rdb, err := redis.NewFromURL(c.config.RedisURL, redis.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
		c.checks["redis"] = rdb
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		store = ratelimit.NewFallbackStore(rdb, nil, ratelimit.FallbackConfig{
			Logger:  c.log,
			Metrics: metrics,
		})
	}
	c.limiter = ratelimit.New(store, ratelimit.WithMetrics(metrics))
	return nil
}

func (c *Container) initSearch(metrics featured.Metrics) error {
	var index search.Index
	if c.config.MeiliHost != "" {
		meiliCfg := meilisearch.DefaultConfig()
		meiliCfg.Host = c.config.MeiliHost
		meiliCfg.APIKey = c.config.MeiliAPIKey
		meiliCfg.IndexUID = c.config.MeiliIndex
		idx, err := meilisearch.New(meiliCfg)
		if err != nil {
			return fmt.Errorf("failed to create search index: %w", err)
		}
		c.checks["meilisearch"] = idx
		index = idx
	}

	c.search = search.NewSynchronizer(index, c.store, featured.NewResolver(c.store),
		search.WithLogger(c.log),
		search.WithMetrics(metrics),
	)
	return nil
}

func (c *Container) initDispatcher(metrics featured.Metrics) error {
	d, err := fanout.New(fanout.Config{
		Outbox:      c.store,
		Syncer:      c.search,
		Interval:    c.config.FanoutInterval,
		MaxAttempts: c.config.FanoutMaxAttempts,
		Logger:      c.log,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	c.dispatcher = d
	return nil
}

func (c *Container) initBilling(metrics billing.Metrics) error {
	p, err := stripe.NewProvider(stripe.Config{
		Config: billing.Config{
			Store:           c.store,
			RateLimiter:     c.limiter,
			CheckoutLimit:   c.config.CheckoutRateLimit,
			CheckoutWindow:  c.config.CheckoutRateWindow,
			DefaultDuration: c.config.FeaturedDuration,
			Events:          c.dispatcher,
			WebhookCallback: c.onFulfilled,
			Logger:          c.log,
			Metrics:         metrics,
		},
		StripeAPIKey:        c.config.StripeSecretKey,
		StripeWebhookSecret: c.config.StripeWebhookSecret,
		PriceCents:          c.config.FeaturedPriceCents,
		Currency:            c.config.FeaturedCurrency,
		BaseURL:             c.config.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create billing provider: %w", err)
	}
	if !p.CheckoutConfigured() {
		c.logger.Warn().Msg("STRIPE_SECRET_KEY not set, checkout disabled")
	}
	if !p.WebhookConfigured() {
		c.logger.Warn().Msg("STRIPE_WEBHOOK_SECRET not set, webhook disabled")
	}
	c.billing = p
	return nil
}

func (c *Container) initHandler() error {
	h, err := api.NewHandler(api.Config{
		Checkout:       c.billing,
		Search:         c.search,
		ReindexSecret:  c.config.ReindexSecret,
		GetPrincipal:   api.FromHeaders(c.config.AuthEmployerHeader, c.config.AuthRoleHeader),
		AllowedOrigins: c.config.AllowedOrigins,
		Logger:         c.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create api handler: %w", err)
	}
	c.handler = h
	return nil
}

func (c *Container) onFulfilled(_ context.Context, event billing.WebhookEvent) error {
	c.logger.Info().
		Str("session_id", event.SessionID).
		Str("job_id", event.JobID).
		Str("employer_id", event.EmployerID).
		Time("featured_until", event.FeaturedUntil).
		Msg("featured placement extended")
	return nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config { return c.config }

// Store returns the store of record.
func (c *Container) Store() featured.Store { return c.store }

// Search returns the search index synchronizer.
func (c *Container) Search() *search.Synchronizer { return c.search }

// Dispatcher returns the state-change fan-out dispatcher.
func (c *Container) Dispatcher() *fanout.Dispatcher { return c.dispatcher }

// Registry returns the Prometheus registry /metrics serves.
func (c *Container) Registry() *prometheus.Registry { return c.registry }

// Ready pings every configured backend.
func (c *Container) Ready(ctx context.Context) error {
	var errs []error
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases backend connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
