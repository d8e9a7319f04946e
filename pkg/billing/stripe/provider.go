package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gofeatured/pkg/billing"
	"github.com/mihaimyh/gofeatured/pkg/featured"
)

const (
	providerName            = "stripe"
	checkoutEndpoint        = "/v1/checkout/sessions"
	checkoutRoute           = "/api/billing/checkout"
	checkoutScope           = "checkout"
	defaultCurrency         = "usd"
	defaultPriceCents       = 4900
	defaultProductName      = "Featured job listing"
	defaultSuccessPath      = "/billing/featured/success"
	defaultCancelPath       = "/billing/featured/cancel"
	defaultWebhookTolerance = 5 * time.Minute
	maxWebhookBodyBytes     = 256 * 1024
)

// sessionCreator is the part of the Stripe client the broker needs.
type sessionCreator interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	// StripeAPIKey enables checkout creation. Empty leaves checkout unconfigured.
	StripeAPIKey string

	// StripeWebhookSecret enables webhook verification. Empty leaves the webhook unconfigured.
	StripeWebhookSecret string

	// WebhookTolerance is the maximum accepted signature age (default 5m).
	WebhookTolerance time.Duration

	// PriceCents and Currency define the single fixed-price line item.
	PriceCents int64
	Currency   string

	// ProductName is shown on the payment page; the job title is appended.
	ProductName string

	// CheckoutTier is written to session metadata when positive.
	CheckoutTier int

	// BaseURL is used when a checkout request carries no origin.
	BaseURL string

	// SuccessPath and CancelPath are appended to the origin.
	SuccessPath string
	CancelPath  string
}

// Provider implements billing.Provider for Stripe. It is both the checkout
// session broker and the webhook fulfillment processor.
type Provider struct {
	config        Config
	store         featured.Store
	sessions      sessionCreator
	webhookSecret string
	limiter       billing.RateLimiter
	events        featured.EventSink
	logger        featured.Logger
	metrics       billing.Metrics
	now           func() time.Time
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider. Missing Stripe keys do
// not fail construction; the affected operation reports ErrProviderNotConfigured
// or ErrWebhookNotConfigured instead.
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, errors.New("stripe: store is required")
	}
	config.Config = config.Config.WithDefaults()

	if config.PriceCents <= 0 {
		config.PriceCents = defaultPriceCents
	}
	if config.Currency == "" {
		config.Currency = defaultCurrency
	}
	if config.ProductName == "" {
		config.ProductName = defaultProductName
	}
	if config.SuccessPath == "" {
		config.SuccessPath = defaultSuccessPath
	}
	if config.CancelPath == "" {
		config.CancelPath = defaultCancelPath
	}
	if config.WebhookTolerance <= 0 {
		config.WebhookTolerance = defaultWebhookTolerance
	}

	p := &Provider{
		config:        config,
		store:         config.Store,
		webhookSecret: strings.TrimSpace(config.StripeWebhookSecret),
		limiter:       config.RateLimiter,
		events:        config.Events,
		logger:        config.Logger,
		metrics:       config.Metrics,
		now:           config.Now,
	}

	if apiKey := strings.TrimSpace(config.StripeAPIKey); apiKey != "" {
		p.sessions = stripe.NewClient(apiKey).V1CheckoutSessions
	}

	return p, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// CheckoutConfigured reports whether checkout sessions can be created.
func (p *Provider) CheckoutConfigured() bool {
	return p.sessions != nil
}

// WebhookConfigured reports whether webhooks can be verified.
func (p *Provider) WebhookConfigured() bool {
	return p.webhookSecret != ""
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}
