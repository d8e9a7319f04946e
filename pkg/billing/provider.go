package billing

import (
	"context"
	"net/http"
	"time"
)

// CheckoutRequest asks for one featured placement payment session.
type CheckoutRequest struct {
	EmployerID string
	JobID      string
	// CustomerEmail prefills the payment page when set.
	CustomerEmail string
	// Origin is the scheme://host the success and cancel URLs are built on.
	Origin string
	// RateKey identifies the caller for rate limiting, see ratelimit.Key.
	RateKey string
}

// CheckoutSession is the created payment session.
type CheckoutSession struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// FulfillmentResult is the outcome of processing one webhook delivery.
type FulfillmentResult struct {
	EventType string
	JobID     string
	// FeaturedUntil is zero when the event was ignored.
	FeaturedUntil time.Time
	// Fulfilled is true when the event was a completed checkout that is now
	// reflected in the store, including safe re-deliveries.
	Fulfilled bool
	// Duplicate is true when the session had already been fulfilled.
	Duplicate bool
	// Failed is true when the event closed a pending purchase as failed.
	Failed bool
}

// Provider is the interface a payment backend implements for featured placement.
type Provider interface {
	// Name returns the provider name (e.g. "stripe")
	Name() string

	// CreateCheckout creates a remote payment session and records a pending purchase.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// Fulfill verifies a raw webhook delivery and applies it idempotently.
	Fulfill(ctx context.Context, payload []byte, signature string) (*FulfillmentResult, error)

	// WebhookHandler returns the HTTP handler that wraps Fulfill.
	WebhookHandler() http.Handler
}
