package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gofeatured/pkg/billing"
	"github.com/mihaimyh/gofeatured/pkg/featured"
	"github.com/mihaimyh/gofeatured/pkg/ratelimit"
)

// Checkout session metadata keys read back by the webhook.
const (
	metadataEmployerID = "employer_id"
	metadataJobID      = "job_id"
	metadataType       = "type"
	metadataTier       = "tier"
)

var errOriginRequired = errors.New("origin is required")

// CreateCheckout creates one Stripe Checkout Session for featured placement of
// a job and records a pending purchase keyed by the session id.
//
// If the purchase write fails the session stays valid at Stripe. Fulfillment
// keys on the session id and records the purchase itself, so the orphan is
// reconciled when (if) the employer completes payment.
func (p *Provider) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	if p.sessions == nil {
		p.metrics.RecordCheckout(providerName, "not_configured")
		return nil, billing.ErrProviderNotConfigured
	}
	if req.EmployerID == "" || req.JobID == "" {
		p.metrics.RecordCheckout(providerName, "invalid")
		return nil, featured.ErrInvalidRequest
	}

	if err := p.checkRateLimit(ctx, req); err != nil {
		p.metrics.RecordCheckout(providerName, "rate_limited")
		return nil, err
	}

	job, err := p.store.GetJob(ctx, req.JobID)
	if errors.Is(err, featured.ErrJobNotFound) {
		p.metrics.RecordCheckout(providerName, "not_found")
		return nil, featured.ErrJobNotFound
	}
	if err != nil {
		p.metrics.RecordCheckout(providerName, "error")
		return nil, featured.ErrStorage.WithCause(err)
	}
	if job.EmployerID != req.EmployerID {
		p.metrics.RecordCheckout(providerName, "forbidden")
		return nil, featured.ErrForbidden
	}

	params, err := p.sessionParams(req, job)
	if err != nil {
		p.metrics.RecordCheckout(providerName, "invalid")
		return nil, featured.ErrInvalidRequest.WithCause(err)
	}

	startTime := time.Now()
	session, err := p.sessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, checkoutEndpoint, time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "error")
		p.metrics.RecordCheckout(providerName, "error")
		p.logger.Error("failed to create checkout session",
			featured.Field{Key: "jobId", Value: req.JobID},
			featured.Field{Key: "error", Value: err},
		)
		return nil, billing.ErrProviderAPIError.WithCause(fmt.Errorf("failed to create checkout session: %w", err))
	}
	p.metrics.RecordAPICall(providerName, checkoutEndpoint, "success")

	purchase := &featured.Purchase{
		EmployerID:        req.EmployerID,
		JobID:             req.JobID,
		Type:              featured.PurchaseTypeFeatured,
		ExternalSessionID: session.ID,
		Status:            featured.PurchaseStatusPending,
		CreatedAt:         p.now().UTC(),
	}
	if err := p.store.CreatePurchase(ctx, purchase); err != nil {
		p.metrics.RecordCheckout(providerName, "error")
		p.logger.Error("checkout session created but purchase not recorded",
			featured.Field{Key: "sessionId", Value: session.ID},
			featured.Field{Key: "jobId", Value: req.JobID},
			featured.Field{Key: "error", Value: err},
		)
		return nil, featured.ErrStorage.WithCause(err)
	}

	p.metrics.RecordCheckout(providerName, "created")
	p.logger.Info("checkout session created",
		featured.Field{Key: "sessionId", Value: session.ID},
		featured.Field{Key: "jobId", Value: req.JobID},
		featured.Field{Key: "employerId", Value: req.EmployerID},
	)

	return &billing.CheckoutSession{URL: session.URL, SessionID: session.ID}, nil
}

// checkRateLimit enforces the checkout window. A failing limiter store lets
// the request through; the fallback store already keeps local enforcement.
func (p *Provider) checkRateLimit(ctx context.Context, req billing.CheckoutRequest) error {
	if p.limiter == nil {
		return nil
	}
	key := req.RateKey
	if key == "" {
		key = ratelimit.Key(checkoutScope, "user:"+req.EmployerID, checkoutRoute)
	}

	res, err := p.limiter.Check(ctx, key, p.config.CheckoutWindow, p.config.CheckoutLimit)
	if err != nil {
		p.logger.Warn("checkout rate limit check failed",
			featured.Field{Key: "key", Value: key},
			featured.Field{Key: "error", Value: err},
		)
		return nil
	}
	if !res.OK {
		return featured.ErrRateLimited.WithResetAt(res.ResetAt)
	}
	return nil
}

func (p *Provider) sessionParams(req billing.CheckoutRequest, job *featured.Job) (*stripe.CheckoutSessionCreateParams, error) {
	origin := strings.TrimRight(strings.TrimSpace(req.Origin), "/")
	if origin == "" {
		origin = strings.TrimRight(p.config.BaseURL, "/")
	}
	if origin == "" {
		return nil, errOriginRequired
	}
	if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}

	jobQuery := url.QueryEscape(req.JobID)
	// {CHECKOUT_SESSION_ID} is substituted by Stripe and must stay unescaped.
	successURL := fmt.Sprintf("%s%s?job_id=%s&session_id={CHECKOUT_SESSION_ID}", origin, p.config.SuccessPath, jobQuery)
	cancelURL := fmt.Sprintf("%s%s?job_id=%s", origin, p.config.CancelPath, jobQuery)

	name := p.config.ProductName
	if job.Title != "" {
		name = fmt.Sprintf("%s: %s", p.config.ProductName, job.Title)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(p.config.Currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(p.config.PriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.JobID),
	}

	params.Metadata = map[string]string{
		metadataEmployerID: req.EmployerID,
		metadataJobID:      req.JobID,
		metadataType:       featured.PurchaseTypeFeatured,
	}
	if p.config.CheckoutTier > 0 {
		params.Metadata[metadataTier] = strconv.Itoa(p.config.CheckoutTier)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	return params, nil
}
