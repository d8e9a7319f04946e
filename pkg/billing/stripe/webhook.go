package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gofeatured/pkg/billing"
	"github.com/mihaimyh/gofeatured/pkg/billing/internal"
	"github.com/mihaimyh/gofeatured/pkg/featured"
)

var errMethodNotAllowed = &featured.Error{
	Kind:    featured.KindValidation,
	Code:    "METHOD_NOT_ALLOWED",
	Message: "method not allowed",
	Status:  http.StatusMethodNotAllowed,
}

// webhookResponse is the acknowledgement body returned to Stripe.
type webhookResponse struct {
	Received  bool `json:"received"`
	Fulfilled bool `json:"fulfilled,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// Fulfill verifies one webhook delivery and applies it idempotently.
//
// Only a verified, paid checkout completion extends featured state; expired
// or declined sessions close their pending purchase as failed. Re-deliveries of a
// fulfilled session return the current record with Duplicate set. Errors from
// the store are returned as ErrFulfillmentFailed so the caller answers 5xx and
// Stripe retries.
func (p *Provider) Fulfill(ctx context.Context, payload []byte, signature string) (*billing.FulfillmentResult, error) {
	if p.webhookSecret == "" {
		return nil, billing.ErrWebhookNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.config.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_signature")
		return nil, billing.ErrInvalidWebhookSignature.WithCause(err)
	}

	parsed, err := parseEvent(event)
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "error")
		return nil, billing.ErrInvalidWebhookPayload.WithCause(err)
	}

	switch e := parsed.(type) {
	case ignoredEvent:
		p.logger.Debug("ignoring webhook event",
			featured.Field{Key: "eventId", Value: event.ID},
			featured.Field{Key: "eventType", Value: e.Type},
			featured.Field{Key: "reason", Value: e.Reason},
		)
		p.metrics.RecordWebhookEvent(providerName, e.Type, "ignored")
		return &billing.FulfillmentResult{EventType: e.Type}, nil
	case checkoutCompleted:
		return p.fulfillCheckout(ctx, e)
	case checkoutFailed:
		return p.failCheckout(ctx, e)
	default:
		return nil, billing.ErrInvalidWebhookPayload
	}
}

func (p *Provider) fulfillCheckout(ctx context.Context, e checkoutCompleted) (*billing.FulfillmentResult, error) {
	now := p.now().UTC()
	duration := p.config.DurationForTier(e.Tier)

	res, err := p.store.ApplyFulfillment(ctx, featured.FulfillmentRequest{
		ExternalSessionID: e.SessionID,
		EmployerID:        e.EmployerID,
		JobID:             e.JobID,
		Tier:              e.Tier,
		Duration:          duration,
		Now:               now,
		EventID:           e.EventID,
	})
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "persistence")
		p.metrics.RecordWebhookEvent(providerName, e.Type, "error")
		p.logger.Error("failed to apply fulfillment",
			featured.Field{Key: "sessionId", Value: e.SessionID},
			featured.Field{Key: "jobId", Value: e.JobID},
			featured.Field{Key: "error", Value: err},
		)
		return nil, billing.ErrFulfillmentFailed.WithCause(err)
	}

	result := &billing.FulfillmentResult{
		EventType:     e.Type,
		JobID:         res.Record.JobID,
		FeaturedUntil: res.Record.FeaturedUntil,
		Fulfilled:     true,
		Duplicate:     !res.Applied,
	}

	if !res.Applied {
		p.metrics.RecordWebhookEvent(providerName, e.Type, "duplicate")
		p.logger.Info("checkout session already fulfilled",
			featured.Field{Key: "sessionId", Value: e.SessionID},
			featured.Field{Key: "jobId", Value: result.JobID},
		)
		return result, nil
	}

	p.metrics.RecordWebhookEvent(providerName, e.Type, "fulfilled")
	p.metrics.RecordFeaturedExtension(providerName, duration)
	p.logger.Info("featured placement extended",
		featured.Field{Key: "sessionId", Value: e.SessionID},
		featured.Field{Key: "jobId", Value: result.JobID},
		featured.Field{Key: "featuredUntil", Value: result.FeaturedUntil},
	)

	p.afterCommit(ctx, e, res)
	return result, nil
}

// failCheckout closes the pending purchase of a session that will not be paid.
// Featured state is never touched.
func (p *Provider) failCheckout(ctx context.Context, e checkoutFailed) (*billing.FulfillmentResult, error) {
	changed, err := p.store.MarkPurchaseFailed(ctx, e.SessionID)
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "persistence")
		p.metrics.RecordWebhookEvent(providerName, e.Type, "error")
		p.logger.Error("failed to mark purchase failed",
			featured.Field{Key: "sessionId", Value: e.SessionID},
			featured.Field{Key: "error", Value: err},
		)
		return nil, billing.ErrFulfillmentFailed.WithCause(err)
	}

	if !changed {
		p.metrics.RecordWebhookEvent(providerName, e.Type, "ignored")
		p.logger.Debug("no pending purchase to fail",
			featured.Field{Key: "sessionId", Value: e.SessionID},
		)
		return &billing.FulfillmentResult{EventType: e.Type}, nil
	}

	p.metrics.RecordWebhookEvent(providerName, e.Type, "failed")
	p.logger.Info("checkout session closed without payment",
		featured.Field{Key: "sessionId", Value: e.SessionID},
		featured.Field{Key: "eventType", Value: e.Type},
	)
	return &billing.FulfillmentResult{EventType: e.Type, Failed: true}, nil
}

// afterCommit runs downstream hooks for a durably applied fulfillment.
// Nothing here can change the webhook outcome.
func (p *Provider) afterCommit(ctx context.Context, e checkoutCompleted, res *featured.FulfillmentResult) {
	ctx = context.WithoutCancel(ctx)

	if p.events != nil && res.Event != nil {
		p.events.Emit(ctx, *res.Event)
	}

	if p.config.WebhookCallback == nil {
		return
	}
	err := p.config.WebhookCallback(ctx, billing.WebhookEvent{
		EmployerID:     res.Purchase.EmployerID,
		JobID:          res.Record.JobID,
		SessionID:      e.SessionID,
		Provider:       providerName,
		EventType:      e.Type,
		EventTimestamp: e.Created,
		CustomerEmail:  e.CustomerEmail,
		FeaturedUntil:  res.Record.FeaturedUntil,
		Tier:           res.Record.Tier,
	})
	if err != nil {
		p.logger.Warn("fulfillment callback failed",
			featured.Field{Key: "sessionId", Value: e.SessionID},
			featured.Field{Key: "error", Value: err},
		)
	}
}

func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, errMethodNotAllowed)
		return
	}
	if !p.WebhookConfigured() {
		writeError(w, billing.ErrWebhookNotConfigured)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			writeError(w, billing.ErrPayloadTooLarge)
		} else {
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
			writeError(w, billing.ErrInvalidWebhookPayload.WithCause(err))
		}
		return
	}

	res, err := p.Fulfill(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, err)
		return
	}
	p.metrics.RecordWebhookProcessingDuration(providerName, res.EventType, time.Since(startTime))

	_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{
		Received:  true,
		Fulfilled: res.Fulfilled,
		Ignored:   !res.Fulfilled && !res.Failed,
	})
}

func writeError(w http.ResponseWriter, err error) {
	_ = internal.WriteJSON(w, featured.StatusOf(err), featured.NewErrorResponse(err))
}
