package stripe

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// Event types that complete or close a featured purchase.
const (
	eventCheckoutCompleted     = stripe.EventTypeCheckoutSessionCompleted
	eventAsyncPaymentSucceeded = stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded
	eventAsyncPaymentFailed    = stripe.EventTypeCheckoutSessionAsyncPaymentFailed
	eventCheckoutExpired       = stripe.EventTypeCheckoutSessionExpired
)

// webhookEvent is a verified Stripe event narrowed to the shapes this
// processor acts on. Every value is checkoutCompleted, checkoutFailed or
// ignoredEvent.
type webhookEvent interface {
	eventType() string
}

// checkoutCompleted is a paid checkout session for featured placement.
type checkoutCompleted struct {
	Type          string
	EventID       string
	Created       time.Time
	SessionID     string
	EmployerID    string
	JobID         string
	Tier          int
	CustomerEmail string
}

func (e checkoutCompleted) eventType() string { return e.Type }

// checkoutFailed is a featured checkout session that will never be paid.
type checkoutFailed struct {
	Type      string
	EventID   string
	SessionID string
}

func (e checkoutFailed) eventType() string { return e.Type }

// ignoredEvent is an authentic event that needs no action.
type ignoredEvent struct {
	Type   string
	Reason string
}

func (e ignoredEvent) eventType() string { return e.Type }

// parseEvent validates the event shape before any field is trusted.
// Malformed completions return ErrInvalidWebhookPayload as cause.
func parseEvent(event stripe.Event) (webhookEvent, error) {
	eventType := string(event.Type)
	switch event.Type {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded, eventAsyncPaymentFailed, eventCheckoutExpired:
	default:
		return ignoredEvent{Type: eventType, Reason: "unhandled event type"}, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data object", event.ID)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("checkout session id missing")
	}

	if session.Metadata[metadataType] != featured.PurchaseTypeFeatured {
		return ignoredEvent{Type: eventType, Reason: "not a featured purchase"}, nil
	}

	if event.Type == eventAsyncPaymentFailed || event.Type == eventCheckoutExpired {
		return checkoutFailed{Type: eventType, EventID: event.ID, SessionID: session.ID}, nil
	}

	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
	default:
		return ignoredEvent{Type: eventType, Reason: "payment not completed"}, nil
	}

	jobID := strings.TrimSpace(session.Metadata[metadataJobID])
	if jobID == "" {
		return nil, fmt.Errorf("session %s: job_id metadata missing", session.ID)
	}

	var tier int
	if raw := strings.TrimSpace(session.Metadata[metadataTier]); raw != "" {
		t, err := strconv.Atoi(raw)
		if err != nil || t < 0 {
			return nil, fmt.Errorf("session %s: invalid tier %q", session.ID, raw)
		}
		tier = t
	}

	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}

	return checkoutCompleted{
		Type:          eventType,
		EventID:       event.ID,
		Created:       time.Unix(event.Created, 0).UTC(),
		SessionID:     session.ID,
		EmployerID:    strings.TrimSpace(session.Metadata[metadataEmployerID]),
		JobID:         jobID,
		Tier:          tier,
		CustomerEmail: email,
	}, nil
}
