package billing

import "time"

// WebhookEvent contains information about a successful fulfillment.
// This event is passed to the WebhookCallback after the featured record has
// been durably extended.
type WebhookEvent struct {
	EmployerID string
	JobID      string

	// SessionID is the provider's checkout session id
	SessionID string

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type, e.g. "checkout.session.completed"
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// CustomerEmail is the address collected at checkout, if any
	CustomerEmail string

	FeaturedUntil time.Time
	Tier          int
}
