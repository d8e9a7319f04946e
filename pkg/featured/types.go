package featured

import "time"

// PurchaseType identifies what a purchase buys. Only featured placement exists today.
const PurchaseTypeFeatured = "featured"

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "pending"
	PurchaseStatusPaid    PurchaseStatus = "paid"
	// PurchaseStatusFailed marks a session that expired or whose delayed payment was declined.
	PurchaseStatusFailed PurchaseStatus = "failed"
)

// Purchase records one payment session for one job. ExternalSessionID is unique.
type Purchase struct {
	ID                string
	EmployerID        string
	JobID             string
	Type              string
	ExternalSessionID string
	Status            PurchaseStatus
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// FeaturedRecord holds the paid placement window of a job.
// FeaturedUntil never moves backwards.
type FeaturedRecord struct {
	JobID         string
	FeaturedUntil time.Time
	Tier          int
	UpdatedAt     time.Time
}

// Job is the read-only view of a job posting owned by the jobs subsystem.
// IsFeatured and FeaturedUntil are derived by the Resolver.
type Job struct {
	ID          string
	EmployerID  string
	Title       string
	CompanyName string
	Location    string
	CreatedAt   time.Time
	IsActive    bool
	IsVerified  bool

	// FeaturedOverride, when set, wins over the paid window.
	FeaturedOverride *bool

	IsFeatured    bool
	FeaturedUntil *time.Time
}

// StateChange reasons.
const (
	ReasonFulfilled = "fulfilled"
	ReasonReindex   = "reindex"
)

// StateChanged is emitted whenever the featured state of a job changes durably.
// It is persisted in the same transaction as the change (outbox) and delivered
// at least once to downstream consumers.
type StateChanged struct {
	ID            string
	JobID         string
	Reason        string
	FeaturedUntil time.Time
	CreatedAt     time.Time
	Attempts      int
	LastError     string
}

// FulfillmentRequest describes one completed checkout to apply.
type FulfillmentRequest struct {
	ExternalSessionID string
	EmployerID        string
	JobID             string
	// Tier is 0 when the event carried none; the stored tier is then kept.
	Tier     int
	Duration time.Duration
	Now      time.Time
	// EventID is the payment processor's event id, kept for tracing only.
	EventID string
}

// FulfillmentResult is the outcome of ApplyFulfillment.
type FulfillmentResult struct {
	Purchase Purchase
	Record   FeaturedRecord
	// Applied is false when the session had already been fulfilled.
	Applied bool
	// Event is the outbox event written with the transition. Nil when not Applied.
	Event *StateChanged
}
