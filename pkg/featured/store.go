package featured

import (
	"context"
	"time"
)

// JobReader reads jobs from the jobs subsystem.
type JobReader interface {
	// GetJob returns ErrJobNotFound when the job does not exist.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListActiveJobs pages through active jobs ordered by id, starting after afterID.
	ListActiveJobs(ctx context.Context, afterID string, limit int) ([]Job, error)
}

// FeaturedReader performs the bulk featured lookup used by the Resolver.
type FeaturedReader interface {
	// ActiveFeatured returns the records with FeaturedUntil > now for the given
	// job ids, keyed by job id. Jobs without an active record are absent.
	ActiveFeatured(ctx context.Context, jobIDs []string, now time.Time) (map[string]FeaturedRecord, error)
}

// PurchaseStore persists purchases created at checkout.
type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p *Purchase) error

	// GetPurchaseBySession returns ErrPurchaseNotFound when no row matches.
	GetPurchaseBySession(ctx context.Context, externalSessionID string) (*Purchase, error)
}

// FulfillmentStore applies a completed checkout atomically.
//
// ApplyFulfillment must, in one transaction keyed by ExternalSessionID:
// create the purchase from the request when missing, return the current
// record with Applied=false when it is already paid, otherwise mark it paid,
// extend the featured record to max(existing, Now+Duration), and append a
// StateChanged outbox event.
type FulfillmentStore interface {
	ApplyFulfillment(ctx context.Context, req FulfillmentRequest) (*FulfillmentResult, error)

	// MarkPurchaseFailed moves a pending purchase to failed and reports
	// whether it did. Paid, already failed and unknown sessions are left alone.
	MarkPurchaseFailed(ctx context.Context, externalSessionID string) (bool, error)
}

// OutboxStore is the durable queue of StateChanged events.
type OutboxStore interface {
	// PendingEvents returns undelivered events with fewer than maxAttempts attempts, oldest first.
	PendingEvents(ctx context.Context, limit, maxAttempts int) ([]StateChanged, error)
	MarkEventDelivered(ctx context.Context, eventID string, at time.Time) error
	MarkEventFailed(ctx context.Context, eventID string, reason string) error
}

// Store is the full store of record.
type Store interface {
	JobReader
	FeaturedReader
	PurchaseStore
	FulfillmentStore
	OutboxStore
}

// EventSink receives StateChanged events after they were committed.
type EventSink interface {
	Emit(ctx context.Context, event StateChanged)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event StateChanged)

func (f EventSinkFunc) Emit(ctx context.Context, event StateChanged) { f(ctx, event) }
