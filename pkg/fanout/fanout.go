// Package fanout delivers committed featured state changes to downstream
// consumers. Events arrive in-process through Emit and are also polled from
// the outbox, so every event is delivered at least once even across restarts.
package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// Syncer applies the current state of one job downstream.
type Syncer interface {
	SyncJob(ctx context.Context, jobID string) error
}

// Config configures a Dispatcher.
type Config struct {
	Outbox featured.OutboxStore
	Syncer Syncer

	// Interval between outbox polls (default 5s).
	Interval time.Duration

	// BatchSize is the number of outbox events read per poll (default 100).
	BatchSize int

	// MaxAttempts is how many failed deliveries an event gets before the
	// poller gives up on it (default 10).
	MaxAttempts int

	// QueueSize bounds in-process events waiting for delivery (default 256).
	// Emit drops events when full; the poller picks them up later.
	QueueSize int

	// Retries per delivery attempt and the backoff between them
	// (defaults 3, 200ms, 5s).
	Retries        uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger  featured.Logger
	Metrics featured.Metrics
	Now     func() time.Time
}

// Dispatcher consumes StateChanged events and calls the Syncer for each.
type Dispatcher struct {
	config  Config
	queue   chan featured.StateChanged
	logger  featured.Logger
	metrics featured.Metrics
}

var _ featured.EventSink = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Outbox == nil {
		return nil, errors.New("fanout: outbox store is required")
	}
	if config.Syncer == nil {
		return nil, errors.New("fanout: syncer is required")
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.Retries == 0 {
		config.Retries = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 200 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &featured.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &featured.NoopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Dispatcher{
		config:  config,
		queue:   make(chan featured.StateChanged, config.QueueSize),
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Emit implements featured.EventSink. It never blocks.
func (d *Dispatcher) Emit(_ context.Context, event featured.StateChanged) {
	select {
	case d.queue <- event:
	default:
		d.metrics.RecordStateChangeDelivery("dropped", 0)
		d.logger.Warn("fan-out queue full, leaving event to the outbox poller",
			featured.Field{Key: "eventId", Value: event.ID},
			featured.Field{Key: "jobId", Value: event.JobID},
		)
	}
}

// Run delivers events until ctx is cancelled. It polls the outbox once on
// start so events left by a previous process are not stranded.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.ProcessPending(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-ticker.C:
			d.ProcessPending(ctx)
		}
	}
}

// ProcessPending delivers one batch of undelivered outbox events and returns
// how many succeeded.
func (d *Dispatcher) ProcessPending(ctx context.Context) int {
	events, err := d.config.Outbox.PendingEvents(ctx, d.config.BatchSize, d.config.MaxAttempts)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("failed to read outbox", featured.Field{Key: "error", Value: err})
		}
		return 0
	}

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		if d.deliver(ctx, event) {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, event featured.StateChanged) bool {
	attempts := 0
	op := func() error {
		attempts++
		return d.config.Syncer.SyncJob(ctx, event.JobID)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.InitialBackoff
	b.MaxInterval = d.config.MaxBackoff
	b.MaxElapsedTime = 0

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, d.config.Retries), ctx))
	if err != nil {
		if ctx.Err() != nil {
			// Not a delivery failure; the outbox keeps the event for the next run.
			return false
		}
		d.metrics.RecordStateChangeDelivery("failed", attempts)
		d.logger.Warn("state change delivery failed",
			featured.Field{Key: "eventId", Value: event.ID},
			featured.Field{Key: "jobId", Value: event.JobID},
			featured.Field{Key: "attempts", Value: attempts},
			featured.Field{Key: "error", Value: err},
		)
		if markErr := d.config.Outbox.MarkEventFailed(ctx, event.ID, err.Error()); markErr != nil {
			d.logger.Error("failed to record delivery failure",
				featured.Field{Key: "eventId", Value: event.ID},
				featured.Field{Key: "error", Value: markErr},
			)
		}
		return false
	}

	d.metrics.RecordStateChangeDelivery("delivered", attempts)
	if err := d.config.Outbox.MarkEventDelivered(ctx, event.ID, d.config.Now().UTC()); err != nil {
		d.logger.Error("failed to mark event delivered",
			featured.Field{Key: "eventId", Value: event.ID},
			featured.Field{Key: "error", Value: err},
		)
	}
	return true
}
