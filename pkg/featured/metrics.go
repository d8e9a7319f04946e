package featured

import "time"

// Metrics tracks the non-billing side of the engine: rate limiting, search
// synchronization and state-change delivery.
type Metrics interface {
	// RecordRateLimitCheck records one limiter decision for a scope.
	RecordRateLimitCheck(scope string, allowed bool, duration time.Duration)

	// RecordRateLimitFallback records a distributed counter failure served locally.
	RecordRateLimitFallback(reason string)

	// RecordCircuitBreakerStateChange records a circuit breaker transition.
	RecordCircuitBreakerStateChange(state string)

	// RecordSearchOperation records a search index call ("upsert", "remove", "reindex").
	RecordSearchOperation(operation string, documents int, duration time.Duration, err error)

	// RecordStateChangeDelivery records one attempt to deliver a StateChanged event.
	RecordStateChangeDelivery(outcome string, attempts int)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordRateLimitCheck(string, bool, time.Duration)        {}
func (n *NoopMetrics) RecordRateLimitFallback(string)                          {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(string)                  {}
func (n *NoopMetrics) RecordSearchOperation(string, int, time.Duration, error) {}
func (n *NoopMetrics) RecordStateChangeDelivery(string, int)                   {}
