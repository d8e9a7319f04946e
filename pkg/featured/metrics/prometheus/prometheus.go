package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements featured.Metrics using Prometheus.
type Metrics struct {
	rateLimitChecksTotal       *prometheus.CounterVec
	rateLimitCheckDuration     *prometheus.HistogramVec
	rateLimitFallbackTotal     *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
	searchOpsTotal             *prometheus.CounterVec
	searchOpsErrors            *prometheus.CounterVec
	searchOpsDuration          *prometheus.HistogramVec
	searchDocumentsTotal       *prometheus.CounterVec
	stateChangeDeliveries      *prometheus.CounterVec
	stateChangeAttempts        *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		rateLimitChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_checks_total",
			Help:      "Total number of rate limit decisions.",
		}, []string{"scope", "allowed"}),

		rateLimitCheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_check_duration_seconds",
			Help:      "Latency of rate limit checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),

		rateLimitFallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_fallback_total",
			Help:      "Total number of rate limit checks served by the local fallback.",
		}, []string{"reason"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),

		searchOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "operations_total",
			Help:      "Total number of search index operations.",
		}, []string{"operation"}),

		searchOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "operation_errors_total",
			Help:      "Total number of failed search index operations.",
		}, []string{"operation"}),

		searchOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "operation_duration_seconds",
			Help:      "Latency of search index operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		searchDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "documents_total",
			Help:      "Total number of documents sent to the search index.",
		}, []string{"operation"}),

		stateChangeDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Total number of state change delivery outcomes.",
		}, []string{"outcome"}),

		stateChangeAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "delivery_attempts",
			Help:      "Attempts needed per state change delivery.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordRateLimitCheck(scope string, allowed bool, duration time.Duration) {
	m.rateLimitChecksTotal.WithLabelValues(scope, strconv.FormatBool(allowed)).Inc()
	m.rateLimitCheckDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

func (m *Metrics) RecordRateLimitFallback(reason string) {
	m.rateLimitFallbackTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordSearchOperation(operation string, documents int, duration time.Duration, err error) {
	m.searchOpsTotal.WithLabelValues(operation).Inc()
	m.searchOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.searchOpsErrors.WithLabelValues(operation).Inc()
		return
	}
	m.searchDocumentsTotal.WithLabelValues(operation).Add(float64(documents))
}

func (m *Metrics) RecordStateChangeDelivery(outcome string, attempts int) {
	m.stateChangeDeliveries.WithLabelValues(outcome).Inc()
	m.stateChangeAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
