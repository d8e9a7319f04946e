package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

var _ featured.Metrics = (*Metrics)(nil)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetrics_RateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordRateLimitCheck("checkout", true, time.Millisecond)
	m.RecordRateLimitCheck("checkout", false, time.Millisecond)
	m.RecordRateLimitCheck("checkout", false, time.Millisecond)
	m.RecordRateLimitFallback("redis_error")

	family := findMetric(t, reg, "test_rate_limit_checks_total")
	require.NotNil(t, family)
	var denied float64
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "allowed" && label.GetValue() == "false" {
				denied = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), denied)

	fallback := findMetric(t, reg, "test_rate_limit_fallback_total")
	require.NotNil(t, fallback)
	assert.Equal(t, float64(1), fallback.GetMetric()[0].GetCounter().GetValue())
}

func TestMetrics_SearchOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordSearchOperation("upsert", 3, time.Millisecond, nil)
	m.RecordSearchOperation("upsert", 5, time.Millisecond, errors.New("down"))

	docs := findMetric(t, reg, "test_search_documents_total")
	require.NotNil(t, docs)
	assert.Equal(t, float64(3), docs.GetMetric()[0].GetCounter().GetValue())

	errs := findMetric(t, reg, "test_search_operation_errors_total")
	require.NotNil(t, errs)
	assert.Equal(t, float64(1), errs.GetMetric()[0].GetCounter().GetValue())
}

func TestMetrics_StateChangeDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordStateChangeDelivery("delivered", 2)
	m.RecordCircuitBreakerStateChange("open")

	assert.NotNil(t, findMetric(t, reg, "test_fanout_deliveries_total"))
	assert.NotNil(t, findMetric(t, reg, "test_fanout_delivery_attempts"))
	assert.NotNil(t, findMetric(t, reg, "test_circuit_breaker_state_changes_total"))
}
