package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert.NotNil(t, Registry())
	assert.Same(t, registry, Registry())
}

func TestControllerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewControllerMetrics("test_controller", reg)
	require.NotNil(t, metrics)

	assert.Equal(t, float64(0), metrics.SuccessRate())

	metrics.LoansRequested.Add(4)
	metrics.LoansSettled.Add(3)
	metrics.LoansAborted.WithLabelValues("insufficient_repayment").Inc()
	assert.Equal(t, 0.75, metrics.SuccessRate())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LoansAborted.WithLabelValues("insufficient_repayment")))

	metrics.BorrowedVolume.WithLabelValues("0x01").Add(1e18)
	assert.Equal(t, 1e18, testutil.ToFloat64(metrics.BorrowedVolume.WithLabelValues("0x01")))

	metrics.ActiveLoans.Inc()
	metrics.ActiveLoans.Dec()
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveLoans))

	metrics.SettlementLatency.Observe(0.001)
	count, err := testutil.GatherAndCount(reg, "test_controller_settlement_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestControllerMetricsUnregistered(t *testing.T) {
	first := NewControllerMetrics("test_unregistered", nil)
	second := NewControllerMetrics("test_unregistered", nil)

	first.Deposits.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(first.Deposits))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.Deposits))
}

func TestRPCMetrics(t *testing.T) {
	metrics := NewRPCMetrics("test_rpc", prometheus.NewRegistry())
	require.NotNil(t, metrics)

	metrics.Requests.WithLabelValues("getOwner").Inc()
	metrics.CacheHit.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Requests.WithLabelValues("getOwner")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHit))

	metrics.Latency.WithLabelValues("getOwner").Observe(0.01)
}
