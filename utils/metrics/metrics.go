package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var registry = prometheus.NewRegistry()

// Registry returns the process-wide registry served on the metrics endpoint.
func Registry() *prometheus.Registry {
	return registry
}

type ControllerMetrics struct {
	LoansRequested    prometheus.Counter
	LoansSettled      prometheus.Counter
	LoansAborted      *prometheus.CounterVec
	ActiveLoans       prometheus.Gauge
	BorrowedVolume    *prometheus.CounterVec
	FeesPaid          *prometheus.CounterVec
	SettlementLatency prometheus.Histogram
	Deposits          prometheus.Counter
	DepositedVolume   prometheus.Counter
	Withdrawals       *prometheus.CounterVec
	RejectedCalls     *prometheus.CounterVec
}

// NewControllerMetrics creates the controller collectors. A nil registerer
// leaves them unregistered.
func NewControllerMetrics(namespace string, reg prometheus.Registerer) *ControllerMetrics {
	factory := promauto.With(reg)
	return &ControllerMetrics{
		LoansRequested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_requested_total",
			Help:      "Total number of flash loans dispatched to the vault",
		}),
		LoansSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_settled_total",
			Help:      "Total number of flash loans repaid in full",
		}),
		LoansAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_aborted_total",
			Help:      "Number of flash loans rolled back by reason",
		}, []string{"reason"}),
		ActiveLoans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_loans",
			Help:      "Number of flash loans currently in flight",
		}),
		BorrowedVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "borrowed_volume_base_units_total",
			Help:      "Volume borrowed per asset in token base units",
		}, []string{"asset"}),
		FeesPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_paid_base_units_total",
			Help:      "Flash loan fees repaid per asset in token base units",
		}, []string{"asset"}),
		SettlementLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_latency_seconds",
			Help:      "Time from dispatch to vault return",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		Deposits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposits_total",
			Help:      "Total number of native coin receipts",
		}),
		DepositedVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposited_volume_wei_total",
			Help:      "Native coins received in wei",
		}),
		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Number of treasury withdrawals by kind",
		}, []string{"kind"}),
		RejectedCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_calls_total",
			Help:      "Number of calls rejected by a guard",
		}, []string{"guard"}),
	}
}

// SuccessRate returns settled loans over requested loans.
func (m *ControllerMetrics) SuccessRate() float64 {
	requested := counterValue(m.LoansRequested)
	if requested == 0 {
		return 0
	}
	return counterValue(m.LoansSettled) / requested
}

type RPCMetrics struct {
	Requests *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	CacheHit prometheus.Counter
}

func NewRPCMetrics(namespace string, reg prometheus.Registerer) *RPCMetrics {
	factory := promauto.With(reg)
	return &RPCMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of contract calls by method",
		}, []string{"method"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of failed contract calls by method",
		}, []string{"method"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_seconds",
			Help:      "Contract call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"method"}),
		CacheHit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Immutable reads served from cache",
		}),
	}
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
