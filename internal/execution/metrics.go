package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the current number of signals waiting in the queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mercury_execution_queue_depth",
		Help: "Current number of signals waiting in the execution queue",
	})

	// ExpiredTotal counts queued signals expired before being dequeued.
	ExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercury_execution_expired_total",
		Help: "Total number of queued signals expired before being dequeued",
	})

	// FailedTotal counts execution workers that failed or panicked.
	FailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercury_execution_failed_total",
		Help: "Total number of execution workers that failed or panicked",
	})

	// ExecutionLatencyHistogram tracks signal-received-to-fill-completed latency.
	ExecutionLatencyHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mercury_execution_latency_ms",
		Help:    "Total signal-received-to-fill-completed latency in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 250, 500, 1000, 5000},
	})

	// UnwindTotal counts partial-fill unwind attempts by result.
	UnwindTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_execution_unwind_total",
			Help: "Total number of partial-fill unwind attempts, by result",
		},
		[]string{"result"},
	)

	// RebalanceTotal counts rebalance actions taken by action.
	RebalanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_execution_rebalance_total",
			Help: "Total number of rebalance actions taken, by action",
		},
		[]string{"action"},
	)
)
