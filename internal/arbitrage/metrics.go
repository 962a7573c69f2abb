package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsEmittedTotal tracks gabagool signals emitted.
	SignalsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercury_gabagool_signals_emitted_total",
		Help: "Total number of arbitrage signals emitted",
	})

	// SpreadCentsObserved tracks detected spread in cents at signal time.
	SpreadCentsObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mercury_gabagool_spread_cents",
		Help:    "Arbitrage spread in cents at signal emission",
		Buckets: []float64{1, 1.5, 2, 3, 4, 5, 8, 12, 20},
	})

	// SignalsRejectedTotal tracks rejected candidate opportunities by reason.
	SignalsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_gabagool_signals_rejected_total",
			Help: "Total number of candidate opportunities rejected before a signal was built",
		},
		[]string{"reason"},
	)
)
