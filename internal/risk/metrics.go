package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RejectionsTotal tracks signal rejections by reason.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_risk_rejections_total",
			Help: "Total number of signals rejected by the risk manager, by reason",
		},
		[]string{"reason"},
	)

	// BreakerLevelGauge tracks the circuit breaker's current escalation
	// level as a number: 0=NORMAL, 1=WARNING, 2=CAUTION, 3=HALT.
	BreakerLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mercury_risk_breaker_level",
		Help: "Current circuit breaker level (0=NORMAL,1=WARNING,2=CAUTION,3=HALT)",
	})
)
