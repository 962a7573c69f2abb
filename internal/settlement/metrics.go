package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CycleEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mercury_settlement_cycle_entries",
		Help: "Number of claimable settlement entries found in the most recent check cycle",
	})
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "mercury_settlement_claims_total", Help: "Total number of claim attempts, by result"},
		[]string{"result"},
	)
)
