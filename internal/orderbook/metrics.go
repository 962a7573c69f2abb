package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks book mutations by side (bid/ask) and kind
	// (upsert/delete).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_orderbook_updates_total",
			Help: "Total number of order book level updates",
		},
		[]string{"side", "kind"},
	)

	// BooksTracked tracks the number of distinct token books held in the
	// store.
	BooksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mercury_orderbook_books_tracked",
		Help: "Number of token order books tracked in memory",
	})

	// SnapshotsAppliedTotal tracks full-book snapshot applications.
	SnapshotsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mercury_orderbook_snapshots_applied_total",
		Help: "Total number of full order book snapshots applied",
	})

	// InconsistentBookTotal tracks occurrences of best_bid > best_ask,
	// a crossed-book condition that should be rare and transient.
	InconsistentBookTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercury_orderbook_inconsistent_total",
			Help: "Total number of times a book was observed crossed (best bid > best ask)",
		},
		[]string{"token_id"},
	)
)
