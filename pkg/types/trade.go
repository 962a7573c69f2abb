package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a single trade execution, as reported by the exchange
// client or recorded for paper-trading / CLI reporting.
type Trade struct {
	TokenID   string
	Outcome   string // "YES" or "NO"
	Side      string // "BUY" or "SELL"
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

// ExecutionResult contains the result of executing an arbitrage signal,
// used by the CLI's one-shot commands and by tests.
type ExecutionResult struct {
	SignalID       string
	MarketID       string
	ExecutedAt     time.Time
	YesTrade       *Trade
	NoTrade        *Trade
	RealizedProfit decimal.Decimal
	Success        bool
	Error          error
}
