// Package types holds the domain entities shared across the engine:
// order book levels, signals, orders, positions, and settlement records.
// The domain entities use decimal.Decimal for all prices, sizes, and
// monetary amounts, never float64. The raw CLOB API types in clob_api.go
// (OrderQueryResponse, OutcomeOrderParams) hold some of these as float64.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Outcome identifies which leg of a binary market a token represents.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// OrderType mirrors the exchange's supported order lifetimes.
type OrderType string

const (
	OrderTypeGTC    OrderType = "GTC"
	OrderTypeFOK    OrderType = "FOK"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the execution engine's order state machine.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusSubmitted       OrderStatus = "SUBMITTED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// SignalType enumerates the kinds of signals a strategy can emit.
type SignalType string

const (
	SignalArbitrage SignalType = "ARBITRAGE"
	SignalBuyYes    SignalType = "BUY_YES"
	SignalBuyNo     SignalType = "BUY_NO"
	SignalSell      SignalType = "SELL"
)

// Priority orders signals within the execution queue: lower value runs first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// PositionStatus tracks a hedged position through settlement.
type PositionStatus string

const (
	PositionOpen               PositionStatus = "OPEN"
	PositionClosed             PositionStatus = "CLOSED"
	PositionPendingSettlement  PositionStatus = "PENDING_SETTLEMENT"
	PositionSettled            PositionStatus = "SETTLED"
)

// SettlementStatus tracks a queue entry's claim lifecycle.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementClaimed SettlementStatus = "claimed"
	SettlementFailed  SettlementStatus = "failed"
)

// PnLType classifies an entry in the realized P&L ledger.
type PnLType string

const (
	PnLResolution PnLType = "resolution"
	PnLSettlement PnLType = "settlement"
	PnLRebalance  PnLType = "rebalance"
	PnLFees       PnLType = "fees"
)

// BreakerLevel is the circuit breaker's four-level escalation ladder.
type BreakerLevel string

const (
	BreakerNormal  BreakerLevel = "NORMAL"
	BreakerWarning BreakerLevel = "WARNING"
	BreakerCaution BreakerLevel = "CAUTION"
	BreakerHalt    BreakerLevel = "HALT"
)

// TradingSignal is produced by a strategy and carries everything the risk
// manager and execution engine need to evaluate and, if approved, dispatch
// a dual-leg (or single-leg) trade.
type TradingSignal struct {
	SignalID      string
	StrategyName  string
	MarketID      string
	ConditionID   string
	SignalType    SignalType
	Priority      Priority
	Confidence    float64 // [0,1]; not a monetary quantity, float64 is fine
	TargetSizeUSD decimal.Decimal
	YesPrice      decimal.Decimal
	NoPrice       decimal.Decimal
	YesTokenID    string
	NoTokenID     string
	ExpectedPnL   decimal.Decimal
	MaxSlippage   decimal.Decimal
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Metadata      map[string]string
}

// Expired reports whether the signal is inert at time t.
func (s *TradingSignal) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// ApprovedSignal wraps a TradingSignal with the risk manager's sizing
// decision. Only the risk manager constructs these.
type ApprovedSignal struct {
	TradingSignal
	ApprovedSizeUSD decimal.Decimal
	ApprovedAt      time.Time
}

// RejectedSignal carries the structured reason the risk manager refused a
// signal, for publication on risk.rejected.<strategy>.
type RejectedSignal struct {
	TradingSignal
	Reason     string
	RejectedAt time.Time
}

// Order is a single outbound order and its lifecycle state.
type Order struct {
	OrderID       string
	ClientOrderID string
	MarketID      string
	TokenID       string
	Side          Side
	Outcome       Outcome
	OrderType     OrderType
	RequestedSize decimal.Decimal
	FilledSize    decimal.Decimal
	Price         decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RemainingSize is the unfilled portion of the requested size.
func (o *Order) RemainingSize() decimal.Decimal {
	return o.RequestedSize.Sub(o.FilledSize)
}

// FillRatio is FilledSize / RequestedSize, or 0 when nothing was requested.
func (o *Order) FillRatio() decimal.Decimal {
	if o.RequestedSize.IsZero() {
		return decimal.Zero
	}
	return o.FilledSize.Div(o.RequestedSize)
}

// Fill is an immutable record of a (partial) execution.
type Fill struct {
	FillID    string
	OrderID   string
	MarketID  string
	TokenID   string
	Side      Side
	Outcome   Outcome
	Size      decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	Timestamp time.Time
}

// Cost is the gross cost of the fill including fees.
func (f *Fill) Cost() decimal.Decimal {
	return f.Size.Mul(f.Price).Add(f.Fee)
}

// Position is a (partially) hedged pair of YES/NO holdings in one market.
type Position struct {
	PositionID         string
	MarketID           string
	ConditionID        string
	YesTokenID         string
	NoTokenID          string
	YesSize            decimal.Decimal
	NoSize             decimal.Decimal
	YesAvgPrice        decimal.Decimal
	NoAvgPrice         decimal.Decimal
	Status             PositionStatus
	OpenedAt           time.Time
	ClosedAt           *time.Time
	RealizedPnL        decimal.Decimal
	SettlementProceeds decimal.Decimal
}

// IsHedged reports whether both legs carry equal, positive size.
func (p *Position) IsHedged() bool {
	return p.YesSize.GreaterThan(decimal.Zero) && p.YesSize.Equal(p.NoSize)
}

// NetExposure is the unmatched portion of the position (can be negative).
func (p *Position) NetExposure() decimal.Decimal {
	return p.YesSize.Sub(p.NoSize)
}

// HedgeRatio is min(yes,no)/max(yes,no), or 0 when one leg is empty.
func (p *Position) HedgeRatio() decimal.Decimal {
	lo, hi := p.YesSize, p.NoSize
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}
	if hi.IsZero() {
		return decimal.Zero
	}
	return lo.Div(hi)
}

// GuaranteedPnL is min(yes,no) minus the total cost of the matched portion.
func (p *Position) GuaranteedPnL() decimal.Decimal {
	matched := decimal.Min(p.YesSize, p.NoSize)
	matchedCost := matched.Mul(p.YesAvgPrice).Add(matched.Mul(p.NoAvgPrice))
	return matched.Sub(matchedCost)
}

// SettlementQueueEntry tracks one position through redemption, including
// retry state for the exponential-backoff claim ladder.
type SettlementQueueEntry struct {
	PositionID string // per-leg id ("<position_id>-YES"/"-NO")
	// ParentPositionID is the positions-table key this leg belongs to;
	// kept separate from PositionID because one hedged position queues
	// two settlement entries (one per leg), but only one positions row.
	ParentPositionID string
	MarketID         string
	ConditionID      string
	Side             Outcome
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	EntryCost        decimal.Decimal
	MarketEndTime    time.Time
	Status           SettlementStatus
	ClaimAttempts    int
	LastClaimError   string
	NextRetryAt      time.Time
	ClaimedAt        *time.Time
	ClaimProceeds    decimal.Decimal
	ClaimProfit      decimal.Decimal
}

// CircuitBreakerState is the singleton daily risk-breaker record.
type CircuitBreakerState struct {
	Date              time.Time
	Level             BreakerLevel
	RealizedPnL       decimal.Decimal
	CircuitBreakerHit bool
	HitAt             *time.Time
	HitReason         string
	TotalTradesToday  int
	ConsecutiveFails  int
}

// DailyStats is a per-day rollup of trading activity.
type DailyStats struct {
	Date                  time.Time
	TradeCount            int
	VolumeUSD             decimal.Decimal
	RealizedPnL           decimal.Decimal
	PositionsOpened       int
	PositionsClosed       int
	Wins                  int
	Losses                int
	Exposure              decimal.Decimal
	OpportunitiesDetected int
	OpportunitiesExecuted int
	MaxDrawdown           decimal.Decimal
}

// RealizedPnlEntry is one append-only ledger row.
type RealizedPnlEntry struct {
	TradeID   string
	TradeDate time.Time
	PnLAmount decimal.Decimal
	PnLType   PnLType
	Notes     string
}
