package orderbook

import "github.com/shopspring/decimal"

// MarketOrderBook pairs a market's YES and NO books and derives the
// arbitrage-relevant aggregate quantities. A nil leg (not yet subscribed or
// currently empty) makes the corresponding Has* query return false rather
// than panicking.
type MarketOrderBook struct {
	MarketID    string
	ConditionID string
	YesBook     *InMemoryOrderBook
	NoBook      *InMemoryOrderBook
}

// CombinedAsk returns yes_best_ask + no_best_ask, and whether both legs
// currently have an ask.
func (m *MarketOrderBook) CombinedAsk() (combined decimal.Decimal, ok bool) {
	if m.YesBook == nil || m.NoBook == nil {
		return decimal.Zero, false
	}
	yesAsk, _, okY := m.YesBook.BestAsk()
	noAsk, _, okN := m.NoBook.BestAsk()
	if !okY || !okN {
		return decimal.Zero, false
	}
	return yesAsk.Add(noAsk), true
}

// ArbitrageSpread is 1 - combined_ask; only meaningful when both legs have
// an ask (see CombinedAsk's ok return).
func (m *MarketOrderBook) ArbitrageSpread() (spread decimal.Decimal, ok bool) {
	combined, ok := m.CombinedAsk()
	if !ok {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(1).Sub(combined), true
}

// HasArbitrage reports whether the arbitrage spread is strictly positive.
func (m *MarketOrderBook) HasArbitrage() bool {
	spread, ok := m.ArbitrageSpread()
	return ok && spread.GreaterThan(decimal.Zero)
}

// BestPrices is a snapshot of both legs' best bid/ask, used for the
// market.orderbook.<id> event payload and the HTTP inspection endpoint.
type BestPrices struct {
	MarketID        string
	YesBid, YesAsk  decimal.Decimal
	NoBid, NoAsk    decimal.Decimal
	HasYesAsk       bool
	HasNoAsk        bool
	CombinedAsk     decimal.Decimal
	ArbitrageSpread decimal.Decimal
	HasArbitrage    bool
}

// Snapshot computes a BestPrices view of the current market book state.
func (m *MarketOrderBook) Snapshot() BestPrices {
	bp := BestPrices{MarketID: m.MarketID}
	if m.YesBook != nil {
		bp.YesBid, _, _ = m.YesBook.BestBid()
		bp.YesAsk, _, bp.HasYesAsk = m.YesBook.BestAsk()
	}
	if m.NoBook != nil {
		bp.NoBid, _, _ = m.NoBook.BestBid()
		bp.NoAsk, _, bp.HasNoAsk = m.NoBook.BestAsk()
	}
	if combined, ok := m.CombinedAsk(); ok {
		bp.CombinedAsk = combined
		bp.ArbitrageSpread = decimal.NewFromInt(1).Sub(combined)
		bp.HasArbitrage = bp.ArbitrageSpread.GreaterThan(decimal.Zero)
	}
	return bp
}
