// Package orderbook maintains the per-token, per-market order book state
// that every downstream component (strategies, risk, execution) reads.
package orderbook

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const btreeDegree = 32

// levelItem is one (price, size) level stored in a side's btree, ordered by
// price. The same item type backs both sides, just with a different
// comparator supplied to btree.NewG at construction: ascending for asks,
// descending for bids.
type levelItem struct {
	price decimal.Decimal
	size  decimal.Decimal
}

func lessAscending(a, b levelItem) bool {
	return a.price.LessThan(b.price)
}

func lessDescending(a, b levelItem) bool {
	return a.price.GreaterThan(b.price)
}

// InMemoryOrderBook is one token's two-sided L2 book: bids descending by
// price, asks ascending by price. All levels have size > 0; updating a
// level to size 0 removes it. A monotonic revision counter increments on
// every mutation so callers can detect staleness cheaply.
type InMemoryOrderBook struct {
	mu       sync.RWMutex
	tokenID  string
	bids     *btree.BTreeG[levelItem]
	asks     *btree.BTreeG[levelItem]
	revision uint64
}

// NewInMemoryOrderBook constructs an empty book for tokenID.
func NewInMemoryOrderBook(tokenID string) *InMemoryOrderBook {
	return &InMemoryOrderBook{
		tokenID: tokenID,
		bids:    btree.NewG(btreeDegree, lessDescending),
		asks:    btree.NewG(btreeDegree, lessAscending),
	}
}

// UpdateBid upserts (or, at size 0, removes) a bid level. O(log L).
func (b *InMemoryOrderBook) UpdateBid(price, size decimal.Decimal) {
	b.update(b.bids, price, size)
}

// UpdateAsk upserts (or, at size 0, removes) an ask level. O(log L).
func (b *InMemoryOrderBook) UpdateAsk(price, size decimal.Decimal) {
	b.update(b.asks, price, size)
}

func (b *InMemoryOrderBook) update(side *btree.BTreeG[levelItem], price, size decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sideName := "ask"
	if side == b.bids {
		sideName = "bid"
	}

	item := levelItem{price: price}
	if size.IsZero() || size.IsNegative() {
		side.Delete(item)
		UpdatesTotal.WithLabelValues(sideName, "delete").Inc()
	} else {
		side.ReplaceOrInsert(levelItem{price: price, size: size})
		UpdatesTotal.WithLabelValues(sideName, "upsert").Inc()
	}
	b.revision++

	if !b.consistentLocked() {
		InconsistentBookTotal.WithLabelValues(b.tokenID).Inc()
	}
}

func (b *InMemoryOrderBook) consistentLocked() bool {
	bid, hasBid := b.bids.Min()
	ask, hasAsk := b.asks.Min()
	if hasBid && hasAsk {
		return bid.price.LessThanOrEqual(ask.price)
	}
	return true
}

// ApplySnapshot atomically replaces both sides of the book. Observers
// (readers taking the RLock) never see a book with only one side replaced.
// Levels with non-positive size are dropped rather than inserted.
func (b *InMemoryOrderBook) ApplySnapshot(bids, asks []Level) {
	newBids := btree.NewG(btreeDegree, lessDescending)
	for _, lvl := range bids {
		if lvl.Size.IsZero() || lvl.Size.IsNegative() {
			continue
		}
		newBids.ReplaceOrInsert(levelItem{price: lvl.Price, size: lvl.Size})
	}
	newAsks := btree.NewG(btreeDegree, lessAscending)
	for _, lvl := range asks {
		if lvl.Size.IsZero() || lvl.Size.IsNegative() {
			continue
		}
		newAsks.ReplaceOrInsert(levelItem{price: lvl.Price, size: lvl.Size})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = newBids
	b.asks = newAsks
	b.revision++
	SnapshotsAppliedTotal.Inc()
	if !b.consistentLocked() {
		InconsistentBookTotal.WithLabelValues(b.tokenID).Inc()
	}
}

// BestBid returns the highest bid level, if any.
func (b *InMemoryOrderBook) BestBid() (price, size decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	item, ok := b.bids.Min()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return item.price, item.size, true
}

// BestAsk returns the lowest ask level, if any.
func (b *InMemoryOrderBook) BestAsk() (price, size decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	item, ok := b.asks.Min()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return item.price, item.size, true
}

// Level is a depth-query result level.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BidDepth returns up to n bid levels, best first.
func (b *InMemoryOrderBook) BidDepth(n int) []Level {
	return depth(b, b.bids, n)
}

// AskDepth returns up to n ask levels, best first.
func (b *InMemoryOrderBook) AskDepth(n int) []Level {
	return depth(b, b.asks, n)
}

func depth(b *InMemoryOrderBook, side *btree.BTreeG[levelItem], n int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Level, 0, n)
	side.Ascend(func(item levelItem) bool {
		out = append(out, Level{Price: item.price, Size: item.size})
		return len(out) < n
	})
	return out
}

// TotalBidSize sums size across the top n bid levels.
func (b *InMemoryOrderBook) TotalBidSize(n int) decimal.Decimal {
	return totalSize(b.BidDepth(n))
}

// TotalAskSize sums size across the top n ask levels.
func (b *InMemoryOrderBook) TotalAskSize(n int) decimal.Decimal {
	return totalSize(b.AskDepth(n))
}

func totalSize(levels []Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	return total
}

// Revision returns the current mutation counter.
func (b *InMemoryOrderBook) Revision() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revision
}

// TokenID returns the token this book tracks.
func (b *InMemoryOrderBook) TokenID() string { return b.tokenID }

// Consistent reports the invariant checked in the test suite: best_bid <=
// best_ask when both exist, and every level carries positive size (the
// latter holds by construction since update/ApplySnapshot never insert a
// non-positive size).
func (b *InMemoryOrderBook) Consistent() bool {
	bidPrice, _, hasBid := b.BestBid()
	askPrice, _, hasAsk := b.BestAsk()
	if hasBid && hasAsk {
		return bidPrice.LessThanOrEqual(askPrice)
	}
	return true
}
