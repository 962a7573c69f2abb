package websocket

import (
	"context"

	"github.com/mselser95/mercury/pkg/types"
)

// Feed adapts a Pool's slice-argument Subscribe/Unsubscribe and
// MessageChan to the variadic Subscribe/Unsubscribe plus Messages shape
// internal/marketdata.Feed expects. The pool itself stays untouched: this
// is purely a calling-convention bridge, not a behavior change.
type Feed struct {
	pool *Pool
}

// NewFeed wraps an already-constructed Pool.
func NewFeed(pool *Pool) *Feed {
	return &Feed{pool: pool}
}

// Subscribe forwards to the pool's hash-sharded subscription.
func (f *Feed) Subscribe(ctx context.Context, tokenIDs ...string) error {
	return f.pool.Subscribe(ctx, tokenIDs)
}

// Unsubscribe forwards to the pool's hash-sharded unsubscription.
func (f *Feed) Unsubscribe(ctx context.Context, tokenIDs ...string) error {
	return f.pool.Unsubscribe(ctx, tokenIDs)
}

// Messages returns the pool's multiplexed inbound message channel.
func (f *Feed) Messages() <-chan *types.OrderbookMessage {
	return f.pool.MessageChan()
}
