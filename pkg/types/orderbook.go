package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderbookMessage represents a message from the Polymarket WebSocket.
type OrderbookMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"` // Parsed from string via UnmarshalJSON
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON custom unmarshaler to handle string timestamp.
func (o *OrderbookMessage) UnmarshalJSON(data []byte) error {
	type Alias OrderbookMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(o),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Parse timestamp from string to int64
	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		o.Timestamp = timestamp
	}

	return nil
}

// PriceLevel represents a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderbookSnapshot is a best-price summary of a token's book, for callers
// that only need top-of-book.
type OrderbookSnapshot struct {
	MarketID     string
	TokenID      string
	Outcome      string // "YES" or "NO"
	BestBidPrice decimal.Decimal
	BestBidSize  decimal.Decimal
	BestAskPrice decimal.Decimal
	BestAskSize  decimal.Decimal
	Revision     uint64
	LastUpdated  time.Time
}

// Decimal parses a PriceLevel's string fields into decimal values. Malformed
// levels (as can arrive from a flaky feed) surface an error rather than
// silently becoming zero, since a wrong price/size would corrupt the book.
func (l PriceLevel) Decimal() (price, size decimal.Decimal, err error) {
	price, err = decimal.NewFromString(l.Price)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	size, err = decimal.NewFromString(l.Size)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return price, size, nil
}
