// Package marketdata is the bridge between the exchange's streaming feed
// and the order book store: it subscribes/unsubscribes markets, applies
// inbound price and book events, monitors staleness, and publishes
// orderbook/staleness events onto the bus. Grounded on the polling-loop
// shape of the upstream discovery service (ticker-driven, per-cycle error
// isolation) adapted to a subscribe-driven rather than poll-driven model,
// and on the websocket pool for the streaming side.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/pkg/types"
)

// Feed is the streaming collaborator a Service drives: subscribe/
// unsubscribe a token pair and receive a channel of inbound messages.
// pkg/websocket provides the concrete websocket-pool-backed implementation.
type Feed interface {
	Subscribe(ctx context.Context, tokenIDs ...string) error
	Unsubscribe(ctx context.Context, tokenIDs ...string) error
	Messages() <-chan *types.OrderbookMessage
}

// Config configures a Service.
type Config struct {
	Logger              *zap.Logger
	Bus                 *eventbus.Bus
	Store               *orderbook.Store
	Feed                Feed
	StaleThreshold       time.Duration // default 30s per market_data.stale_threshold_seconds
	StaleCheckInterval   time.Duration
}

// Service implements the market data component (§4.C): subscribe/
// unsubscribe, apply book/price updates, staleness monitoring, event
// publication.
type Service struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	store  *orderbook.Store
	feed   Feed

	staleThreshold     time.Duration
	staleCheckInterval time.Duration

	mu          sync.RWMutex
	lastUpdate  map[string]time.Time // token_id -> monotonic-ish wall clock of last update
	marketOfYes map[string]string    // yes token -> market id, for reverse lookup on message arrival
	marketOfNo  map[string]string    // no token -> market id

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Service. Call Start to begin consuming the feed.
func New(cfg Config) *Service {
	staleThreshold := cfg.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Second
	}
	staleCheck := cfg.StaleCheckInterval
	if staleCheck <= 0 {
		staleCheck = 5 * time.Second
	}
	return &Service{
		logger:             cfg.Logger,
		bus:                cfg.Bus,
		store:              cfg.Store,
		feed:               cfg.Feed,
		staleThreshold:     staleThreshold,
		staleCheckInterval: staleCheck,
		lastUpdate:         make(map[string]time.Time),
		marketOfYes:        make(map[string]string),
		marketOfNo:         make(map[string]string),
	}
}

// Start launches the message-consumption and staleness-monitor loops.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.consumeMessages()
	go s.monitorStaleness()

	return nil
}

// Stop cancels background loops and waits for them to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// SubscribeMarket reserves per-market state and asks the feed to stream
// both tokens.
func (s *Service) SubscribeMarket(ctx context.Context, marketID, yesTokenID, noTokenID, conditionID string) error {
	s.store.RegisterMarket(marketID, yesTokenID, noTokenID, conditionID)

	s.mu.Lock()
	s.marketOfYes[yesTokenID] = marketID
	s.marketOfNo[noTokenID] = marketID
	now := time.Now()
	s.lastUpdate[yesTokenID] = now
	s.lastUpdate[noTokenID] = now
	s.mu.Unlock()

	if err := s.feed.Subscribe(ctx, yesTokenID, noTokenID); err != nil {
		return fmt.Errorf("subscribe market %s: %w", marketID, err)
	}
	return nil
}

// UnsubscribeMarket undoes SubscribeMarket.
func (s *Service) UnsubscribeMarket(ctx context.Context, marketID string) error {
	yesTokenID, noTokenID, ok := s.store.TokensForMarket(marketID)
	s.store.UnregisterMarket(marketID)
	if !ok {
		return nil
	}

	s.mu.Lock()
	delete(s.marketOfYes, yesTokenID)
	delete(s.marketOfNo, noTokenID)
	delete(s.lastUpdate, yesTokenID)
	delete(s.lastUpdate, noTokenID)
	s.mu.Unlock()

	return s.feed.Unsubscribe(ctx, yesTokenID, noTokenID)
}

// GetBestPrices returns the current best-price view for a market.
func (s *Service) GetBestPrices(marketID string) (orderbook.BestPrices, bool) {
	mb, ok := s.store.MarketBook(marketID)
	if !ok {
		return orderbook.BestPrices{}, false
	}
	return mb.Snapshot(), true
}

// GetDepth returns up to n levels per side for a market's two legs.
func (s *Service) GetDepth(marketID string, n int) (yesBids, yesAsks, noBids, noAsks []orderbook.Level, ok bool) {
	mb, found := s.store.MarketBook(marketID)
	if !found || mb.YesBook == nil || mb.NoBook == nil {
		return nil, nil, nil, nil, false
	}
	return mb.YesBook.BidDepth(n), mb.YesBook.AskDepth(n), mb.NoBook.BidDepth(n), mb.NoBook.AskDepth(n), true
}

// GetArbitrageInfo returns the current combined ask / spread for a market.
func (s *Service) GetArbitrageInfo(marketID string) (orderbook.BestPrices, bool) {
	return s.GetBestPrices(marketID)
}

// IsMarketStale reports whether a market hasn't received an update within
// staleThreshold on either leg.
func (s *Service) IsMarketStale(marketID string) bool {
	yesTokenID, noTokenID, ok := s.store.TokensForMarket(marketID)
	if !ok {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.lastUpdate[yesTokenID]
	if s.lastUpdate[noTokenID].After(latest) {
		latest = s.lastUpdate[noTokenID]
	}
	return time.Since(latest) > s.staleThreshold
}

func (s *Service) consumeMessages() {
	defer s.wg.Done()
	messages := s.feed.Messages()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.applyMessage(msg)
		}
	}
}

func (s *Service) applyMessage(msg *types.OrderbookMessage) {
	book := s.store.BookFor(msg.AssetID)

	switch msg.EventType {
	case "book":
		bids, err := decodeLevels(msg.Bids)
		if err != nil {
			s.logger.Warn("marketdata: malformed book bids", zap.Error(err), zap.String("asset-id", msg.AssetID))
			return
		}
		asks, err := decodeLevels(msg.Asks)
		if err != nil {
			s.logger.Warn("marketdata: malformed book asks", zap.Error(err), zap.String("asset-id", msg.AssetID))
			return
		}
		book.ApplySnapshot(bids, asks)
	case "price_change":
		for _, lvl := range msg.Bids {
			price, size, err := lvl.Decimal()
			if err != nil {
				continue
			}
			book.UpdateBid(price, size)
		}
		for _, lvl := range msg.Asks {
			price, size, err := lvl.Decimal()
			if err != nil {
				continue
			}
			book.UpdateAsk(price, size)
		}
	default:
		return
	}

	s.mu.Lock()
	s.lastUpdate[msg.AssetID] = time.Now()
	marketID, known := s.marketOfYes[msg.AssetID]
	if !known {
		marketID, known = s.marketOfNo[msg.AssetID]
	}
	s.mu.Unlock()

	if !known {
		return
	}

	mb, ok := s.store.MarketBook(marketID)
	if !ok {
		return
	}
	s.bus.Publish(eventbus.MarketOrderbookChannel(marketID), "marketdata", mb.Snapshot())
}

func decodeLevels(levels []types.PriceLevel) ([]orderbook.Level, error) {
	out := make([]orderbook.Level, 0, len(levels))
	for _, lvl := range levels {
		price, size, err := lvl.Decimal()
		if err != nil {
			return nil, err
		}
		out = append(out, orderbook.Level{Price: price, Size: size})
	}
	return out, nil
}

func (s *Service) monitorStaleness() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, marketID := range s.store.RegisteredMarkets() {
				if s.IsMarketStale(marketID) {
					s.bus.Publish(eventbus.MarketStaleChannel(marketID), "marketdata", marketID)
				}
			}
		}
	}
}
