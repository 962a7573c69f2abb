// Package strategy routes order-book events to registered trading
// strategies and publishes whatever signals they emit. Grounded on the
// upstream arbitrage detector's detection-loop shape, generalized from one
// hardcoded detector into a registry of N pluggable strategies.
package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/pkg/types"
)

// Strategy is the uniform capability every trading strategy implements —
// the compile-time-polymorphic stand-in for the source's runtime-registered
// callables (§9 design note).
type Strategy interface {
	Name() string
	Enabled() bool
	SetEnabled(bool)
	SubscribedMarkets() []string
	OnMarketData(book *orderbook.MarketOrderBook) []types.TradingSignal
}

// Engine holds the strategy registry and market-to-strategy index,
// subscribes to market.orderbook.* and system.strategy.{enable,disable},
// and dispatches to every enabled, subscribed strategy per event.
type Engine struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	store  *orderbook.Store

	mu         sync.RWMutex
	strategies map[string]Strategy
}

// New constructs an Engine. Call Start to begin routing events.
func New(logger *zap.Logger, bus *eventbus.Bus, store *orderbook.Store) *Engine {
	return &Engine{
		logger:     logger,
		bus:        bus,
		store:      store,
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry. Safe to call before or after
// Start.
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Start subscribes the engine to the bus.
func (e *Engine) Start() {
	e.bus.Subscribe(eventbus.GlobMarketOrderbook, e.onMarketOrderbook)
	e.bus.Subscribe(eventbus.ChanStrategyEnable, e.onEnable)
	e.bus.Subscribe(eventbus.ChanStrategyDisable, e.onDisable)
}

func (e *Engine) onMarketOrderbook(evt eventbus.Event) {
	marketID, ok := marketIDFromPayload(evt.Payload)
	if !ok {
		return
	}

	mb, ok := e.store.MarketBook(marketID)
	if !ok {
		return
	}

	e.mu.RLock()
	candidates := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		if !s.Enabled() {
			continue
		}
		for _, m := range s.SubscribedMarkets() {
			if m == marketID || m == "*" {
				candidates = append(candidates, s)
				break
			}
		}
	}
	e.mu.RUnlock()

	for _, s := range candidates {
		e.dispatch(s, mb)
	}
}

// dispatch invokes a strategy and publishes its signals, isolating panics
// and errors so one misbehaving strategy never halts another or the engine.
func (e *Engine) dispatch(s Strategy, mb *orderbook.MarketOrderBook) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("strategy panicked",
				zap.String("strategy", s.Name()),
				zap.Any("recovered", r))
		}
	}()

	signals := s.OnMarketData(mb)
	for _, sig := range signals {
		e.bus.Publish(eventbus.SignalChannel(s.Name()), s.Name(), sig)
	}
}

func (e *Engine) onEnable(evt eventbus.Event) {
	name, ok := evt.Payload.(string)
	if !ok {
		return
	}
	e.mu.RLock()
	s, ok := e.strategies[name]
	e.mu.RUnlock()
	if ok {
		s.SetEnabled(true)
	}
}

func (e *Engine) onDisable(evt eventbus.Event) {
	name, ok := evt.Payload.(string)
	if !ok {
		return
	}
	e.mu.RLock()
	s, ok := e.strategies[name]
	e.mu.RUnlock()
	if ok {
		s.SetEnabled(false)
	}
}

// Healthy reports whether at least one strategy is registered and enabled,
// per the engine's degraded-health rule.
func (e *Engine) Healthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.strategies) == 0 {
		return false
	}
	for _, s := range e.strategies {
		if s.Enabled() {
			return true
		}
	}
	return false
}

func marketIDFromPayload(payload any) (string, bool) {
	switch v := payload.(type) {
	case orderbook.BestPrices:
		return v.MarketID, true
	default:
		return "", false
	}
}
