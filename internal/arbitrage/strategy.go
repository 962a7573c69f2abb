// Package arbitrage implements the "Gabagool" strategy: per-market
// detection of combined_ask < 1, share-equalized position sizing, and
// per-market cooldown. Grounded on the upstream detector's detection loop
// and opportunity's closed-form sizing, generalized from a fixed
// min-size-across-legs split into the spec's share-equalized formula.
package arbitrage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/orderbook"
	"github.com/mselser95/mercury/pkg/types"
)

var (
	one           = decimal.NewFromInt(1)
	hundred       = decimal.NewFromInt(100)
	signalLife    = 30 * time.Second
	confidenceCap = 0.95
)

// Config holds the Gabagool strategy's tunables, mirroring the
// strategies.<name>.* configuration surface.
type Config struct {
	Enabled                bool
	Markets                []string // empty means "all registered markets"
	MinSpreadThreshold      decimal.Decimal
	MaxTradeSizeUSD         decimal.Decimal
	MinTimeRemaining        time.Duration
	MinHedgeRatio           decimal.Decimal
	CriticalHedgeRatio      decimal.Decimal
	SignalCooldown          time.Duration
	BalanceSizingEnabled    bool
	BalanceSizingPct        decimal.Decimal
	GradualEntryMinSpread   decimal.Decimal
	GradualEntryTranches    int
}

// DefaultConfig returns the documented defaults from the strategy tunables.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MinSpreadThreshold: decimal.NewFromFloat(0.015),
		MaxTradeSizeUSD:    decimal.NewFromInt(100),
		MinHedgeRatio:      decimal.NewFromFloat(0.80),
		CriticalHedgeRatio: decimal.NewFromFloat(0.60),
		SignalCooldown:     10 * time.Second,
	}
}

// Strategy implements strategy.Strategy for the Gabagool arbitrage
// detector.
type Strategy struct {
	logger *zap.Logger
	cfg    Config

	mu       sync.RWMutex
	enabled  bool
	cooldown map[string]time.Time // market_id -> cooldown expiry
}

// New constructs the Gabagool strategy.
func New(logger *zap.Logger, cfg Config) *Strategy {
	return &Strategy{
		logger:   logger,
		cfg:      cfg,
		enabled:  cfg.Enabled,
		cooldown: make(map[string]time.Time),
	}
}

func (s *Strategy) Name() string { return "gabagool" }

func (s *Strategy) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *Strategy) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
}

func (s *Strategy) SubscribedMarkets() []string {
	if len(s.cfg.Markets) == 0 {
		return []string{"*"}
	}
	return s.cfg.Markets
}

// OnMarketData detects a combined_ask < 1 opportunity, validates it, sizes
// it, and emits at most one signal per call.
func (s *Strategy) OnMarketData(mb *orderbook.MarketOrderBook) []types.TradingSignal {
	if mb.YesBook == nil || mb.NoBook == nil {
		return nil
	}

	yesAsk, _, okY := mb.YesBook.BestAsk()
	noAsk, _, okN := mb.NoBook.BestAsk()
	if !okY || !okN {
		return nil
	}

	combinedAsk := yesAsk.Add(noAsk)
	if !combinedAsk.LessThan(one) {
		SignalsRejectedTotal.WithLabelValues("no_opportunity").Inc()
		return nil
	}

	spread := one.Sub(combinedAsk)
	if !s.validate(mb.MarketID, spread, yesAsk, noAsk) {
		SignalsRejectedTotal.WithLabelValues("validation_failed").Inc()
		return nil
	}

	sig := s.buildSignal(mb.MarketID, mb.ConditionID, mb.YesBook.TokenID(), mb.NoBook.TokenID(), yesAsk, noAsk, spread, combinedAsk)
	if sig == nil {
		SignalsRejectedTotal.WithLabelValues("degenerate_sizing").Inc()
		return nil
	}

	s.mu.Lock()
	s.cooldown[mb.MarketID] = time.Now().Add(s.cfg.SignalCooldown)
	s.mu.Unlock()

	SignalsEmittedTotal.Inc()
	SpreadCentsObserved.Observe(mustFloat(spread.Mul(hundred)))

	return []types.TradingSignal{*sig}
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func (s *Strategy) validate(marketID string, spread, yesAsk, noAsk decimal.Decimal) bool {
	threshold := s.cfg.MinSpreadThreshold
	if threshold.IsZero() {
		threshold = DefaultConfig().MinSpreadThreshold
	}
	if !spread.GreaterThan(threshold) {
		return false
	}
	if yesAsk.LessThanOrEqual(decimal.Zero) || yesAsk.GreaterThanOrEqual(one) {
		return false
	}
	if noAsk.LessThanOrEqual(decimal.Zero) || noAsk.GreaterThanOrEqual(one) {
		return false
	}

	s.mu.RLock()
	expiry, onCooldown := s.cooldown[marketID]
	s.mu.RUnlock()
	if onCooldown && time.Now().Before(expiry) {
		return false
	}
	return true
}

// SizeShareEqualized computes the share-equalized (a_y, a_n) split of
// budget B across prices (p_y, p_n): closed form a_y = B*p_y/(p_y+p_n),
// a_n = B*p_n/(p_y+p_n), so a_y/p_y == a_n/p_n (equal share counts per
// leg). Returns (0,0) for non-positive or degenerate prices.
func SizeShareEqualized(budget, priceYes, priceNo decimal.Decimal) (amountYes, amountNo decimal.Decimal) {
	denom := priceYes.Add(priceNo)
	if priceYes.LessThanOrEqual(decimal.Zero) || priceNo.LessThanOrEqual(decimal.Zero) || denom.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}
	amountYes = budget.Mul(priceYes).Div(denom)
	amountNo = budget.Mul(priceNo).Div(denom)
	return amountYes, amountNo
}

func (s *Strategy) buildSignal(marketID, conditionID, yesTokenID, noTokenID string, yesAsk, noAsk, spread, combinedAsk decimal.Decimal) *types.TradingSignal {
	budget := s.cfg.MaxTradeSizeUSD
	if budget.LessThanOrEqual(decimal.Zero) {
		budget = DefaultConfig().MaxTradeSizeUSD
	}

	amountYes, amountNo := SizeShareEqualized(budget, yesAsk, noAsk)
	if amountYes.IsZero() && amountNo.IsZero() {
		return nil
	}

	sharesYes := amountYes.Div(yesAsk)
	sharesNo := amountNo.Div(noAsk)
	matched := decimal.Min(sharesYes, sharesNo)
	cost := amountYes.Add(amountNo)
	expectedPnL := matched.Sub(cost)

	spreadCents := spread.Mul(hundred)
	now := time.Now()

	sig := types.TradingSignal{
		SignalID:      uuid.New().String(),
		StrategyName:  s.Name(),
		MarketID:      marketID,
		ConditionID:   conditionID,
		SignalType:    types.SignalArbitrage,
		Priority:      priorityFromSpreadCents(spreadCents),
		Confidence:    confidenceFromSpreadCents(spreadCents),
		TargetSizeUSD: cost,
		YesPrice:      yesAsk,
		NoPrice:       noAsk,
		YesTokenID:    yesTokenID,
		NoTokenID:     noTokenID,
		ExpectedPnL:   expectedPnL,
		CreatedAt:     now,
		ExpiresAt:     now.Add(signalLife),
		Metadata: map[string]string{
			"combined_ask": combinedAsk.String(),
			"spread":       spread.String(),
		},
	}
	return &sig
}

// priorityFromSpreadCents derives a signal's priority from spread_cents:
// >=4 CRITICAL, >=3 HIGH, >=2 MEDIUM, else LOW.
func priorityFromSpreadCents(spreadCents decimal.Decimal) types.Priority {
	switch {
	case spreadCents.GreaterThanOrEqual(decimal.NewFromInt(4)):
		return types.PriorityCritical
	case spreadCents.GreaterThanOrEqual(decimal.NewFromInt(3)):
		return types.PriorityHigh
	case spreadCents.GreaterThanOrEqual(decimal.NewFromInt(2)):
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

// confidenceFromSpreadCents is a bounded monotone function of spread_cents,
// capped at 0.95: each additional cent of spread adds 0.1 confidence over a
// 0.5 floor, saturating at the cap.
func confidenceFromSpreadCents(spreadCents decimal.Decimal) float64 {
	cents, _ := spreadCents.Float64()
	conf := 0.5 + 0.1*cents
	if conf > confidenceCap {
		conf = confidenceCap
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
