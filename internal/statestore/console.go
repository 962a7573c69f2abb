package statestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/pkg/types"
)

// ConsoleStore implements Store entirely in memory, pretty-printing trades
// and position lifecycle events to stdout. Used when no DATABASE_URL is
// configured, e.g. local dry runs.
type ConsoleStore struct {
	logger *zap.Logger

	mu          sync.Mutex
	breaker     types.CircuitBreakerState
	stats       types.DailyStats
	positions   map[string]*types.Position
	settlements map[string]*types.SettlementQueueEntry
}

// NewConsoleStore constructs a ConsoleStore seeded with a NORMAL breaker
// state dated today.
func NewConsoleStore(logger *zap.Logger) *ConsoleStore {
	logger.Info("console-statestore-initialized")
	return &ConsoleStore{
		logger:      logger,
		breaker:     types.CircuitBreakerState{Date: time.Now().UTC(), Level: types.BreakerNormal},
		stats:       types.DailyStats{Date: time.Now().UTC()},
		positions:   make(map[string]*types.Position),
		settlements: make(map[string]*types.SettlementQueueEntry),
	}
}

func (c *ConsoleStore) GetCircuitBreakerState() (types.CircuitBreakerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breaker, nil
}

func (c *ConsoleStore) SaveCircuitBreakerState(st types.CircuitBreakerState) error {
	c.mu.Lock()
	c.breaker = st
	c.mu.Unlock()
	fmt.Printf("[breaker] level=%s realized_pnl=%s hit=%v trades_today=%d consecutive_fails=%d\n",
		st.Level, st.RealizedPnL.StringFixed(2), st.CircuitBreakerHit, st.TotalTradesToday, st.ConsecutiveFails)
	return nil
}

func (c *ConsoleStore) GetDailyStats() (types.DailyStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats, nil
}

func (c *ConsoleStore) SaveDailyStats(ds types.DailyStats) error {
	c.mu.Lock()
	c.stats = ds
	c.mu.Unlock()
	return nil
}

func (c *ConsoleStore) CurrentExposureUSD(marketID string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, p := range c.positions {
		if marketID != "" && p.MarketID != marketID {
			continue
		}
		if p.Status != types.PositionOpen && p.Status != types.PositionPendingSettlement {
			continue
		}
		total = total.Add(p.YesSize.Mul(p.YesAvgPrice)).Add(p.NoSize.Mul(p.NoAvgPrice))
	}
	return total, nil
}

func (c *ConsoleStore) RecordRealizedPnL(_ context.Context, entry types.RealizedPnlEntry) error {
	fmt.Printf("[pnl] trade=%s type=%s amount=%s %s\n",
		entry.TradeID, entry.PnLType, entry.PnLAmount.StringFixed(4), entry.Notes)
	return nil
}

func (c *ConsoleStore) SaveTrade(_ context.Context, o *types.Order) error {
	fmt.Printf("[trade] %s %s %s %s %s filled=%s/%s @ %s\n",
		o.OrderID[:min(8, len(o.OrderID))], o.Side, o.Outcome, o.OrderType, o.Status,
		o.FilledSize.StringFixed(2), o.RequestedSize.StringFixed(2), o.Price.StringFixed(4))
	return nil
}

func (c *ConsoleStore) SavePosition(_ context.Context, p *types.Position) error {
	c.mu.Lock()
	c.positions[p.PositionID] = p
	c.mu.Unlock()
	fmt.Println("\n" + "────────────────────────────────────────────────────────────")
	fmt.Printf("POSITION %s  [%s]\n", p.PositionID[:min(8, len(p.PositionID))], p.Status)
	fmt.Printf("  Market:  %s\n", p.MarketID)
	fmt.Printf("  YES:     %s @ %s\n", p.YesSize.StringFixed(2), p.YesAvgPrice.StringFixed(4))
	fmt.Printf("  NO:      %s @ %s\n", p.NoSize.StringFixed(2), p.NoAvgPrice.StringFixed(4))
	fmt.Printf("  Realized P&L: %s\n", p.RealizedPnL.StringFixed(4))
	fmt.Println("────────────────────────────────────────────────────────────")
	return nil
}

func (c *ConsoleStore) GetPosition(_ context.Context, positionID string) (*types.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions[positionID], nil
}

func (c *ConsoleStore) OpenPositions(_ context.Context) ([]*types.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.Position
	for _, p := range c.positions {
		if p.Status == types.PositionOpen || p.Status == types.PositionPendingSettlement {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *ConsoleStore) EnqueueSettlement(_ context.Context, e *types.SettlementQueueEntry) error {
	c.mu.Lock()
	c.settlements[e.PositionID] = e
	c.mu.Unlock()
	fmt.Printf("[settlement] queued position=%s condition=%s next_attempt=%s\n",
		e.PositionID[:min(8, len(e.PositionID))], e.ConditionID, e.NextRetryAt.Format(time.RFC3339))
	return nil
}

func (c *ConsoleStore) UpdateSettlement(_ context.Context, e *types.SettlementQueueEntry) error {
	c.mu.Lock()
	c.settlements[e.PositionID] = e
	c.mu.Unlock()
	fmt.Printf("[settlement] position=%s status=%s attempts=%d\n", e.PositionID[:min(8, len(e.PositionID))], e.Status, e.ClaimAttempts)
	return nil
}

func (c *ConsoleStore) ClaimableSettlements(_ context.Context, maxAttempts int, minTimeSinceEnd time.Duration) ([]*types.SettlementQueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*types.SettlementQueueEntry
	now := time.Now().UTC()
	for _, e := range c.settlements {
		if e.Status != types.SettlementPending {
			continue
		}
		if e.ClaimAttempts >= maxAttempts {
			continue
		}
		if now.Sub(e.MarketEndTime) < minTimeSinceEnd {
			continue
		}
		if e.NextRetryAt.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *ConsoleStore) RecordClaimAttempt(_ context.Context, positionID, claimErr string, nextRetryAt time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.settlements[positionID]
	if !ok {
		return 0, fmt.Errorf("no settlement queue entry for position %s", positionID)
	}
	e.ClaimAttempts++
	e.LastClaimError = claimErr
	e.NextRetryAt = nextRetryAt
	return e.ClaimAttempts, nil
}

func (c *ConsoleStore) MarkClaimed(_ context.Context, positionID string, proceeds, profit decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.settlements[positionID]
	if !ok {
		return fmt.Errorf("no settlement queue entry for position %s", positionID)
	}
	now := time.Now().UTC()
	e.Status = types.SettlementClaimed
	e.ClaimedAt = &now
	e.ClaimProceeds = proceeds
	e.ClaimProfit = profit
	fmt.Printf("[settlement] claimed position=%s proceeds=%s profit=%s\n",
		positionID[:min(8, len(positionID))], proceeds.StringFixed(2), profit.StringFixed(2))
	return nil
}

func (c *ConsoleStore) MarkSettlementFailed(_ context.Context, positionID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.settlements[positionID]
	if !ok {
		return fmt.Errorf("no settlement queue entry for position %s", positionID)
	}
	e.Status = types.SettlementFailed
	e.LastClaimError = reason
	fmt.Printf("[settlement] FAILED position=%s reason=%s\n", positionID[:min(8, len(positionID))], reason)
	return nil
}

func (c *ConsoleStore) Close() error {
	c.logger.Info("closing-console-statestore")
	return nil
}
