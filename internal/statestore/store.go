package statestore

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/mercury/pkg/types"
)

// Store is the persistence boundary for the trading engine's durable state:
// the circuit breaker's daily record, rollup stats, open/closed positions,
// individual order fills, and the settlement (redemption) queue. It declares
// every method of the narrower interface the risk manager depends on so a
// single backing store satisfies both.
type Store interface {
	GetCircuitBreakerState() (types.CircuitBreakerState, error)
	SaveCircuitBreakerState(types.CircuitBreakerState) error
	GetDailyStats() (types.DailyStats, error)
	CurrentExposureUSD(marketID string) (decimal.Decimal, error)

	SaveDailyStats(types.DailyStats) error
	RecordRealizedPnL(ctx context.Context, entry types.RealizedPnlEntry) error

	SaveTrade(ctx context.Context, order *types.Order) error
	SavePosition(ctx context.Context, pos *types.Position) error
	GetPosition(ctx context.Context, positionID string) (*types.Position, error)
	OpenPositions(ctx context.Context) ([]*types.Position, error)

	EnqueueSettlement(ctx context.Context, entry *types.SettlementQueueEntry) error
	UpdateSettlement(ctx context.Context, entry *types.SettlementQueueEntry) error
	// ClaimableSettlements returns pending entries whose market ended at
	// least minTimeSinceEnd ago, with fewer than maxAttempts claim
	// attempts, and whose next_retry_at has arrived.
	ClaimableSettlements(ctx context.Context, maxAttempts int, minTimeSinceEnd time.Duration) ([]*types.SettlementQueueEntry, error)
	// RecordClaimAttempt persists a failed claim's backoff state and
	// returns the authoritative attempt count after the update.
	RecordClaimAttempt(ctx context.Context, positionID string, claimErr string, nextRetryAt time.Time) (int, error)
	MarkClaimed(ctx context.Context, positionID string, proceeds, profit decimal.Decimal) error
	MarkSettlementFailed(ctx context.Context, positionID string, reason string) error

	Close() error
}
