// Package settlement periodically sweeps positions awaiting market
// resolution, claims winnings on-chain once resolved, and retries failed
// claims on an exponential backoff ladder with jitter. Grounded on the
// teacher's redeem-positions command (cmd/redeem_positions.go): same
// fetch-positions/filter-settled/redeem-and-report shape, turned into a
// background loop instead of a one-shot CLI, and on pkg/websocket's
// ReconnectManager for the backoff-with-jitter algorithm.
package settlement

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/pkg/types"
)

// MarketInfo is the resolution state of a binary market.
type MarketInfo struct {
	Resolved   bool
	Resolution types.Outcome // zero value when unresolved
	EndTime    time.Time
}

// MarketInfoSource answers whether and how a market resolved. The manager
// caches only resolved results, per spec.md's never-cache-unresolved rule
// (the cache itself lives in the concrete pkg/marketinfo adapter).
type MarketInfoSource interface {
	GetMarketInfo(ctx context.Context, conditionID string) (MarketInfo, error)
}

// RedemptionResult is the outcome of an on-chain redeemPositions call.
type RedemptionResult struct {
	Success     bool
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	Err         error
}

// RedemptionClient submits the CTF contract's redeemPositions call.
type RedemptionClient interface {
	RedeemPositions(ctx context.Context, conditionID string, indexSets []int) (RedemptionResult, error)
}

// Store is the subset of internal/statestore the settlement manager reads
// and writes.
type Store interface {
	ClaimableSettlements(ctx context.Context, maxAttempts int, minTimeSinceEnd time.Duration) ([]*types.SettlementQueueEntry, error)
	EnqueueSettlement(ctx context.Context, entry *types.SettlementQueueEntry) error
	RecordClaimAttempt(ctx context.Context, positionID string, claimErr string, nextRetryAt time.Time) (int, error)
	MarkClaimed(ctx context.Context, positionID string, proceeds, profit decimal.Decimal) error
	MarkSettlementFailed(ctx context.Context, positionID string, reason string) error
	RecordRealizedPnL(ctx context.Context, entry types.RealizedPnlEntry) error
}

// Config holds the manager's tunables, mirroring the settlement.* and
// mercury.dry_run configuration surface.
type Config struct {
	Logger                *zap.Logger
	Bus                    *eventbus.Bus
	Store                  Store
	MarketInfo             MarketInfoSource
	Redemption             RedemptionClient
	DryRun                 bool
	CheckInterval          time.Duration
	ResolutionWait         time.Duration
	MaxClaimAttempts       int
	RetryInitialDelay      time.Duration
	RetryMaxDelay          time.Duration
	RetryExponentialBase   float64
	RetryJitter            bool
	AlertAfterFailures     int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:        300 * time.Second,
		ResolutionWait:       600 * time.Second,
		MaxClaimAttempts:     5,
		RetryInitialDelay:    60 * time.Second,
		RetryMaxDelay:        3600 * time.Second,
		RetryExponentialBase: 2.0,
		RetryJitter:          true,
		AlertAfterFailures:   3,
	}
}

// Manager runs the periodic settlement check loop.
type Manager struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	store  Store
	market MarketInfoSource
	redeem RedemptionClient
	cfg    Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. Call Start to begin the periodic sweep.
func New(cfg Config) *Manager {
	return &Manager{
		logger: cfg.Logger,
		bus:    cfg.Bus,
		store:  cfg.Store,
		market: cfg.MarketInfo,
		redeem: cfg.Redemption,
		cfg:    cfg,
	}
}

// Start subscribes to position.opened (to queue new positions for
// settlement) and launches the periodic check loop.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.bus.Subscribe(eventbus.ChanPositionOpened, m.onPositionOpened)

	m.wg.Add(1)
	go m.loop(runCtx)
}

// Stop cancels the check loop and waits for the in-flight cycle to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// RunOnce runs a single claim-check cycle synchronously and returns once it
// completes, for one-shot manual sweeps (the redeem CLI command) as
// opposed to the periodic background loop Start launches.
func (m *Manager) RunOnce(ctx context.Context) {
	m.runCycle(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	m.runCycle(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// onPositionOpened queues a just-opened hedged position for settlement.
// Each leg (YES and NO) is queued as its own claim entry, since the CTF
// redeemPositions call redeems one index set at a time.
func (m *Manager) onPositionOpened(evt eventbus.Event) {
	pos, ok := evt.Payload.(types.Position)
	if !ok {
		return
	}

	ctx := context.Background()
	now := time.Now().UTC()

	legs := []struct {
		side  types.Outcome
		size  decimal.Decimal
		price decimal.Decimal
	}{
		{types.OutcomeYes, pos.YesSize, pos.YesAvgPrice},
		{types.OutcomeNo, pos.NoSize, pos.NoAvgPrice},
	}

	for _, leg := range legs {
		if leg.size.IsZero() {
			continue
		}
		entry := &types.SettlementQueueEntry{
			PositionID:       positionLegID(pos.PositionID, leg.side),
			ParentPositionID: pos.PositionID,
			MarketID:         pos.MarketID,
			ConditionID:      pos.ConditionID,
			Side:             leg.side,
			Size:             leg.size,
			EntryPrice:       leg.price,
			EntryCost:        leg.size.Mul(leg.price),
			MarketEndTime:    pos.OpenedAt, // position open time; never replaced by the market's end_time
			Status:           types.SettlementPending,
			NextRetryAt:      now,
		}
		if err := m.store.EnqueueSettlement(ctx, entry); err != nil {
			m.logger.Error("enqueue-settlement-failed",
				zap.String("position-id", pos.PositionID), zap.Error(err))
			continue
		}
		m.bus.Publish(eventbus.ChanSettlementQueued, "settlement", *entry)
	}
}

func positionLegID(positionID string, side types.Outcome) string {
	return fmt.Sprintf("%s-%s", positionID, side)
}

// runCycle implements check_settlements(): fetch claimable entries, try to
// claim each, and never let one entry's failure stop the rest.
func (m *Manager) runCycle(ctx context.Context) {
	entries, err := m.store.ClaimableSettlements(ctx, m.cfg.MaxClaimAttempts, m.cfg.ResolutionWait)
	if err != nil {
		m.logger.Error("claimable-settlements-query-failed", zap.Error(err))
		return
	}

	CycleEntriesGauge.Set(float64(len(entries)))

	for _, entry := range entries {
		m.processEntry(ctx, entry)
	}
}

func (m *Manager) processEntry(ctx context.Context, entry *types.SettlementQueueEntry) {
	info, err := m.market.GetMarketInfo(ctx, entry.ConditionID)
	if err != nil {
		m.logger.Warn("market-info-lookup-failed",
			zap.String("position-id", entry.PositionID), zap.Error(err))
		m.handleClaimFailure(ctx, entry, err)
		return
	}

	if !info.Resolved {
		m.logger.Debug("market-not-yet-resolved", zap.String("position-id", entry.PositionID))
		return
	}

	proceeds, profit := computeProceeds(entry, info.Resolution)

	if m.cfg.DryRun {
		m.markClaimed(ctx, entry, proceeds, profit)
		return
	}

	result, err := m.redeem.RedeemPositions(ctx, entry.ConditionID, indexSetsFor(entry.Side))
	if err != nil || !result.Success {
		claimErr := err
		if claimErr == nil {
			claimErr = result.Err
		}
		if claimErr == nil {
			claimErr = fmt.Errorf("redemption unsuccessful")
		}
		m.handleClaimFailure(ctx, entry, claimErr)
		return
	}

	m.markClaimed(ctx, entry, proceeds, profit)
}

func (m *Manager) markClaimed(ctx context.Context, entry *types.SettlementQueueEntry, proceeds, profit decimal.Decimal) {
	if err := m.store.MarkClaimed(ctx, entry.PositionID, proceeds, profit); err != nil {
		m.logger.Error("mark-claimed-failed", zap.String("position-id", entry.PositionID), zap.Error(err))
		return
	}
	if err := m.store.RecordRealizedPnL(ctx, types.RealizedPnlEntry{
		TradeID:   entry.PositionID,
		TradeDate: time.Now().UTC(),
		PnLAmount: profit,
		PnLType:   types.PnLSettlement,
	}); err != nil {
		m.logger.Error("record-realized-pnl-failed", zap.String("position-id", entry.PositionID), zap.Error(err))
	}
	ClaimsTotal.WithLabelValues("success").Inc()
	m.bus.Publish(eventbus.ChanSettlementClaimed, "settlement", *entry)
}

// computeProceeds implements spec.md's proceeds/profit computation: the
// winning side redeems 1:1, the losing side redeems to zero.
func computeProceeds(entry *types.SettlementQueueEntry, resolution types.Outcome) (proceeds, profit decimal.Decimal) {
	if entry.Side == resolution {
		return entry.Size, entry.Size.Sub(entry.EntryCost)
	}
	return decimal.Zero, entry.EntryCost.Neg()
}

func indexSetsFor(side types.Outcome) []int {
	if side == types.OutcomeYes {
		return []int{1}
	}
	return []int{2}
}

// handleClaimFailure implements _handle_claim_failure: compute the next
// backoff delay, persist the attempt, and alert or permanently fail once
// the configured thresholds are crossed.
func (m *Manager) handleClaimFailure(ctx context.Context, entry *types.SettlementQueueEntry, claimErr error) {
	nextAttempt := entry.ClaimAttempts + 1
	delay := m.backoffDelay(nextAttempt)
	nextRetryAt := time.Now().UTC().Add(delay)

	newAttempts, err := m.store.RecordClaimAttempt(ctx, entry.PositionID, claimErr.Error(), nextRetryAt)
	if err != nil {
		m.logger.Error("record-claim-attempt-failed", zap.String("position-id", entry.PositionID), zap.Error(err))
		newAttempts = nextAttempt
	}

	switch {
	case newAttempts == m.cfg.AlertAfterFailures:
		m.bus.Publish(eventbus.ChanSettlementAlert, "settlement", map[string]string{
			"position_id": entry.PositionID,
			"severity":    "warning",
			"reason":      claimErr.Error(),
		})
	case newAttempts >= m.cfg.MaxClaimAttempts:
		if err := m.store.MarkSettlementFailed(ctx, entry.PositionID, claimErr.Error()); err != nil {
			m.logger.Error("mark-settlement-failed-failed", zap.String("position-id", entry.PositionID), zap.Error(err))
		}
		m.bus.Publish(eventbus.ChanSettlementAlert, "settlement", map[string]string{
			"position_id": entry.PositionID,
			"severity":    "critical",
			"reason":      claimErr.Error(),
		})
	}

	ClaimsTotal.WithLabelValues("failure").Inc()
	m.bus.Publish(eventbus.ChanSettlementFailed, "settlement", map[string]string{
		"position_id": entry.PositionID,
		"reason":      claimErr.Error(),
	})
}

// backoffDelay computes min(initial * base^(attempt-1), max), optionally
// adding up to 25% jitter, mirroring ReconnectManager's algorithm in
// pkg/websocket/reconnect.go.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	raw := float64(m.cfg.RetryInitialDelay) * math.Pow(m.cfg.RetryExponentialBase, float64(attempt-1))
	delay := time.Duration(math.Min(raw, float64(m.cfg.RetryMaxDelay)))

	if m.cfg.RetryJitter {
		jitter := rand.Float64() * 0.25 * float64(delay)
		delay += time.Duration(jitter)
	}
	return delay
}
