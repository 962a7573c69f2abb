package eventbus

import "fmt"

// Channel name constants. These are part of the external contract — every
// producer and consumer in the engine must agree on the literal strings, so
// they're centralized here rather than built ad hoc at each call site.
const (
	ChanMarketDataConnected    = "market.data.connected"
	ChanMarketDataDisconnected = "market.data.disconnected"

	ChanRiskApprovedPrefix = "risk.approved."
	ChanRiskRejectedPrefix = "risk.rejected."
	ChanSignalPrefix       = "signal."

	ChanOrderPending         = "order.pending"
	ChanOrderSubmitted       = "order.submitted"
	ChanOrderFilled          = "order.filled"
	ChanOrderPartiallyFilled = "order.partially_filled"
	ChanOrderRejected        = "order.rejected"
	ChanOrderExpired         = "order.expired"
	ChanOrderCancelled       = "order.cancelled"

	ChanDualLegStarted   = "order.dual_leg.started"
	ChanDualLegCompleted = "order.dual_leg.completed"
	ChanDualLegPartial   = "order.dual_leg.partial"
	ChanDualLegFailed    = "order.dual_leg.failed"

	ChanPositionOpened = "position.opened"
	ChanPositionClosed = "position.closed"

	ChanExecQueueAdded     = "execution.queue.added"
	ChanExecQueueStarted   = "execution.queue.started"
	ChanExecQueueCancelled = "execution.queue.cancelled"
	ChanExecQueueRejected  = "execution.queue.rejected"
	ChanExecLatency        = "execution.latency"
	ChanExecComplete       = "execution.complete"

	ChanSettlementQueued  = "settlement.queued"
	ChanSettlementClaimed = "settlement.claimed"
	ChanSettlementFailed  = "settlement.failed"
	ChanSettlementAlert   = "settlement.alert"

	ChanStrategyEnable  = "system.strategy.enable"
	ChanStrategyDisable = "system.strategy.disable"

	GlobMarketOrderbook = "market.orderbook.*"
	GlobMarketStale     = "market.stale.*"
)

// MarketOrderbookChannel is the per-market orderbook event channel.
func MarketOrderbookChannel(marketID string) string {
	return fmt.Sprintf("market.orderbook.%s", marketID)
}

// MarketStaleChannel is the per-market staleness event channel.
func MarketStaleChannel(marketID string) string {
	return fmt.Sprintf("market.stale.%s", marketID)
}

// SignalChannel is the per-strategy signal channel.
func SignalChannel(strategyName string) string {
	return ChanSignalPrefix + strategyName
}

// RiskApprovedChannel is the per-strategy risk-approval channel.
func RiskApprovedChannel(strategyName string) string {
	return ChanRiskApprovedPrefix + strategyName
}

// RiskRejectedChannel is the per-strategy risk-rejection channel.
func RiskRejectedChannel(strategyName string) string {
	return ChanRiskRejectedPrefix + strategyName
}
