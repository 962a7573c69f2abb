package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/pkg/types"
)

// executeDualLeg builds YES-BUY and NO-BUY requests from an ARBITRAGE
// signal and submits them concurrently as a single atomic-intent group,
// then applies the outcome policy (success / partial-with-unwind /
// failed) and, on unequal fills, the optional rebalance step.
func (e *Engine) executeDualLeg(ctx context.Context, qs *QueuedSignal) {
	sig := qs.Signal

	// Share-equalized sizing: both legs buy the same number of shares,
	// shares = approved_size_usd / (p_yes + p_no), so the position is
	// hedged (equal YES/NO size) regardless of how the two prices differ.
	shares := sig.ApprovedSizeUSD.Div(sig.YesPrice.Add(sig.NoPrice))
	yesReq := OrderRequest{
		MarketID: sig.MarketID, TokenID: sig.YesTokenID, Side: types.SideBuy, Outcome: types.OutcomeYes,
		OrderType: types.OrderTypeGTC, Price: sig.YesPrice,
		Size: shares,
	}
	noReq := OrderRequest{
		MarketID: sig.MarketID, TokenID: sig.NoTokenID, Side: types.SideBuy, Outcome: types.OutcomeNo,
		OrderType: types.OrderTypeGTC, Price: sig.NoPrice,
		Size: shares,
	}

	e.bus.Publish(eventbus.ChanDualLegStarted, "execution", sig.SignalID)

	type legResult struct {
		order *types.Order
	}
	yesCh := make(chan legResult, 1)
	noCh := make(chan legResult, 1)

	go func() { yesCh <- legResult{e.executeSingle(ctx, qs, yesReq)} }()
	go func() { noCh <- legResult{e.executeSingle(ctx, qs, noReq)} }()

	yesResult := <-yesCh
	noResult := <-noCh

	yesFilled := yesResult.order.Status == types.OrderStatusFilled || yesResult.order.Status == types.OrderStatusPartiallyFilled
	noFilled := noResult.order.Status == types.OrderStatusFilled || noResult.order.Status == types.OrderStatusPartiallyFilled

	switch {
	case yesFilled && noFilled:
		e.onDualLegSuccess(qs, yesResult.order, noResult.order)
	case yesFilled && !noFilled:
		e.onDualLegPartial(ctx, qs, yesResult.order, noResult.order)
	case !yesFilled && noFilled:
		e.onDualLegPartial(ctx, qs, noResult.order, yesResult.order)
	default:
		e.bus.Publish(eventbus.ChanDualLegFailed, "execution", sig.SignalID)
		qs.Status = "failed"
	}
}

// onDualLegSuccess builds the resulting Position, optionally rebalances
// unequal fills, and emits position.opened.
func (e *Engine) onDualLegSuccess(qs *QueuedSignal, yesOrder, noOrder *types.Order) {
	sig := qs.Signal
	pos := &types.Position{
		PositionID:  qs.SignalID,
		MarketID:    sig.MarketID,
		ConditionID: sig.ConditionID,
		YesTokenID:  sig.YesTokenID,
		NoTokenID:   sig.NoTokenID,
		YesSize:     yesOrder.FilledSize,
		NoSize:      noOrder.FilledSize,
		YesAvgPrice: yesOrder.Price,
		NoAvgPrice:  noOrder.Price,
		Status:      types.PositionOpen,
		OpenedAt:    time.Now(),
	}

	if e.cfg.RebalanceEnabled && !pos.YesSize.Equal(pos.NoSize) {
		e.rebalance(pos)
	}

	e.bus.Publish(eventbus.ChanDualLegCompleted, "execution", qs.SignalID)
	e.bus.Publish(eventbus.ChanPositionOpened, "execution", *pos)
}

// onDualLegPartial handles one leg filled and the other not: it attempts
// to unwind the filled leg at best bid with bounded slippage. On unwind
// success the net result is a flat position (fees/slippage cost only);
// on failure the filled leg's position is kept open and an alert fires.
func (e *Engine) onDualLegPartial(ctx context.Context, qs *QueuedSignal, filled, unfilled *types.Order) {
	e.bus.Publish(eventbus.ChanDualLegPartial, "execution", qs.SignalID)

	bid, _, err := e.ex.BestBidAsk(ctx, filled.TokenID)
	if err != nil {
		e.logger.Warn("unwind: could not fetch best bid", zap.String("signal_id", qs.SignalID), zap.Error(err))
		e.alertUnhedgedLeg(qs, filled)
		return
	}

	unwindReq := OrderRequest{
		MarketID:  filled.MarketID,
		TokenID:   filled.TokenID,
		Side:      types.SideSell,
		Outcome:   filled.Outcome,
		OrderType: types.OrderTypeFOK,
		Price:     bid,
		Size:      filled.FilledSize,
	}

	unwindOrder := e.executeSingle(ctx, qs, unwindReq)
	if unwindOrder.Status != types.OrderStatusFilled {
		e.alertUnhedgedLeg(qs, filled)
		return
	}

	UnwindTotal.WithLabelValues("success").Inc()
}

func (e *Engine) alertUnhedgedLeg(qs *QueuedSignal, filled *types.Order) {
	UnwindTotal.WithLabelValues("failed").Inc()
	e.bus.Publish(eventbus.ChanSettlementAlert, "execution", map[string]string{
		"signal_id": qs.SignalID,
		"reason":    "unwind_failed_unhedged_leg_remains",
		"token_id":  filled.TokenID,
	})
}

// rebalance handles unequal fills on an otherwise-successful dual-leg
// execution. When hedge_ratio falls below min_hedge_ratio, it compares
// buying the deficit leg against selling the excess from the over-filled
// leg and takes whichever yields the higher resulting guaranteed_pnl;
// ties favor buying the deficit (keeps both legs growing rather than
// shrinking the position). Skips if neither action is available at an
// acceptable price.
func (e *Engine) rebalance(pos *types.Position) {
	if pos.HedgeRatio().GreaterThanOrEqual(e.cfg.MinHedgeRatio) {
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.OrderTimeout)
	defer cancel()

	deficitIsYes := pos.YesSize.LessThan(pos.NoSize)
	deficitTokenID, excessTokenID := pos.NoTokenID, pos.YesTokenID
	if deficitIsYes {
		deficitTokenID, excessTokenID = pos.YesTokenID, pos.NoTokenID
	}

	_, deficitAsk, errAsk := e.ex.BestBidAsk(ctx, deficitTokenID)
	excessBid, _, errBid := e.ex.BestBidAsk(ctx, excessTokenID)

	deficitQty := pos.YesSize.Sub(pos.NoSize).Abs()
	deficitRefPrice := pos.NoAvgPrice
	excessRefPrice := pos.YesAvgPrice
	if deficitIsYes {
		deficitRefPrice, excessRefPrice = pos.YesAvgPrice, pos.NoAvgPrice
	}

	buyDeficitPnL, canBuy := rebalanceCandidatePnL(pos, deficitQty, deficitAsk, deficitRefPrice, e.cfg.MaxUnwindSlippage, errAsk == nil, true)
	sellExcessPnL, canSell := rebalanceCandidatePnL(pos, deficitQty, excessBid, excessRefPrice, e.cfg.MaxUnwindSlippage, errBid == nil, false)

	switch {
	case canBuy && (!canSell || buyDeficitPnL.GreaterThanOrEqual(sellExcessPnL)):
		e.applyRebalanceBuyDeficit(ctx, pos, deficitIsYes, deficitTokenID, deficitAsk)
	case canSell:
		e.applyRebalanceSellExcess(ctx, pos, deficitIsYes, excessTokenID, excessBid)
	}
}

// rebalanceCandidatePnL estimates the resulting guaranteed_pnl of either
// rebalance action without mutating pos: buying means the matched
// portion grows to max(yes,no) at the new price; selling means the
// excess is liquidated and only the already-matched portion counts,
// recovering `proceeds - refPrice*qty` of its original cost. A candidate
// is unavailable if its price feed errored, the price is non-positive,
// or it moves more than MaxUnwindSlippage away from the leg's average
// entry price.
func rebalanceCandidatePnL(pos *types.Position, qty, price, refPrice, maxSlippage decimal.Decimal, priceAvailable, buying bool) (decimal.Decimal, bool) {
	if !priceAvailable || price.LessThanOrEqual(decimal.Zero) || qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	if refPrice.IsPositive() {
		slippage := price.Sub(refPrice).Div(refPrice).Abs()
		if slippage.GreaterThan(maxSlippage) {
			return decimal.Zero, false
		}
	}

	matched := decimal.Min(pos.YesSize, pos.NoSize)
	matchedCost := matched.Mul(pos.YesAvgPrice).Add(matched.Mul(pos.NoAvgPrice))
	current := matched.Sub(matchedCost)

	if buying {
		newMatched := matched.Add(qty)
		newCost := matchedCost.Add(qty.Mul(price))
		return newMatched.Sub(newCost), true
	}
	// Selling excess recovers `price` per unit against the capital already
	// sunk into it at its average entry price; it doesn't change the
	// matched portion's pnl directly but frees capital at proceeds-cost.
	recovered := qty.Mul(price).Sub(qty.Mul(refPrice))
	return current.Add(recovered), true
}

func (e *Engine) applyRebalanceBuyDeficit(ctx context.Context, pos *types.Position, deficitIsYes bool, tokenID string, ask decimal.Decimal) {
	deficit := pos.NoSize.Sub(pos.YesSize).Abs()
	req := OrderRequest{MarketID: pos.MarketID, TokenID: tokenID, Side: types.SideBuy, OrderType: types.OrderTypeFOK, Price: ask, Size: deficit}
	order := e.executeSingle(ctx, &QueuedSignal{SignalID: pos.PositionID + "-rebalance", Latency: &ExecutionLatency{}}, req)
	if order.Status != types.OrderStatusFilled {
		return
	}
	if deficitIsYes {
		pos.YesSize = pos.YesSize.Add(order.FilledSize)
	} else {
		pos.NoSize = pos.NoSize.Add(order.FilledSize)
	}
	RebalanceTotal.WithLabelValues("buy_deficit").Inc()
}

func (e *Engine) applyRebalanceSellExcess(ctx context.Context, pos *types.Position, deficitIsYes bool, tokenID string, bid decimal.Decimal) {
	excess := pos.YesSize.Sub(pos.NoSize).Abs()
	req := OrderRequest{MarketID: pos.MarketID, TokenID: tokenID, Side: types.SideSell, OrderType: types.OrderTypeFOK, Price: bid, Size: excess}
	order := e.executeSingle(ctx, &QueuedSignal{SignalID: pos.PositionID + "-rebalance", Latency: &ExecutionLatency{}}, req)
	if order.Status != types.OrderStatusFilled {
		return
	}
	if deficitIsYes {
		pos.NoSize = pos.NoSize.Sub(order.FilledSize)
	} else {
		pos.YesSize = pos.YesSize.Sub(order.FilledSize)
	}
	RebalanceTotal.WithLabelValues("sell_excess").Inc()
}
