package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/mercury/internal/eventbus"
	"github.com/mselser95/mercury/pkg/types"
)

// OrderRequest is what the engine asks the exchange adapter to place.
type OrderRequest struct {
	MarketID  string
	TokenID   string
	Side      types.Side
	Outcome   types.Outcome
	OrderType types.OrderType
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// Exchange is the collaborator the engine submits orders through and
// polls for fills. pkg/exchange provides the EIP-712-signing,
// CLOB-API-backed implementation; tests use an in-memory fake.
type Exchange interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	BestBidAsk(ctx context.Context, tokenID string) (bid, ask decimal.Decimal, err error)
}

// Store persists the fills and positions the engine produces. It is the
// same statestore.Store the rest of the engine uses, narrowed to the two
// methods this package calls.
type Store interface {
	SaveTrade(ctx context.Context, o *types.Order) error
	SavePosition(ctx context.Context, p *types.Position) error
}

// Config holds the engine's tunables.
type Config struct {
	Logger            *zap.Logger
	Bus               *eventbus.Bus
	Exchange          Exchange
	Store             Store
	MaxQueueSize      int
	MaxConcurrent     int
	QueueTimeout      time.Duration
	OrderTimeout      time.Duration
	ShutdownGrace     time.Duration
	RebalanceEnabled  bool
	MinHedgeRatio     decimal.Decimal
	MaxUnwindSlippage decimal.Decimal
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:      500,
		MaxConcurrent:     3,
		QueueTimeout:      30 * time.Second,
		OrderTimeout:      15 * time.Second,
		ShutdownGrace:     10 * time.Second,
		RebalanceEnabled:  true,
		MinHedgeRatio:     decimal.NewFromFloat(0.80),
		MaxUnwindSlippage: decimal.NewFromFloat(0.02),
	}
}

// Engine is the queue processor: one goroutine dequeues signals and
// spawns a worker per signal gated by a counting semaphore of capacity
// max_concurrent, mirroring the teacher's channel-loop-plus-spawned-
// goroutine shape in executor.go.
type Engine struct {
	logger *zap.Logger
	bus    *eventbus.Bus
	ex     Exchange
	store  Store
	cfg    Config

	queue *Queue
	sem   chan struct{}

	mu         sync.RWMutex
	tracking   map[string]*QueuedSignal // signal_id -> in-flight record
	openOrders map[string]*types.Order  // order_id -> last known snapshot

	stats *LatencyStats

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine. Call Start to begin processing.
func New(cfg Config) *Engine {
	return &Engine{
		logger:     cfg.Logger,
		bus:        cfg.Bus,
		ex:         cfg.Exchange,
		store:      cfg.Store,
		cfg:        cfg,
		queue:      NewQueue(cfg.MaxQueueSize),
		sem:        make(chan struct{}, cfg.MaxConcurrent),
		tracking:   make(map[string]*QueuedSignal),
		openOrders: make(map[string]*types.Order),
		stats:      NewLatencyStats(2000),
		wake:       make(chan struct{}, 1),
	}
}

// Start subscribes to every strategy's approval channel and launches the
// queue processor.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.bus.Subscribe(eventbus.ChanRiskApprovedPrefix+"*", e.onApproved)
	if e.store != nil {
		e.bus.Subscribe(eventbus.ChanOrderFilled, e.onOrderFilled)
		e.bus.Subscribe(eventbus.ChanOrderPartiallyFilled, e.onOrderFilled)
		e.bus.Subscribe(eventbus.ChanPositionOpened, e.onPositionOpened)
	}

	e.wg.Add(1)
	go e.processorLoop()
}

// onOrderFilled persists a terminal fill. A partial fill still carries a
// non-zero FilledSize and is saved too; SaveTrade overwrites by order_id,
// so a later full fill just updates the row.
func (e *Engine) onOrderFilled(evt eventbus.Event) {
	order, ok := evt.Payload.(types.Order)
	if !ok {
		return
	}
	if err := e.store.SaveTrade(e.ctx, &order); err != nil {
		e.logger.Error("save-trade-failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}
}

func (e *Engine) onPositionOpened(evt eventbus.Event) {
	pos, ok := evt.Payload.(types.Position)
	if !ok {
		return
	}
	if err := e.store.SavePosition(e.ctx, &pos); err != nil {
		e.logger.Error("save-position-failed", zap.String("position_id", pos.PositionID), zap.Error(err))
	}
}

// Stop cancels the processor and waits for in-flight workers up to the
// configured grace window, then returns without waiting further.
func (e *Engine) Stop() {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownGrace):
		e.logger.Warn("execution engine: shutdown grace window elapsed with workers still running")
	}
}

func (e *Engine) onApproved(evt eventbus.Event) {
	approved, ok := evt.Payload.(types.ApprovedSignal)
	if !ok {
		return
	}

	qs := &QueuedSignal{
		SignalID: approved.SignalID,
		Signal:   approved,
		Priority: approved.Priority,
		QueuedAt: time.Now(),
		Latency:  &ExecutionLatency{SignalReceivedAt: approved.ApprovedAt, QueueEnteredAt: time.Now()},
	}

	if err := e.queue.Enqueue(qs); err != nil {
		e.logger.Warn("execution: signal rejected at enqueue", zap.String("signal_id", qs.SignalID), zap.Error(err))
		e.bus.Publish(eventbus.ChanExecQueueRejected, "execution", qs.SignalID)
		return
	}
	e.bus.Publish(eventbus.ChanExecQueueAdded, "execution", qs.SignalID)

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// processorLoop is the single queue-processor task: it dequeues signals
// and spawns a worker per signal once a semaphore permit is available,
// never blocking the dequeue loop itself on a worker's completion.
func (e *Engine) processorLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}

		for {
			qs, ok := e.queue.Dequeue()
			if !ok {
				break
			}
			if time.Since(qs.QueuedAt) > e.cfg.QueueTimeout {
				qs.Status = "expired"
				ExpiredTotal.Inc()
				e.bus.Publish(eventbus.ChanExecQueueCancelled, "execution", qs.SignalID)
				continue
			}

			if !e.startTracking(qs) {
				// A worker for this signal_id is already running; drop the
				// duplicate rather than run two workers against one signal.
				qs.Status = "cancelled"
				e.bus.Publish(eventbus.ChanExecQueueCancelled, "execution", qs.SignalID)
				continue
			}

			select {
			case e.sem <- struct{}{}:
			case <-e.ctx.Done():
				e.stopTracking(qs.SignalID)
				return
			}

			e.wg.Add(1)
			go e.runWorker(qs)
		}
	}
}

// startTracking records qs as in-flight, refusing a second worker for the
// same signal_id. Returns false if one is already running.
func (e *Engine) startTracking(qs *QueuedSignal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tracking[qs.SignalID]; exists {
		return false
	}
	e.tracking[qs.SignalID] = qs
	return true
}

func (e *Engine) stopTracking(signalID string) {
	e.mu.Lock()
	delete(e.tracking, signalID)
	e.mu.Unlock()
}

func (e *Engine) runWorker(qs *QueuedSignal) {
	defer e.wg.Done()
	defer func() { <-e.sem }()
	defer e.stopTracking(qs.SignalID)
	defer func() {
		if r := recover(); r != nil {
			qs.Status = "failed"
			qs.Error = fmt.Errorf("panic: %v", r)
			FailedTotal.Inc()
			e.logger.Error("execution worker panicked", zap.String("signal_id", qs.SignalID), zap.Any("recovered", r))
		}
	}()

	qs.Status = "running"
	qs.StartedAt = time.Now()
	qs.Latency.QueueExitedAt = qs.StartedAt
	e.bus.Publish(eventbus.ChanExecQueueStarted, "execution", qs.SignalID)

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.OrderTimeout)
	defer cancel()

	switch qs.Signal.SignalType {
	case types.SignalArbitrage:
		e.executeDualLeg(ctx, qs)
	default:
		e.executeSingle(ctx, qs, singleLegRequest(qs.Signal))
	}

	qs.CompletedAt = time.Now()
	qs.Latency.FillCompletedAt = qs.CompletedAt
	if qs.Status == "running" {
		qs.Status = "completed"
	}

	totalMs := qs.Latency.TotalLatencyMs()
	e.stats.Record(totalMs)
	ExecutionLatencyHistogram.Observe(totalMs)
	e.bus.Publish(eventbus.ChanExecLatency, "execution", *qs.Latency)
	e.bus.Publish(eventbus.ChanExecComplete, "execution", qs.SignalID)
}

func singleLegRequest(sig types.ApprovedSignal) OrderRequest {
	side, outcome, tokenID, price := types.SideBuy, types.OutcomeYes, sig.YesTokenID, sig.YesPrice
	if sig.SignalType == types.SignalBuyNo {
		outcome, tokenID, price = types.OutcomeNo, sig.NoTokenID, sig.NoPrice
	}
	if sig.SignalType == types.SignalSell {
		side = types.SideSell
	}
	return OrderRequest{
		MarketID:  sig.MarketID,
		TokenID:   tokenID,
		Side:      side,
		Outcome:   outcome,
		OrderType: types.OrderTypeGTC,
		Price:     price,
		Size:      sig.ApprovedSizeUSD.Div(price),
	}
}

// executeSingle drives one order through PENDING -> SUBMITTED -> a
// terminal state, publishing one event per transition.
func (e *Engine) executeSingle(ctx context.Context, qs *QueuedSignal, req OrderRequest) *types.Order {
	order := &types.Order{
		OrderID:       "",
		ClientOrderID: uuid.New().String(),
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Side:          req.Side,
		Outcome:       req.Outcome,
		OrderType:     req.OrderType,
		RequestedSize: req.Size,
		Price:         req.Price,
		Status:        types.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
	e.bus.Publish(eventbus.ChanOrderPending, "execution", *order)

	qs.Latency.SubmissionStartedAt = time.Now()
	placed, err := e.ex.PlaceOrder(ctx, req)
	qs.Latency.SubmissionCompletedAt = time.Now()
	if err != nil {
		order.Status = types.OrderStatusRejected
		order.UpdatedAt = time.Now()
		e.bus.Publish(eventbus.ChanOrderRejected, "execution", *order)
		return order
	}

	order = placed
	order.Status = types.OrderStatusSubmitted
	e.bus.Publish(eventbus.ChanOrderSubmitted, "execution", *order)

	e.mu.Lock()
	e.openOrders[order.OrderID] = order
	e.mu.Unlock()

	final := e.pollToTerminal(ctx, order, req.OrderType)

	e.mu.Lock()
	delete(e.openOrders, order.OrderID)
	e.mu.Unlock()

	e.publishTerminal(final)
	return final
}

// pollToTerminal implements the GTC/FOK polling policies: GTC polls
// until the order leaves the open list or timeout elapses; FOK observes
// briefly then cancels-and-marks-expired if still open.
func (e *Engine) pollToTerminal(ctx context.Context, order *types.Order, orderType types.OrderType) *types.Order {
	interval := 200 * time.Millisecond
	deadline := time.Now().Add(e.cfg.OrderTimeout)
	if orderType == types.OrderTypeFOK {
		deadline = time.Now().Add(2 * time.Second)
	}

	for {
		current, err := e.ex.GetOrder(ctx, order.OrderID)
		if err == nil {
			order = current
			if order.Status.IsTerminal() {
				return order
			}
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			if orderType == types.OrderTypeFOK {
				_ = e.ex.CancelOrder(ctx, order.OrderID)
				order.Status = types.OrderStatusExpired
			}
			order.UpdatedAt = time.Now()
			return order
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			order.UpdatedAt = time.Now()
			return order
		}
	}
}

func (e *Engine) publishTerminal(order *types.Order) {
	order.UpdatedAt = time.Now()
	switch order.Status {
	case types.OrderStatusFilled:
		e.bus.Publish(eventbus.ChanOrderFilled, "execution", *order)
	case types.OrderStatusPartiallyFilled:
		e.bus.Publish(eventbus.ChanOrderPartiallyFilled, "execution", *order)
	case types.OrderStatusExpired:
		e.bus.Publish(eventbus.ChanOrderExpired, "execution", *order)
	case types.OrderStatusCancelled:
		e.bus.Publish(eventbus.ChanOrderCancelled, "execution", *order)
	case types.OrderStatusOpen:
		// left open at GTC timeout; no terminal event, order remains tracked
		// by the caller via its returned snapshot.
	}
}

// CancelQueuedSignal cancels signalID while it is still PENDING in the
// queue. Returns ErrSignalNotQueued once it has been dequeued to a
// worker — in-flight execution is not interruptible.
func (e *Engine) CancelQueuedSignal(signalID string) error {
	if err := e.queue.Cancel(signalID); err != nil {
		return err
	}
	e.bus.Publish(eventbus.ChanExecQueueCancelled, "execution", signalID)
	return nil
}

// LatencySnapshot exposes the engine's rolling latency statistics.
func (e *Engine) LatencySnapshot() (count int, mean, p95, p99, withinTarget float64) {
	return e.stats.Snapshot()
}

// QueueLen returns the current queue length.
func (e *Engine) QueueLen() int { return e.queue.Len() }
