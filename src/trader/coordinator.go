package trader

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/condition"
	"autotrader/src/connectors"
	"autotrader/src/metrics"
	"autotrader/src/model"
	"autotrader/src/risk"
)

// Watchlist is the slice of the watch-list store the coordinator reads.
type Watchlist interface {
	ListActiveSymbols(ctx context.Context) ([]string, error)
}

// ConditionStore serves the active rules.
type ConditionStore interface {
	ListActive(ctx context.Context, symbol string) ([]model.Condition, error)
	CountActive(ctx context.Context) (int64, error)
}

// SignalLog persists every gating decision and its execution outcome.
type SignalLog interface {
	Record(ctx context.Context, signal model.Signal, admitted bool, reason string) (*model.SignalRecord, error)
	MarkExecuted(ctx context.Context, signalID uint, price float64, quantity int) error
}

// MarketData answers price and capital questions. *connectors.Client
// satisfies it.
type MarketData interface {
	CurrentSnapshot(ctx context.Context, symbol string) (*model.MarketSnapshot, error)
	AvailableCash(ctx context.Context) (float64, error)
}

// OrderManager is the order lifecycle surface the coordinator drives.
type OrderManager interface {
	Submit(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error)
	Cancel(ctx context.Context, orderID string) bool
	Reconcile(ctx context.Context, orderID string) (*model.OrderResult, error)
	ListPending(ctx context.Context) []model.OrderResult
	ListHistory(days int) []model.OrderResult
	ExpireStale(maxAge time.Duration) int
	PendingCount() int
}

// RealtimeConditions is the optional push channel for broker-side condition
// search events. *connectors.ConditionSearchClient satisfies it.
type RealtimeConditions interface {
	SetCallback(fn func(connectors.ConditionEvent))
	Connect(ctx context.Context, accessToken string) error
	Register(conditionSeq string) error
	Close()
}

// TokenSource hands out the bearer token the realtime socket authenticates
// with.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Coordinator runs the periodic scan over the watch list: snapshot, evaluate,
// gate, submit, record. One instance is constructed at process start and
// shared by the HTTP surface.
//
// scanMu serializes the tick body with the realtime event path so the gate's
// admit-then-submit sequence never interleaves. Symbols inside a tick are
// strictly sequential; the ticker naturally skips while a tick runs because
// the loop is a single goroutine.
type Coordinator struct {
	cfg        Config
	gate       *risk.Gate
	orders     OrderManager
	watchlist  Watchlist
	conditions ConditionStore
	signals    SignalLog
	market     MarketData

	realtime RealtimeConditions
	tokens   TokenSource

	mu            sync.Mutex
	running       bool
	tradeQuantity int
	cancel        context.CancelFunc
	loopDone      chan struct{}

	scanMu sync.Mutex

	// signalByOrder links an accepted order to its signal record so the
	// execution mark carries the reconciled fill, not the submit-time price.
	// Touched only under scanMu.
	signalByOrder map[string]uint

	now func() time.Time
}

func NewCoordinator(
	cfg Config,
	gate *risk.Gate,
	orders OrderManager,
	watchlist Watchlist,
	conditions ConditionStore,
	signals SignalLog,
	market MarketData,
) *Coordinator {
	gate.SetTestMode(cfg.TestMode)
	return &Coordinator{
		cfg:           cfg,
		gate:          gate,
		orders:        orders,
		watchlist:     watchlist,
		conditions:    conditions,
		signals:       signals,
		market:        market,
		signalByOrder: make(map[string]uint),
		now:           time.Now,
	}
}

// WithRealtime wires the optional condition-search push channel.
func (c *Coordinator) WithRealtime(realtime RealtimeConditions, tokens TokenSource) *Coordinator {
	c.realtime = realtime
	c.tokens = tokens
	return c
}

// Start begins the periodic scan with the given fallback trade quantity.
// Returns false without side effects when already running.
func (c *Coordinator) Start(quantity int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		logger.Warn("Trader already running")
		return false
	}
	if quantity <= 0 {
		quantity = c.cfg.DefaultQuantity
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	c.running = true
	c.tradeQuantity = quantity

	if c.cfg.RealtimeConditions && c.realtime != nil {
		c.connectRealtime(ctx)
	}

	go c.run(ctx)
	metrics.SetRunning(true)

	logger.WithFields(map[string]interface{}{
		"quantity":  quantity,
		"interval":  c.cfg.ScanInterval.String(),
		"test_mode": c.gate.TestMode(),
	}).Info("Trader started")
	return true
}

// Stop cancels the scan and blocks until the in-flight tick, if any, exits.
// Returns false when not running.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		logger.Warn("Trader not running")
		return false
	}
	cancel := c.cancel
	done := c.loopDone
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	metrics.SetRunning(false)

	if c.realtime != nil {
		c.realtime.Close()
	}

	logger.Info("Trader stopped")
	return true
}

// Running reports the coordinator state.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) connectRealtime(ctx context.Context) {
	token := ""
	if c.tokens != nil {
		var err error
		token, err = c.tokens.AccessToken(ctx)
		if err != nil {
			logger.WithError(err).Warn("Realtime conditions disabled, token unavailable")
			return
		}
	}
	c.realtime.SetCallback(func(event connectors.ConditionEvent) {
		if !event.Inserted {
			return
		}
		c.scanMu.Lock()
		defer c.scanMu.Unlock()
		c.evaluateSymbol(ctx, connectors.NormalizeSymbol(event.Symbol))
	})
	if err := c.realtime.Connect(ctx, token); err != nil {
		logger.WithError(err).Warn("Realtime condition socket connect failed")
		return
	}

	// No registered sequence means no REAL pushes; the socket alone is not
	// enough.
	for _, seq := range c.cfg.RealtimeSeqs {
		if err := c.realtime.Register(seq); err != nil {
			logger.WithField("seq", seq).WithError(err).Warn("Condition sequence registration failed")
		}
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scan loop stopped")
			return
		case <-ticker.C:
			c.scanMu.Lock()
			c.tick(ctx)
			c.scanMu.Unlock()
		}
	}
}

// tick runs one full scan. A failure on one symbol is logged and the tick
// continues with the next; nothing here is fatal.
func (c *Coordinator) tick(ctx context.Context) {
	metrics.IncScanTick()

	c.reconcilePending(ctx)
	if expired := c.orders.ExpireStale(c.cfg.OrderMaxAge); expired > 0 {
		logger.WithField("count", expired).Warn("Stale pending orders expired")
		metrics.AddExpired(expired)
	}
	metrics.SetPendingOrders(c.orders.PendingCount())

	symbols, err := c.watchlist.ListActiveSymbols(ctx)
	if err != nil {
		logger.WithError(err).Error("Watch list unavailable, skipping tick")
		return
	}
	if len(symbols) == 0 {
		return
	}

	logger.WithField("symbols", len(symbols)).Debug("Scan tick")
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.evaluateSymbol(ctx, symbol)
	}
}

// reconcilePending absorbs broker-side progress on every locally tracked
// order. The position book and the signal execution mark are updated here and
// nowhere else: exactly once, on the reconciled terminal state.
func (c *Coordinator) reconcilePending(ctx context.Context) {
	tracked := make(map[string]bool)
	for _, order := range c.orders.ListPending(ctx) {
		if order.Source != "local" {
			continue
		}
		tracked[order.OrderID] = true
		result, err := c.orders.Reconcile(ctx, order.OrderID)
		if err != nil {
			logger.WithField("order_id", order.OrderID).WithError(err).Warn("Reconcile failed")
			continue
		}
		if result == nil || !result.Status.Terminal() {
			continue
		}

		if result.Status != model.OrderStatusFilled {
			delete(c.signalByOrder, order.OrderID)
			continue
		}
		c.applyFill(ctx, order.OrderID, result)
	}

	// Orders expired out of the pending set never reconcile again.
	for orderID := range c.signalByOrder {
		if !tracked[orderID] {
			delete(c.signalByOrder, orderID)
		}
	}
}

func (c *Coordinator) applyFill(ctx context.Context, orderID string, result *model.OrderResult) {
	fillPrice := result.FilledPrice
	if fillPrice <= 0 {
		fillPrice = result.Price
	}
	fillQty := result.FilledQty
	if fillQty <= 0 {
		fillQty = result.Quantity
	}

	switch result.Side {
	case model.OrderSideBuy:
		c.gate.AddPosition(result.Symbol, fillQty, fillPrice)
	case model.OrderSideSell:
		c.gate.RemovePosition(result.Symbol, fillPrice)
		pnl, _ := c.gate.Summary().TotalPnL.Float64()
		metrics.SetRealizedPnL(pnl)
	}

	if recordID, ok := c.signalByOrder[orderID]; ok {
		delete(c.signalByOrder, orderID)
		if err := c.signals.MarkExecuted(ctx, recordID, fillPrice, fillQty); err != nil {
			logger.WithError(err).Warn("Signal execution mark failed")
		}
	}
}

func (c *Coordinator) evaluateSymbol(ctx context.Context, symbol string) {
	snap, err := c.market.CurrentSnapshot(ctx, symbol)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Warn("Snapshot unavailable")
		return
	}

	c.checkExits(ctx, snap)

	conds, err := c.conditions.ListActive(ctx, symbol)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Warn("Condition lookup failed")
		return
	}

	for _, rule := range condition.CompileRules(conds) {
		signal := condition.Evaluate(rule, snap)
		if signal == nil {
			continue
		}
		logger.WithFields(map[string]interface{}{
			"symbol":    signal.Symbol,
			"direction": signal.Direction,
			"condition": signal.ConditionValue,
			"price":     signal.Price,
		}).Info("Condition fired")
		c.handleSignal(ctx, signal)
	}
}

// checkExits turns stop-loss and take-profit triggers on open positions into
// sell signals that run through the same gate and submit path as rule
// signals.
func (c *Coordinator) checkExits(ctx context.Context, snap *model.MarketSnapshot) {
	exit := c.gate.CheckStopLoss(snap.Symbol, snap.Price)
	if exit == nil {
		exit = c.gate.CheckTakeProfit(snap.Symbol, snap.Price)
	}
	if exit == nil {
		return
	}

	logger.WithFields(map[string]interface{}{
		"symbol": exit.Symbol,
		"action": exit.Action,
		"change": exit.ChangePercent.StringFixed(2),
	}).Warn("Position exit triggered")

	c.handleSignal(ctx, &model.Signal{
		Symbol:         exit.Symbol,
		Direction:      model.OrderSideSell,
		ConditionValue: exit.Action,
		Price:          snap.Price,
		Timestamp:      snap.Timestamp,
	})
}

func (c *Coordinator) handleSignal(ctx context.Context, signal *model.Signal) {
	var admission risk.Admission
	if signal.Direction == model.OrderSideBuy {
		capital, err := c.market.AvailableCash(ctx)
		if err != nil || capital <= 0 {
			if err != nil {
				logger.WithError(err).Warn("Capital estimate unavailable, using fixed quantity")
			}
			admission = c.gate.AdmitFixed(signal, c.currentQuantity())
		} else {
			admission = c.gate.Admit(signal, capital)
		}
	} else {
		admission = c.gate.Admit(signal, 0)
	}

	metrics.IncSignal(signal.Direction, admission.Accepted)
	record, err := c.signals.Record(ctx, *signal, admission.Accepted, admission.Reason)
	if err != nil {
		logger.WithError(err).Warn("Signal log write failed")
	}
	if !admission.Accepted {
		logger.WithFields(map[string]interface{}{
			"symbol": signal.Symbol,
			"reason": admission.Reason,
		}).Info("Signal rejected by risk gate")
		return
	}

	result, err := c.orders.Submit(ctx, model.OrderRequest{
		Symbol:    signal.Symbol,
		Side:      signal.Direction,
		Quantity:  admission.Quantity,
		Price:     signal.Price,
		PriceType: model.PriceTypeMarket,
		OrderTime: c.now(),
	})
	if err != nil {
		logger.WithField("symbol", signal.Symbol).WithError(err).Error("Order submission failed")
		return
	}
	metrics.IncOrder(signal.Direction, string(result.Status))
	if result.Status == model.OrderStatusRejected {
		logger.WithFields(map[string]interface{}{
			"symbol":  signal.Symbol,
			"message": result.Message,
		}).Warn("Order rejected")
		return
	}

	// Position bookkeeping waits for the reconciled fill. An accepted order
	// can still end cancelled, rejected or expired.
	if record != nil {
		c.signalByOrder[result.OrderID] = record.ID
	}
}

func (c *Coordinator) currentQuantity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tradeQuantity > 0 {
		return c.tradeQuantity
	}
	return c.cfg.DefaultQuantity
}

// Status reports the externally visible trader state.
func (c *Coordinator) Status(ctx context.Context) model.TraderStatus {
	live, test := c.gate.DailyCounts()
	maxLive, maxTest := c.gate.Limits()

	status := model.TraderStatus{
		Running:             c.Running(),
		TestMode:            c.gate.TestMode(),
		TradeQuantity:       c.currentQuantity(),
		DailyOrderCountLive: live,
		DailyOrderCountTest: test,
		MaxDailyOrdersLive:  maxLive,
		MaxDailyOrdersTest:  maxTest,
		CooldownMinutes:     c.gate.CooldownMinutes(),
		LastDailyReset:      c.gate.LastResetDate(),
		Timestamp:           c.now(),
	}

	if symbols, err := c.watchlist.ListActiveSymbols(ctx); err == nil {
		status.ActiveSymbolCount = len(symbols)
	}
	if count, err := c.conditions.CountActive(ctx); err == nil {
		status.ActiveConditionCount = int(count)
	}
	return status
}

// SetCooldown updates the per-symbol order cooldown, in minutes.
func (c *Coordinator) SetCooldown(minutes int) {
	c.gate.SetCooldown(minutes)
}

// CooldownMinutes returns the active cooldown in minutes.
func (c *Coordinator) CooldownMinutes() int {
	return c.gate.CooldownMinutes()
}

// ListPendingOrders returns the merged local and broker pending view.
func (c *Coordinator) ListPendingOrders(ctx context.Context) []model.OrderResult {
	return c.orders.ListPending(ctx)
}

// ListOrderHistory returns resolved orders from the last days days.
func (c *Coordinator) ListOrderHistory(days int) []model.OrderResult {
	return c.orders.ListHistory(days)
}

// CancelOrder cancels one order through the lifecycle manager.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	ok := c.orders.Cancel(ctx, orderID)
	metrics.IncCancel(ok)
	return ok
}

// PortfolioSummary exposes the gate's position and trade aggregates.
func (c *Coordinator) PortfolioSummary() risk.PortfolioSummary {
	return c.gate.Summary()
}
