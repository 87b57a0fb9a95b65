package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"autotrader/src/connectors"
	"autotrader/src/model"
	"autotrader/src/risk"
)

type fakeWatchlist struct {
	symbols []string
	err     error
}

func (f *fakeWatchlist) ListActiveSymbols(_ context.Context) ([]string, error) {
	return f.symbols, f.err
}

type fakeConditions struct {
	bySymbol map[string][]model.Condition
}

func (f *fakeConditions) ListActive(_ context.Context, symbol string) ([]model.Condition, error) {
	return f.bySymbol[symbol], nil
}

func (f *fakeConditions) CountActive(_ context.Context) (int64, error) {
	var n int64
	for _, conds := range f.bySymbol {
		n += int64(len(conds))
	}
	return n, nil
}

type recordedSignal struct {
	signal   model.Signal
	admitted bool
	reason   string
}

type fakeSignalLog struct {
	mu       sync.Mutex
	records  []recordedSignal
	executed []uint
}

func (f *fakeSignalLog) Record(_ context.Context, signal model.Signal, admitted bool, reason string) (*model.SignalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recordedSignal{signal, admitted, reason})
	return &model.SignalRecord{ID: uint(len(f.records))}, nil
}

func (f *fakeSignalLog) MarkExecuted(_ context.Context, signalID uint, _ float64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, signalID)
	return nil
}

type fakeMarket struct {
	prices  map[string]float64
	rsi     map[string]float64
	snapErr map[string]error
	cash    float64
	cashErr error
}

func (f *fakeMarket) CurrentSnapshot(_ context.Context, symbol string) (*model.MarketSnapshot, error) {
	if err := f.snapErr[symbol]; err != nil {
		return nil, err
	}
	snap := &model.MarketSnapshot{
		Symbol:    symbol,
		Price:     f.prices[symbol],
		Timestamp: time.Now(),
	}
	if v, ok := f.rsi[symbol]; ok {
		snap.Indicators = map[string]float64{model.IndicatorRSI: v}
	}
	return snap, nil
}

func (f *fakeMarket) AvailableCash(_ context.Context) (float64, error) {
	return f.cash, f.cashErr
}

// fakeOrders mimics the manager's lifecycle: accepted submissions enter the
// pending set and stay there until a reconcile reports the scripted terminal
// status.
type fakeOrders struct {
	mu              sync.Mutex
	submitted       []model.OrderRequest
	submitErr       error
	reject          bool
	reconcileStatus model.OrderStatus // zero value keeps orders pending
	pending         []model.OrderResult
	history         []model.OrderResult
}

func (f *fakeOrders) Submit(_ context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	status := model.OrderStatusAccepted
	if f.reject {
		status = model.OrderStatusRejected
	}
	result := model.OrderResult{
		OrderID:  fmt.Sprintf("fake-%d", len(f.submitted)),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    req.Price,
		Status:   status,
		Source:   "local",
	}
	if status == model.OrderStatusAccepted {
		f.pending = append(f.pending, result)
	}
	return &result, nil
}

func (f *fakeOrders) Cancel(_ context.Context, _ string) bool { return true }

func (f *fakeOrders) Reconcile(_ context.Context, orderID string) (*model.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.pending {
		if p.OrderID != orderID {
			continue
		}
		if f.reconcileStatus == "" {
			still := p
			return &still, nil
		}
		resolved := p
		resolved.Status = f.reconcileStatus
		if resolved.Status == model.OrderStatusFilled {
			resolved.FilledQty = p.Quantity
			resolved.FilledPrice = p.Price
		}
		f.pending = append(f.pending[:i], f.pending[i+1:]...)
		f.history = append(f.history, resolved)
		return &resolved, nil
	}
	return nil, nil
}

func (f *fakeOrders) ListPending(_ context.Context) []model.OrderResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.OrderResult, len(f.pending))
	copy(out, f.pending)
	return out
}

func (f *fakeOrders) ListHistory(_ int) []model.OrderResult { return f.history }
func (f *fakeOrders) ExpireStale(_ time.Duration) int       { return 0 }
func (f *fakeOrders) PendingCount() int                     { return len(f.pending) }

func (f *fakeOrders) submittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeOrders) setReconcileStatus(status model.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileStatus = status
}

func testCoordinator(watch *fakeWatchlist, conds *fakeConditions, market *fakeMarket, orders *fakeOrders) (*Coordinator, *fakeSignalLog, *risk.Gate) {
	cfg := Config{
		ScanInterval:    10 * time.Millisecond,
		TestMode:        true,
		DefaultQuantity: 1,
		OrderMaxAge:     24 * time.Hour,
	}
	gate := risk.NewGate(risk.Config{
		MaxDailyOrdersLive:  10,
		MaxDailyOrdersTest:  50,
		OrderCooldown:       time.Minute,
		PositionSizePercent: 10,
		MaxPositionValue:    1000000,
		StopLossPercent:     2.0,
		TakeProfitPercent:   5.0,
	})
	signals := &fakeSignalLog{}
	return NewCoordinator(cfg, gate, orders, watch, conds, signals, market), signals, gate
}

func buyCondition(symbol, value string) model.Condition {
	return model.Condition{
		ID:        1,
		Symbol:    symbol,
		Direction: model.OrderSideBuy,
		Category:  model.ConditionCategoryPrice,
		Value:     value,
		Active:    true,
	}
}

func TestStartStopIdempotentFailure(t *testing.T) {
	c, _, _ := testCoordinator(
		&fakeWatchlist{},
		&fakeConditions{},
		&fakeMarket{},
		&fakeOrders{},
	)

	if c.Stop() {
		t.Fatal("stop while stopped succeeded")
	}
	if !c.Start(2) {
		t.Fatal("start failed")
	}
	if c.Start(2) {
		t.Fatal("second start succeeded")
	}
	if !c.Running() {
		t.Fatal("not running after start")
	}
	if !c.Stop() {
		t.Fatal("stop failed")
	}
	if c.Running() {
		t.Fatal("still running after stop")
	}
	if c.Stop() {
		t.Fatal("stop after stop succeeded")
	}

	// The coordinator restarts cleanly.
	if !c.Start(2) {
		t.Fatal("restart failed")
	}
	if !c.Stop() {
		t.Fatal("stop after restart failed")
	}
}

func TestTickSubmitsAdmittedSignal(t *testing.T) {
	orders := &fakeOrders{}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)
	c.tradeQuantity = 1

	c.tick(context.Background())

	if got := orders.submittedCount(); got != 1 {
		t.Fatalf("submitted = %d, want 1", got)
	}
	req := orders.submitted[0]
	// 10% of 1,000,000 at 49,000 per share.
	if req.Side != model.OrderSideBuy || req.Quantity != 2 || req.PriceType != model.PriceTypeMarket {
		t.Fatalf("request = %+v", req)
	}

	if len(signals.records) != 1 || !signals.records[0].admitted {
		t.Fatalf("signal records = %+v", signals.records)
	}

	// The order is only accepted so far; the book reflects fills, not intent.
	if _, ok := gate.Position("005930"); ok {
		t.Fatal("position recorded before the fill")
	}
	if len(signals.executed) != 0 {
		t.Fatalf("executed marks before the fill = %v", signals.executed)
	}

	orders.setReconcileStatus(model.OrderStatusFilled)
	c.tick(context.Background())

	p, ok := gate.Position("005930")
	if !ok || p.Quantity != 2 {
		t.Fatalf("position = %+v ok=%v", p, ok)
	}
	if len(signals.executed) != 1 {
		t.Fatalf("executed marks = %v", signals.executed)
	}
}

func TestFilledBuyAppliedOnce(t *testing.T) {
	orders := &fakeOrders{}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)

	c.tick(context.Background()) // submit; order pending at the broker
	c.tick(context.Background()) // still pending, nothing to apply

	if _, ok := gate.Position("005930"); ok {
		t.Fatal("position recorded while the order is pending")
	}

	orders.setReconcileStatus(model.OrderStatusFilled)
	c.tick(context.Background())

	p, ok := gate.Position("005930")
	if !ok || p.Quantity != 2 {
		t.Fatalf("position after fill = %+v ok=%v", p, ok)
	}

	// Further ticks find nothing pending and must not touch the book again.
	c.tick(context.Background())
	c.tick(context.Background())

	p, _ = gate.Position("005930")
	if p.Quantity != 2 {
		t.Fatalf("position quantity = %d after extra ticks, want 2", p.Quantity)
	}
	if len(signals.executed) != 1 {
		t.Fatalf("executed marks = %v, want exactly one", signals.executed)
	}
}

func TestCancelledOrderLeavesNoPosition(t *testing.T) {
	orders := &fakeOrders{}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)

	c.tick(context.Background())

	orders.setReconcileStatus(model.OrderStatusCancelled)
	c.tick(context.Background())

	if _, ok := gate.Position("005930"); ok {
		t.Fatal("cancelled order left a phantom position")
	}
	if len(signals.executed) != 0 {
		t.Fatalf("cancelled order marked executed: %v", signals.executed)
	}
	if len(c.signalByOrder) != 0 {
		t.Fatalf("signal link not cleared: %v", c.signalByOrder)
	}
}

func TestTickRecordsGateRejection(t *testing.T) {
	orders := &fakeOrders{}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)
	gate.AddPosition("005930", 2, 48000)

	c.tick(context.Background())

	if got := orders.submittedCount(); got != 0 {
		t.Fatalf("submitted = %d for rejected signal", got)
	}
	if len(signals.records) != 1 || signals.records[0].admitted {
		t.Fatalf("records = %+v", signals.records)
	}
	if signals.records[0].reason != risk.ReasonPositionOpen {
		t.Fatalf("reason = %q", signals.records[0].reason)
	}
	if len(signals.executed) != 0 {
		t.Fatal("rejected signal marked executed")
	}
}

func TestTickContainsPerSymbolFailure(t *testing.T) {
	orders := &fakeOrders{}
	c, _, _ := testCoordinator(
		&fakeWatchlist{symbols: []string{"BAD", "005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{
			prices:  map[string]float64{"005930": 49000},
			snapErr: map[string]error{"BAD": errors.New("quote failed")},
			cash:    1000000,
		},
		orders,
	)

	c.tick(context.Background())

	if got := orders.submittedCount(); got != 1 {
		t.Fatalf("submitted = %d, the good symbol must still trade", got)
	}
}

func TestHandleSignalFallsBackToFixedQuantity(t *testing.T) {
	orders := &fakeOrders{}
	c, _, _ := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cashErr: errors.New("account down")},
		orders,
	)
	c.tradeQuantity = 3

	c.tick(context.Background())

	if got := orders.submittedCount(); got != 1 {
		t.Fatalf("submitted = %d", got)
	}
	if orders.submitted[0].Quantity != 3 {
		t.Fatalf("quantity = %d, want fixed fallback 3", orders.submitted[0].Quantity)
	}
}

func TestStopLossExitSubmitsSell(t *testing.T) {
	orders := &fakeOrders{}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)
	gate.AddPosition("005930", 2, 50000) // a 2% drop to 49,000 trips the stop

	c.tick(context.Background())

	if got := orders.submittedCount(); got != 1 {
		t.Fatalf("submitted = %d", got)
	}
	req := orders.submitted[0]
	if req.Side != model.OrderSideSell || req.Quantity != 2 {
		t.Fatalf("exit request = %+v", req)
	}
	if len(signals.records) != 1 || signals.records[0].signal.ConditionValue != "STOP_LOSS" {
		t.Fatalf("records = %+v", signals.records)
	}

	// The position survives until the broker confirms the sell filled.
	if _, ok := gate.Position("005930"); !ok {
		t.Fatal("position cleared before the exit sell filled")
	}

	orders.setReconcileStatus(model.OrderStatusFilled)
	c.tick(context.Background())

	if _, ok := gate.Position("005930"); ok {
		t.Fatal("position not cleared after the exit sell filled")
	}
}

func TestTransportFailureLeavesPositionsUntouched(t *testing.T) {
	orders := &fakeOrders{submitErr: errors.New("timeout")}
	c, signals, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)

	c.tick(context.Background())

	if _, ok := gate.Position("005930"); ok {
		t.Fatal("position recorded despite transport failure")
	}
	if len(signals.executed) != 0 {
		t.Fatal("signal marked executed despite transport failure")
	}
}

func TestStatusReportsCounts(t *testing.T) {
	c, _, gate := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930", "000660"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{},
		&fakeOrders{},
	)

	status := c.Status(context.Background())
	if status.Running || !status.TestMode {
		t.Fatalf("status = %+v", status)
	}
	if status.ActiveSymbolCount != 2 || status.ActiveConditionCount != 1 {
		t.Fatalf("counts = %+v", status)
	}
	if status.MaxDailyOrdersLive != 10 || status.MaxDailyOrdersTest != 50 {
		t.Fatalf("limits = %+v", status)
	}

	gate.SetCooldown(5)
	if got := c.CooldownMinutes(); got != 5 {
		t.Fatalf("cooldown = %d", got)
	}
}

func TestScanLoopRunsTicks(t *testing.T) {
	orders := &fakeOrders{}
	c, _, _ := testCoordinator(
		&fakeWatchlist{symbols: []string{"005930"}},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)

	if !c.Start(1) {
		t.Fatal("start failed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for orders.submittedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.Stop() {
		t.Fatal("stop failed")
	}

	if orders.submittedCount() == 0 {
		t.Fatal("no order submitted by the scan loop")
	}
}

type fakeRealtime struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	registered []string
	callback   func(connectors.ConditionEvent)
}

func (f *fakeRealtime) SetCallback(fn func(connectors.ConditionEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = fn
}

func (f *fakeRealtime) Connect(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeRealtime) Register(conditionSeq string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, conditionSeq)
	return nil
}

func (f *fakeRealtime) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRealtime) push(event connectors.ConditionEvent) {
	f.mu.Lock()
	fn := f.callback
	f.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func TestStartRegistersRealtimeConditions(t *testing.T) {
	orders := &fakeOrders{}
	c, _, _ := testCoordinator(
		&fakeWatchlist{},
		&fakeConditions{bySymbol: map[string][]model.Condition{
			"005930": {buyCondition("005930", "< 50000")},
		}},
		&fakeMarket{prices: map[string]float64{"005930": 49000}, cash: 1000000},
		orders,
	)
	c.cfg.ScanInterval = time.Hour // only the push path should trade here
	c.cfg.RealtimeConditions = true
	c.cfg.RealtimeSeqs = []string{"0", "3"}
	rt := &fakeRealtime{}
	c.WithRealtime(rt, nil)

	if !c.Start(1) {
		t.Fatal("start failed")
	}

	rt.mu.Lock()
	connected, registered := rt.connected, append([]string(nil), rt.registered...)
	rt.mu.Unlock()
	if !connected {
		t.Fatal("realtime socket not connected on start")
	}
	if len(registered) != 2 || registered[0] != "0" || registered[1] != "3" {
		t.Fatalf("registered sequences = %v, want [0 3]", registered)
	}

	// A pushed match evaluates the symbol without waiting for the ticker.
	rt.push(connectors.ConditionEvent{ConditionSeq: "0", Symbol: "A005930", Inserted: true})

	if got := orders.submittedCount(); got != 1 {
		t.Fatalf("submitted = %d after realtime push", got)
	}

	if !c.Stop() {
		t.Fatal("stop failed")
	}
	rt.mu.Lock()
	closed := rt.closed
	rt.mu.Unlock()
	if !closed {
		t.Fatal("realtime socket not closed on stop")
	}
}
