package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

// Admission is the gate's verdict on one candidate signal.
type Admission struct {
	Accepted bool   `json:"accepted"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

// Rejection reasons returned in Admission.Reason.
const (
	ReasonDailyLimit     = "daily limit"
	ReasonCooldown       = "cooldown"
	ReasonPositionOpen   = "position already open"
	ReasonNoPosition     = "no position"
	ReasonZeroQuantity   = "quantity rounds to zero"
	ReasonBadSignal      = "invalid signal"
	ReasonUnknownCapital = "capital unknown"
)

// ExitSignal reports a stop-loss or take-profit trigger on an open position.
type ExitSignal struct {
	Action        string          `json:"action"` // "STOP_LOSS" or "TAKE_PROFIT"
	Symbol        string          `json:"symbol"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Quantity      int             `json:"quantity"`
}

// PortfolioSummary aggregates open positions and realized trades.
type PortfolioSummary struct {
	TotalPositions int             `json:"total_positions"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalPnLPct    decimal.Decimal `json:"total_pnl_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
}

// Gate owns every piece of risk state: per-symbol cooldown stamps, the daily
// order counters, open positions, and the realized trade history. All state
// is guarded by one mutex; Admit reserves (counter increment plus cooldown
// stamp) before any broker I/O happens, so two evaluations of the same symbol
// can never both pass the cooldown check during a slow round-trip.
type Gate struct {
	mu sync.Mutex

	cfg      Config
	cooldown time.Duration
	testMode bool

	dailyCountLive int
	dailyCountTest int
	lastResetDate  string

	lastOrderTime map[string]time.Time
	positions     map[string]model.Position
	trades        []model.TradeRecord

	now func() time.Time
}

func NewGate(cfg Config) *Gate {
	return &Gate{
		cfg:           cfg,
		cooldown:      cfg.OrderCooldown,
		lastOrderTime: make(map[string]time.Time),
		positions:     make(map[string]model.Position),
		now:           time.Now,
	}
}

// SetTestMode switches which daily counter and limit apply.
func (g *Gate) SetTestMode(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.testMode = enabled
}

func (g *Gate) TestMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.testMode
}

// rolloverLocked resets the daily counters on the first access after the
// local date has advanced. Callers hold g.mu.
func (g *Gate) rolloverLocked(now time.Time) {
	today := now.Format("2006-01-02")
	if g.lastResetDate == today {
		return
	}
	if g.lastResetDate != "" {
		logger.WithFields(map[string]interface{}{
			"previous_date": g.lastResetDate,
			"count_live":    g.dailyCountLive,
			"count_test":    g.dailyCountTest,
		}).Info("Daily order counters reset")
	}
	g.lastResetDate = today
	g.dailyCountLive = 0
	g.dailyCountTest = 0
}

// Admit decides whether a candidate signal may become an order and at what
// quantity. Checks run in a fixed order and short-circuit on first failure:
// daily limit, cooldown, direction validity, then position sizing for buys.
// On acceptance the daily counter and the symbol's cooldown stamp are updated
// immediately, before the caller talks to the broker.
func (g *Gate) Admit(signal *model.Signal, availableCapital float64) Admission {
	return g.admit(signal, func() (int, string) {
		if availableCapital <= 0 {
			return 0, ReasonUnknownCapital
		}
		quantity := g.sizeBuyLocked(availableCapital, signal.Price)
		if quantity < 1 {
			return 0, ReasonZeroQuantity
		}
		return quantity, ""
	})
}

// AdmitFixed admits with a caller-chosen buy quantity instead of sizing from
// capital. Used when no capital estimate is available and a fallback trade
// quantity is configured.
func (g *Gate) AdmitFixed(signal *model.Signal, quantity int) Admission {
	return g.admit(signal, func() (int, string) {
		if quantity < 1 {
			return 0, ReasonZeroQuantity
		}
		return quantity, ""
	})
}

func (g *Gate) admit(signal *model.Signal, buyQuantity func() (int, string)) Admission {
	if signal == nil || signal.Symbol == "" || signal.Price <= 0 {
		return Admission{Reason: ReasonBadSignal}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.rolloverLocked(now)

	count, limit := g.dailyCountLive, g.cfg.MaxDailyOrdersLive
	if g.testMode {
		count, limit = g.dailyCountTest, g.cfg.MaxDailyOrdersTest
	}
	if count >= limit {
		logger.WithFields(map[string]interface{}{
			"symbol": signal.Symbol,
			"count":  count,
			"limit":  limit,
		}).Warn("Daily order limit reached")
		return Admission{Reason: ReasonDailyLimit}
	}

	if last, ok := g.lastOrderTime[signal.Symbol]; ok {
		if elapsed := now.Sub(last); elapsed < g.cooldown {
			logger.WithFields(map[string]interface{}{
				"symbol":    signal.Symbol,
				"remaining": (g.cooldown - elapsed).Round(time.Second).String(),
			}).Info("Order cooldown active")
			return Admission{Reason: ReasonCooldown}
		}
	}

	position, held := g.positions[signal.Symbol]

	var quantity int
	switch signal.Direction {
	case model.OrderSideBuy:
		if held {
			return Admission{Reason: ReasonPositionOpen}
		}
		var reason string
		quantity, reason = buyQuantity()
		if reason != "" {
			return Admission{Reason: reason}
		}
	case model.OrderSideSell:
		if !held {
			return Admission{Reason: ReasonNoPosition}
		}
		quantity = position.Quantity
	default:
		return Admission{Reason: ReasonBadSignal}
	}

	if g.testMode {
		g.dailyCountTest++
	} else {
		g.dailyCountLive++
	}
	g.lastOrderTime[signal.Symbol] = now

	return Admission{Accepted: true, Quantity: quantity}
}

// sizeBuyLocked computes floor(capital × sizing fraction / price), with the
// invested amount additionally capped by MaxPositionValue.
func (g *Gate) sizeBuyLocked(availableCapital, price float64) int {
	budget := decimal.NewFromFloat(availableCapital).
		Mul(decimal.NewFromFloat(g.cfg.PositionSizePercent)).
		Div(decimal.NewFromInt(100))
	if maxValue := decimal.NewFromFloat(g.cfg.MaxPositionValue); maxValue.IsPositive() && budget.GreaterThan(maxValue) {
		budget = maxValue
	}
	return int(budget.Div(decimal.NewFromFloat(price)).IntPart())
}

// AddPosition records a filled buy, folding it into the volume-weighted
// average entry price when a position already exists.
func (g *Gate) AddPosition(symbol string, quantity int, price float64) {
	if quantity <= 0 || price <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fill := decimal.NewFromFloat(price)
	existing, ok := g.positions[symbol]
	if !ok {
		g.positions[symbol] = model.Position{
			Symbol:        symbol,
			Quantity:      quantity,
			AvgEntryPrice: fill,
			EntryTime:     g.now(),
		}
	} else {
		oldQty := decimal.NewFromInt(int64(existing.Quantity))
		newQty := decimal.NewFromInt(int64(existing.Quantity + quantity))
		existing.AvgEntryPrice = existing.AvgEntryPrice.Mul(oldQty).
			Add(fill.Mul(decimal.NewFromInt(int64(quantity)))).
			Div(newQty)
		existing.Quantity += quantity
		g.positions[symbol] = existing
	}

	logger.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"quantity":  g.positions[symbol].Quantity,
		"avg_price": g.positions[symbol].AvgEntryPrice.String(),
	}).Info("Position updated")
}

// RemovePosition closes a position at the given exit price, appends the
// realized trade to history, and returns the trade record. Returns nil when
// no position exists for the symbol.
func (g *Gate) RemovePosition(symbol string, exitPrice float64) *model.TradeRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	position, ok := g.positions[symbol]
	if !ok {
		logger.WithFields(map[string]interface{}{"symbol": symbol}).Warn("No position to remove")
		return nil
	}

	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromInt(int64(position.Quantity))
	pnl := exit.Sub(position.AvgEntryPrice).Mul(qty)
	pnlPct := decimal.Zero
	if position.AvgEntryPrice.IsPositive() {
		pnlPct = exit.Sub(position.AvgEntryPrice).
			Div(position.AvgEntryPrice).
			Mul(decimal.NewFromInt(100))
	}

	trade := model.TradeRecord{
		Symbol:        symbol,
		EntryTime:     position.EntryTime,
		ExitTime:      g.now(),
		EntryPrice:    position.AvgEntryPrice,
		ExitPrice:     exit,
		Quantity:      position.Quantity,
		ProfitLoss:    pnl,
		ProfitLossPct: pnlPct,
	}
	g.trades = append(g.trades, trade)
	delete(g.positions, symbol)

	logger.WithFields(map[string]interface{}{
		"symbol":      symbol,
		"profit_loss": pnl.String(),
		"pct":         pnlPct.StringFixed(2),
	}).Info("Position closed")

	return &trade
}

// Position returns the open position for a symbol, if any.
func (g *Gate) Position(symbol string) (model.Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.positions[symbol]
	return p, ok
}

// Positions returns a copy of all open positions.
func (g *Gate) Positions() map[string]model.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]model.Position, len(g.positions))
	for symbol, p := range g.positions {
		out[symbol] = p
	}
	return out
}

// CheckStopLoss reports whether the position's loss at the current price has
// reached the configured stop-loss percentage.
func (g *Gate) CheckStopLoss(symbol string, currentPrice float64) *ExitSignal {
	return g.checkExit(symbol, currentPrice, "STOP_LOSS")
}

// CheckTakeProfit reports whether the position's gain at the current price
// has reached the configured take-profit percentage.
func (g *Gate) CheckTakeProfit(symbol string, currentPrice float64) *ExitSignal {
	return g.checkExit(symbol, currentPrice, "TAKE_PROFIT")
}

func (g *Gate) checkExit(symbol string, currentPrice float64, action string) *ExitSignal {
	g.mu.Lock()
	defer g.mu.Unlock()

	position, ok := g.positions[symbol]
	if !ok || !position.AvgEntryPrice.IsPositive() || currentPrice <= 0 {
		return nil
	}

	current := decimal.NewFromFloat(currentPrice)
	changePct := current.Sub(position.AvgEntryPrice).
		Div(position.AvgEntryPrice).
		Mul(decimal.NewFromInt(100))

	var triggered bool
	switch action {
	case "STOP_LOSS":
		triggered = changePct.Neg().GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.StopLossPercent))
	case "TAKE_PROFIT":
		triggered = changePct.GreaterThanOrEqual(decimal.NewFromFloat(g.cfg.TakeProfitPercent))
	}
	if !triggered {
		return nil
	}

	return &ExitSignal{
		Action:        action,
		Symbol:        symbol,
		EntryPrice:    position.AvgEntryPrice,
		CurrentPrice:  current,
		ChangePercent: changePct,
		Quantity:      position.Quantity,
	}
}

// Summary aggregates open positions and the realized trade history.
func (g *Gate) Summary() PortfolioSummary {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := PortfolioSummary{
		TotalPositions: len(g.positions),
		TotalValue:     decimal.Zero,
		TotalPnL:       decimal.Zero,
		TotalPnLPct:    decimal.Zero,
		TotalTrades:    len(g.trades),
	}
	for _, p := range g.positions {
		s.TotalValue = s.TotalValue.Add(p.Value())
	}

	invested := decimal.Zero
	for _, t := range g.trades {
		s.TotalPnL = s.TotalPnL.Add(t.ProfitLoss)
		invested = invested.Add(t.EntryPrice.Mul(decimal.NewFromInt(int64(t.Quantity))))
		if t.ProfitLoss.IsPositive() {
			s.WinningTrades++
		} else if t.ProfitLoss.IsNegative() {
			s.LosingTrades++
		}
	}
	if invested.IsPositive() {
		s.TotalPnLPct = s.TotalPnL.Div(invested).Mul(decimal.NewFromInt(100))
	}
	return s
}

// TradeHistory returns realized trades, optionally filtered by symbol and by
// a maximum age in days (0 disables the respective filter).
func (g *Gate) TradeHistory(symbol string, days int) []model.TradeRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	var cutoff time.Time
	if days > 0 {
		cutoff = g.now().AddDate(0, 0, -days)
	}

	out := make([]model.TradeRecord, 0, len(g.trades))
	for _, t := range g.trades {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		if days > 0 && t.ExitTime.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SetCooldown replaces the per-symbol cooldown, expressed in minutes.
func (g *Gate) SetCooldown(minutes int) {
	if minutes < 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown = time.Duration(minutes) * time.Minute
}

// CooldownMinutes returns the active cooldown in whole minutes.
func (g *Gate) CooldownMinutes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.cooldown / time.Minute)
}

// DailyCounts returns today's live and test order counts, applying the lazy
// date rollover first.
func (g *Gate) DailyCounts() (live, test int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked(g.now())
	return g.dailyCountLive, g.dailyCountTest
}

// Limits returns the configured daily maximums.
func (g *Gate) Limits() (live, test int) {
	return g.cfg.MaxDailyOrdersLive, g.cfg.MaxDailyOrdersTest
}

// LastResetDate returns the local date the counters were last reset for.
func (g *Gate) LastResetDate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastResetDate
}
