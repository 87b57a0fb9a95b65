package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/connectors"
	"autotrader/src/mapper"
	"autotrader/src/model"
)

// Broker is the slice of the brokerage client the lifecycle manager needs.
// *connectors.Client satisfies it.
type Broker interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (*connectors.OrderResponse, error)
	CancelOrder(ctx context.Context, orderNo, symbol string, quantity int) (*connectors.OrderResponse, error)
	OrderStatus(ctx context.Context, orderNo string) (*connectors.OrderResponse, error)
	OpenOrders(ctx context.Context) (*connectors.OpenOrdersResponse, error)
}

// FundsEstimator answers the cash and holdings questions used for pre-submit
// validation. *connectors.Client satisfies it; a nil estimator skips the
// checks.
type FundsEstimator interface {
	AvailableCash(ctx context.Context) (float64, error)
	HoldingQuantity(ctx context.Context, symbol string) (int, error)
}

// Manager owns the local view of in-flight orders. The pending set is keyed
// by broker order id and holds only non-terminal orders; an order that
// reaches a terminal state moves to history and never mutates again. The
// broker is authoritative: on any drift discovered during reconcile or
// listing, the broker's answer wins.
//
// The mutex guards pending and history, which are reachable from both the
// scan loop and ad-hoc API calls. It is never held across broker I/O.
type Manager struct {
	broker Broker
	funds  FundsEstimator

	mu      sync.Mutex
	pending map[string]*model.OrderResult
	history []model.OrderResult

	now func() time.Time
}

func NewManager(broker Broker, funds FundsEstimator) *Manager {
	return &Manager{
		broker:  broker,
		funds:   funds,
		pending: make(map[string]*model.OrderResult),
		now:     time.Now,
	}
}

// Submit validates the request, sends it to the broker, and interprets the
// response. Business rejection, local or broker-side, is a normal REJECTED
// result; only transport failures come back as errors, and a transport
// failure changes no local state.
func (m *Manager) Submit(ctx context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	clientOrderID := uuid.NewString()

	if reason := m.validate(ctx, req); reason != "" {
		logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"side":   req.Side,
			"reason": reason,
		}).Warn("Order rejected before submission")
		return m.rejected(req, clientOrderID, reason), nil
	}

	resp, err := m.broker.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", req.Side, req.Symbol, err)
	}

	ack := mapper.AckFromOrderResponse(resp)
	if !ack.Accepted {
		return m.rejected(req, clientOrderID, ack.Message), nil
	}

	orderID := ack.OrderNo
	if orderID == "" {
		// the broker acknowledged without an id; track under the local one
		orderID = clientOrderID
	}

	result := &model.OrderResult{
		OrderID:       orderID,
		ClientOrderID: clientOrderID,
		Symbol:        connectors.NormalizeSymbol(req.Symbol),
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		PriceType:     req.PriceType,
		Status:        model.OrderStatusAccepted,
		OrderTime:     m.now(),
		Message:       ack.Message,
		Source:        "local",
	}

	m.mu.Lock()
	m.pending[orderID] = result
	pendingCount := len(m.pending)
	m.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"order_id": orderID,
		"symbol":   result.Symbol,
		"side":     result.Side,
		"qty":      result.Quantity,
		"pending":  pendingCount,
	}).Info("Order accepted by broker")

	copied := *result
	return &copied, nil
}

// validate runs the local checks; it returns a rejection reason or "".
// Funds checks are best effort: an estimator error is logged and the order
// proceeds, since the broker will enforce the real balance anyway.
func (m *Manager) validate(ctx context.Context, req model.OrderRequest) string {
	if req.Symbol == "" {
		return "symbol is empty"
	}
	if req.Quantity <= 0 {
		return "quantity must be positive"
	}
	if req.Price <= 0 && req.PriceType != model.PriceTypeMarket {
		return "price must be positive"
	}
	if m.funds == nil {
		return ""
	}

	switch req.Side {
	case model.OrderSideBuy:
		cash, err := m.funds.AvailableCash(ctx)
		if err != nil {
			logger.WithError(err).Warn("Cash estimate unavailable, skipping check")
			return ""
		}
		required := float64(req.Quantity) * req.Price
		if cash < required {
			return fmt.Sprintf("insufficient cash: need %.0f, have %.0f", required, cash)
		}
	case model.OrderSideSell:
		held, err := m.funds.HoldingQuantity(ctx, req.Symbol)
		if err != nil {
			logger.WithError(err).Warn("Holdings estimate unavailable, skipping check")
			return ""
		}
		if held < req.Quantity {
			return fmt.Sprintf("insufficient holdings: need %d, have %d", req.Quantity, held)
		}
	default:
		return fmt.Sprintf("unknown side %q", req.Side)
	}
	return ""
}

func (m *Manager) rejected(req model.OrderRequest, clientOrderID, reason string) *model.OrderResult {
	return &model.OrderResult{
		OrderID:       fmt.Sprintf("REJECTED_%d", m.now().Unix()),
		ClientOrderID: clientOrderID,
		Symbol:        connectors.NormalizeSymbol(req.Symbol),
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		PriceType:     req.PriceType,
		Status:        model.OrderStatusRejected,
		OrderTime:     m.now(),
		Message:       reason,
		Source:        "local",
	}
}

// Cancel requests cancellation of an order. It first looks in the local
// pending set; when the order is unknown locally (process restart, order
// placed through another channel) it falls back to the broker's open-order
// listing. A terminal order reports failure, not an error.
func (m *Manager) Cancel(ctx context.Context, orderID string) bool {
	m.mu.Lock()
	order, tracked := m.pending[orderID]
	var symbol string
	var quantity int
	if tracked {
		if order.Status.Terminal() {
			m.mu.Unlock()
			logger.WithField("order_id", orderID).Warn("Cannot cancel terminal order")
			return false
		}
		symbol = order.Symbol
		quantity = order.Quantity
	}
	m.mu.Unlock()

	if !tracked {
		entry, found := m.findOpenOrder(ctx, orderID)
		if !found {
			logger.WithField("order_id", orderID).Warn("Order not found locally or at broker")
			return false
		}
		symbol = entry.Symbol
		quantity = mapper.ResultFromOpenOrder(entry).Quantity
	}

	resp, err := m.broker.CancelOrder(ctx, orderID, symbol, quantity)
	if err != nil {
		logger.WithField("order_id", orderID).WithError(err).Error("Cancel request failed")
		return false
	}
	ack := mapper.AckFromOrderResponse(resp)
	if !ack.Accepted {
		logger.WithFields(map[string]interface{}{
			"order_id": orderID,
			"message":  ack.Message,
		}).Warn("Broker refused cancellation")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.pending[orderID]; ok {
		m.resolveLocked(order, model.OrderStatusCancelled)
	}
	logger.WithField("order_id", orderID).Info("Order cancelled")
	return true
}

func (m *Manager) findOpenOrder(ctx context.Context, orderID string) (connectors.OpenOrderEntry, bool) {
	listing, err := m.broker.OpenOrders(ctx)
	if err != nil {
		logger.WithError(err).Error("Open-order listing failed during cancel fallback")
		return connectors.OpenOrderEntry{}, false
	}
	for _, entry := range listing.Orders {
		if entry.OrderNo == orderID {
			return entry, true
		}
	}
	return connectors.OpenOrderEntry{}, false
}

// Reconcile polls the broker for one pending order's current state and
// absorbs it locally. Fills discovered out of band arrive through here. An
// id with no pending order is a no-op.
func (m *Manager) Reconcile(ctx context.Context, orderID string) (*model.OrderResult, error) {
	m.mu.Lock()
	_, tracked := m.pending[orderID]
	m.mu.Unlock()
	if !tracked {
		return nil, nil
	}

	resp, err := m.broker.OrderStatus(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order status %s: %w", orderID, err)
	}

	var status model.OrderStatus
	var fillQty int
	var fillPrice float64
	if resp.Output != nil {
		status = mapper.StatusFromCode(resp.Output.StatusCode)
		fillQty, fillPrice = mapper.FillFromOutput(resp.Output)
	} else {
		status = model.OrderStatusAccepted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.pending[orderID]
	if !ok {
		return nil, nil
	}

	order.Status = status
	if fillQty > 0 {
		order.FilledQty = fillQty
	}
	if fillPrice > 0 {
		order.FilledPrice = fillPrice
	}
	if status.Terminal() {
		m.resolveLocked(order, status)
	}

	copied := *order
	return &copied, nil
}

// resolveLocked marks the order terminal and moves it from pending to
// history. Callers hold m.mu.
func (m *Manager) resolveLocked(order *model.OrderResult, status model.OrderStatus) {
	order.Status = status
	resolved := m.now()
	order.FilledTime = &resolved
	m.history = append(m.history, *order)
	delete(m.pending, order.OrderID)
}

// ListPending merges the locally tracked pending set with the broker's own
// open-order listing, tagging each entry with its source. The two views can
// diverge after a restart or manual intervention; both are surfaced, with the
// local entry preferred on an id collision. A broker failure degrades to the
// local view.
func (m *Manager) ListPending(ctx context.Context) []model.OrderResult {
	m.mu.Lock()
	merged := make([]model.OrderResult, 0, len(m.pending))
	seen := make(map[string]bool, len(m.pending))
	for id, order := range m.pending {
		merged = append(merged, *order)
		seen[id] = true
	}
	m.mu.Unlock()

	listing, err := m.broker.OpenOrders(ctx)
	if err != nil {
		logger.WithError(err).Warn("Broker open-order listing unavailable, returning local view")
		return merged
	}
	for _, entry := range listing.Orders {
		if seen[entry.OrderNo] {
			continue
		}
		merged = append(merged, mapper.ResultFromOpenOrder(entry))
	}
	return merged
}

// ListHistory returns resolved orders no older than the given number of days
// (7 when days <= 0).
func (m *Manager) ListHistory(days int) []model.OrderResult {
	if days <= 0 {
		days = 7
	}
	cutoff := m.now().AddDate(0, 0, -days)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OrderResult, 0, len(m.history))
	for _, order := range m.history {
		if order.OrderTime.Before(cutoff) {
			continue
		}
		out = append(out, order)
	}
	return out
}

// ExpireStale force-resolves pending orders older than maxAge as EXPIRED and
// returns how many were expired. This is the safety net for orders the broker
// dropped without ever reporting a terminal status.
func (m *Manager) ExpireStale(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	var expired int
	for _, order := range m.pending {
		if order.OrderTime.After(cutoff) {
			continue
		}
		logger.WithFields(map[string]interface{}{
			"order_id":   order.OrderID,
			"order_time": order.OrderTime,
		}).Warn("Expiring stale pending order")
		m.resolveLocked(order, model.OrderStatusExpired)
		expired++
	}
	return expired
}

// PendingCount returns the size of the local pending set.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
