package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"autotrader/src/model"
)

type mockOrderService struct {
	pending     []model.OrderResult
	history     []model.OrderResult
	cancelOK    bool
	cancelledID string
	historyDays int
}

func (m *mockOrderService) ListPendingOrders(ctx context.Context) []model.OrderResult {
	return m.pending
}

func (m *mockOrderService) ListOrderHistory(days int) []model.OrderResult {
	m.historyDays = days
	return m.history
}

func (m *mockOrderService) CancelOrder(ctx context.Context, orderID string) bool {
	m.cancelledID = orderID
	return m.cancelOK
}

func routeRequest(handler http.HandlerFunc, method, pattern, target string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)

	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPendingOrdersHandler(t *testing.T) {
	mock := &mockOrderService{pending: []model.OrderResult{{OrderID: "1001", Symbol: "005930", Source: "local"}}}
	handler := PendingOrdersHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/orders/pending", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"order_id":"1001"`)
}

func TestOrderHistoryHandler_DefaultDays(t *testing.T) {
	mock := &mockOrderService{}
	handler := OrderHistoryHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/orders/history", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 7, mock.historyDays)
}

func TestOrderHistoryHandler_CustomDays(t *testing.T) {
	mock := &mockOrderService{}
	handler := OrderHistoryHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/orders/history?days=30", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 30, mock.historyDays)
}

func TestOrderHistoryHandler_InvalidDays(t *testing.T) {
	handler := OrderHistoryHandler(&mockOrderService{})

	for _, days := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest(http.MethodGet, "/orders/history?days="+days, nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "days=%s", days)
	}
}

func TestCancelOrderHandler_Success(t *testing.T) {
	mock := &mockOrderService{cancelOK: true}
	rr := routeRequest(CancelOrderHandler(mock), http.MethodDelete, "/orders/{orderID}", "/orders/1001")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1001", mock.cancelledID)
	assert.Contains(t, rr.Body.String(), `"status":"cancelled"`)
}

func TestCancelOrderHandler_Refused(t *testing.T) {
	mock := &mockOrderService{cancelOK: false}
	rr := routeRequest(CancelOrderHandler(mock), http.MethodDelete, "/orders/{orderID}", "/orders/1001")

	assert.Equal(t, http.StatusConflict, rr.Code)
}
