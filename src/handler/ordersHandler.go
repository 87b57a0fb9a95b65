package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"autotrader/src/model"
)

type orderService interface {
	ListPendingOrders(ctx context.Context) []model.OrderResult
	ListOrderHistory(days int) []model.OrderResult
	CancelOrder(ctx context.Context, orderID string) bool
}

// PendingOrdersHandler lists the merged local and broker-side pending orders.
func PendingOrdersHandler(orders orderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orders.ListPendingOrders(r.Context()))
	}
}

// OrderHistoryHandler lists resolved orders. Accepts ?days=N, default 7.
func OrderHistoryHandler(orders orderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if daysParam := r.URL.Query().Get("days"); daysParam != "" {
			parsed, err := strconv.Atoi(daysParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid days", http.StatusBadRequest)
				return
			}
			days = parsed
		}
		writeJSON(w, http.StatusOK, orders.ListOrderHistory(days))
	}
}

// CancelOrderHandler cancels one order by id. A cancellation the broker or
// the local state refuses answers 409.
func CancelOrderHandler(orders orderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		if orderID == "" {
			http.Error(w, "missing order id", http.StatusBadRequest)
			return
		}

		if !orders.CancelOrder(r.Context(), orderID) {
			http.Error(w, "order could not be cancelled", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": "cancelled"})
	}
}
