package model

import "time"

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// OrderStatus is the local view of an order's lifecycle state. An order is in
// exactly one state at any time; the four terminal states move it from the
// pending set into history.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusAccepted      OrderStatus = "ACCEPTED"
	OrderStatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	OrderStatusFilled        OrderStatus = "FILLED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusRejected      OrderStatus = "REJECTED"
	OrderStatusExpired       OrderStatus = "EXPIRED"
)

// Terminal reports whether s is one of the four end states.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Price types follow the brokerage order-type codes.
const (
	PriceTypeLimit       = "00"
	PriceTypeMarket      = "03"
	PriceTypeConditional = "05"
	PriceTypeBestLimit   = "06"
	PriceTypeFirstLimit  = "07"
)

// OrderRequest is what the order lifecycle manager accepts for submission.
type OrderRequest struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	PriceType string    `json:"price_type"`
	OrderTime time.Time `json:"order_time"`
}

// OrderResult is the canonical local record of a submitted order. OrderID is
// the broker-assigned id once acknowledged; ClientOrderID is the local
// identity assigned at submission time.
type OrderResult struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	SymbolName    string      `json:"symbol_name,omitempty"`
	Side          string      `json:"side"`
	Quantity      int         `json:"quantity"`
	Price         float64     `json:"price"`
	PriceType     string      `json:"price_type"`
	Status        OrderStatus `json:"status"`
	FilledQty     int         `json:"filled_quantity"`
	FilledPrice   float64     `json:"filled_price"`
	OrderTime     time.Time   `json:"order_time"`
	FilledTime    *time.Time  `json:"filled_time,omitempty"`
	Message       string      `json:"message,omitempty"`
	Source        string      `json:"source,omitempty"` // "local" or "broker"
}
