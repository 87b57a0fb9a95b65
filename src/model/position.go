package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open holding tracked by the risk gate. A position exists for
// a symbol iff Quantity > 0.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      int             `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	EntryTime     time.Time       `json:"entry_time"`
}

// Value returns quantity × average entry price.
func (p Position) Value() decimal.Decimal {
	return p.AvgEntryPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// TradeRecord is the realized outcome of a closed position.
type TradeRecord struct {
	Symbol        string          `json:"symbol"`
	EntryTime     time.Time       `json:"entry_time"`
	ExitTime      time.Time       `json:"exit_time"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	Quantity      int             `json:"quantity"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	ProfitLossPct decimal.Decimal `json:"profit_loss_pct"`
}
