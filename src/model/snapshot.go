package model

import "time"

// Indicator names the market data layer knows how to fill in.
const (
	IndicatorRSI = "RSI"
)

// MarketSnapshot is one observation of a symbol: last traded price plus
// whatever indicator values the data layer could compute. Missing indicators
// simply stay out of the map.
type MarketSnapshot struct {
	Symbol     string
	Price      float64
	Indicators map[string]float64
	Timestamp  time.Time
}

// Indicator looks up a named indicator value.
func (s *MarketSnapshot) Indicator(name string) (float64, bool) {
	if s == nil || s.Indicators == nil {
		return 0, false
	}
	v, ok := s.Indicators[name]
	return v, ok
}

// TraderStatus is the coordinator's externally visible state.
type TraderStatus struct {
	Running              bool      `json:"running"`
	TestMode             bool      `json:"test_mode"`
	TradeQuantity        int       `json:"trade_quantity"`
	DailyOrderCountLive  int       `json:"daily_order_count_live"`
	DailyOrderCountTest  int       `json:"daily_order_count_test"`
	MaxDailyOrdersLive   int       `json:"max_daily_orders_live"`
	MaxDailyOrdersTest   int       `json:"max_daily_orders_test"`
	ActiveSymbolCount    int       `json:"active_symbol_count"`
	ActiveConditionCount int       `json:"active_condition_count"`
	CooldownMinutes      int       `json:"cooldown_minutes"`
	LastDailyReset       string    `json:"last_daily_reset"`
	Timestamp            time.Time `json:"timestamp"`
}
