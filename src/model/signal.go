package model

import "time"

// Signal is the ephemeral value produced when a condition fires against a
// market snapshot. It is consumed immediately by the risk gate and persisted
// only as a SignalRecord once a gating decision exists.
type Signal struct {
	Symbol         string
	Direction      string // OrderSideBuy or OrderSideSell
	ConditionID    uint
	ConditionValue string
	Price          float64
	IndicatorValue *float64
	Timestamp      time.Time
}

// SignalRecord is the persisted outcome of one gating decision.
type SignalRecord struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Symbol         string     `gorm:"size:20;index;not null" json:"symbol"`
	Direction      string     `gorm:"size:10;not null" json:"direction"`
	ConditionID    uint       `gorm:"index" json:"condition_id"`
	ConditionValue string     `gorm:"size:100" json:"condition_value"`
	Price          float64    `json:"price"`
	IndicatorValue *float64   `json:"indicator_value,omitempty"`
	Admitted       bool       `json:"admitted"`
	Reason         string     `gorm:"size:200" json:"reason"`
	ExecutedPrice  *float64   `json:"executed_price,omitempty"`
	ExecutedQty    *int       `json:"executed_quantity,omitempty"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (SignalRecord) TableName() string {
	return "signal_history"
}
