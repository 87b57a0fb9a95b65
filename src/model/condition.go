package model

import "time"

// Condition categories mirror what the condition store accepts.
const (
	ConditionCategoryPrice = "price"
	ConditionCategoryRSI   = "rsi"
	ConditionCategoryMA    = "ma"
)

// Condition is a user-defined trading rule. A condition always belongs to
// exactly one symbol and one direction; Value holds the comparison expression
// ("< 50000", "RSI > 70", "MA5 > MA20") parsed once when loaded.
type Condition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"size:20;index;not null" json:"symbol"`
	Direction   string    `gorm:"size:10;not null" json:"direction"`
	Category    string    `gorm:"size:20;not null" json:"category"`
	Value       string    `gorm:"size:100;not null" json:"value"`
	Description string    `gorm:"size:200" json:"description"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Condition) TableName() string {
	return "conditions"
}
