package model

import "time"

// WatchlistItem is a symbol the coordinator scans while active.
type WatchlistItem struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"size:20;uniqueIndex;not null" json:"symbol"`
	SymbolName string    `gorm:"size:60" json:"symbol_name"`
	Active     bool      `gorm:"default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (WatchlistItem) TableName() string {
	return "watchlist"
}
