package repository

import (
	"context"
	"errors"
	"strings"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autotrader/src/database"
	"autotrader/src/model"
)

// WatchlistRepository handles the symbols the coordinator scans.
type WatchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepository() *WatchlistRepository {
	return &WatchlistRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance, useful for tests.
func (r *WatchlistRepository) WithDB(db *gorm.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// NormalizeSymbol strips the exchange "A" prefix some upstream feeds carry.
func NormalizeSymbol(symbol string) string {
	return strings.TrimPrefix(strings.TrimSpace(symbol), "A")
}

// Add inserts or reactivates a watched symbol.
func (r *WatchlistRepository) Add(ctx context.Context, symbol, symbolName string) error {
	item := model.WatchlistItem{
		Symbol:     NormalizeSymbol(symbol),
		SymbolName: symbolName,
		Active:     true,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"symbol_name", "active", "updated_at"}),
		}).
		Create(&item).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "WatchlistRepository",
			"op":     "Add",
			"symbol": item.Symbol,
		}).WithError(err).Error("Failed to add watchlist symbol")
		return err
	}

	return nil
}

// Remove deletes a symbol from the watchlist.
func (r *WatchlistRepository) Remove(ctx context.Context, symbol string) error {
	result := r.db.WithContext(ctx).
		Where("symbol = ?", NormalizeSymbol(symbol)).
		Delete(&model.WatchlistItem{})
	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "WatchlistRepository",
			"op":     "Remove",
			"symbol": symbol,
		}).WithError(result.Error).Error("Failed to remove watchlist symbol")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActiveSymbols returns the symbols the scan loop should visit, in
// insertion order.
func (r *WatchlistRepository) ListActiveSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.WatchlistItem{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		logger.WithField("repo", "WatchlistRepository").
			WithError(err).Error("Failed to list active symbols")
		return nil, err
	}
	return symbols, nil
}

// List returns all watchlist entries.
func (r *WatchlistRepository) List(ctx context.Context) ([]model.WatchlistItem, error) {
	var items []model.WatchlistItem
	err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Get fetches one entry by symbol. Returns (nil, nil) when absent.
func (r *WatchlistRepository) Get(ctx context.Context, symbol string) (*model.WatchlistItem, error) {
	var item model.WatchlistItem
	err := r.db.WithContext(ctx).
		Where("symbol = ?", NormalizeSymbol(symbol)).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}
