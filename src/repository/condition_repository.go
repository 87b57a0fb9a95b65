package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// ConditionRepository stores the per-symbol trading rules.
type ConditionRepository struct {
	db *gorm.DB
}

func NewConditionRepository() *ConditionRepository {
	return &ConditionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance, useful for tests.
func (r *ConditionRepository) WithDB(db *gorm.DB) *ConditionRepository {
	return &ConditionRepository{db: db}
}

// Add inserts a new condition. The condition belongs to exactly one symbol
// and one direction.
func (r *ConditionRepository) Add(ctx context.Context, condition *model.Condition) error {
	condition.Symbol = NormalizeSymbol(condition.Symbol)

	err := r.db.WithContext(ctx).Create(condition).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "ConditionRepository",
			"op":     "Add",
			"symbol": condition.Symbol,
			"value":  condition.Value,
		}).WithError(err).Error("Failed to add condition")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ConditionRepository",
		"condition_id": condition.ID,
		"symbol":       condition.Symbol,
	}).Info("condition added")
	return nil
}

// Remove deletes a condition by id.
func (r *ConditionRepository) Remove(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&model.Condition{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActive returns the active conditions, optionally limited to one symbol,
// in insertion order.
func (r *ConditionRepository) ListActive(ctx context.Context, symbol string) ([]model.Condition, error) {
	query := r.db.WithContext(ctx).Where("active = ?", true)
	if symbol != "" {
		query = query.Where("symbol = ?", NormalizeSymbol(symbol))
	}

	var conditions []model.Condition
	if err := query.Order("id ASC").Find(&conditions).Error; err != nil {
		logger.WithField("repo", "ConditionRepository").
			WithError(err).Error("Failed to list active conditions")
		return nil, err
	}
	return conditions, nil
}

// CountActive returns the number of active conditions across all symbols.
func (r *ConditionRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Condition{}).
		Where("active = ?", true).
		Count(&count).Error
	return count, err
}

// SetActive flips a condition's active flag.
func (r *ConditionRepository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Condition{}).
		Where("id = ?", id).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
