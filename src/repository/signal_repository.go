package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/database"
	"autotrader/src/model"
)

// SignalRepository is the signal log: every gated signal is recorded here
// together with the admission decision.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance, useful for tests.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Record persists a gating decision and returns the stored record.
func (r *SignalRepository) Record(ctx context.Context, signal model.Signal, admitted bool, reason string) (*model.SignalRecord, error) {
	record := model.SignalRecord{
		Symbol:         signal.Symbol,
		Direction:      signal.Direction,
		ConditionID:    signal.ConditionID,
		ConditionValue: signal.ConditionValue,
		Price:          signal.Price,
		IndicatorValue: signal.IndicatorValue,
		Admitted:       admitted,
		Reason:         reason,
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SignalRepository",
			"op":     "Record",
			"symbol": signal.Symbol,
		}).WithError(err).Error("Failed to record signal")
		return nil, err
	}

	return &record, nil
}

// MarkExecuted stamps execution details onto a recorded signal once the
// resulting order went out.
func (r *SignalRepository) MarkExecuted(ctx context.Context, signalID uint, price float64, quantity int) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.SignalRecord{}).
		Where("id = ?", signalID).
		Updates(map[string]interface{}{
			"executed_price": price,
			"executed_qty":   quantity,
			"executed_at":    now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Recent returns the latest records, newest first.
func (r *SignalRepository) Recent(ctx context.Context, limit int) ([]model.SignalRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []model.SignalRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
