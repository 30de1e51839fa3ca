package postgres

import (
	"context"
	"time"

	"quanttrader/internal/model"

	"gorm.io/gorm/clause"
)

// InsertSignal stores one emitted signal. Re-delivery of the same signal id
// is silently ignored.
func (p *PostgresClient) InsertSignal(ctx context.Context, record *SignalRecord) error {
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signal_id"}},
		DoNothing: true,
	}).Create(record).Error
}

// GetSignalsBySymbol returns the most recent signals for a symbol, newest first.
func (p *PostgresClient) GetSignalsBySymbol(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	var records []SignalRecord
	err := p.DB.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("emitted_at DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteOldSignals prunes audit rows older than the cutoff.
func (p *PostgresClient) DeleteOldSignals(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("emitted_at < ?", before).
		Delete(&SignalRecord{}).Error
}

// ToSignalRecord converts an emitted trading signal into its audit row.
func ToSignalRecord(s model.TradingSignal) *SignalRecord {
	return &SignalRecord{
		SignalID:     s.ID,
		Symbol:       s.Symbol,
		Side:         string(s.Side),
		StrategyName: s.StrategyName,
		EmittedAt:    s.Timestamp,
		EntryPrice:   s.EntryPrice,
		StopLoss:     s.StopLoss,
		TakeProfit:   s.TakeProfit,
		Quantity:     s.Quantity,
		TargetMethod: s.Metadata["targetMethod"],
	}
}
