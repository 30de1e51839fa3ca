package postgres

import "time"

// SignalRecord is the audit-trail row for one emitted trading signal.
type SignalRecord struct {
	ID uint `gorm:"primaryKey"`

	SignalID string `gorm:"type:text;not null;uniqueIndex:idx_signal_id"`

	Symbol       string    `gorm:"type:text;not null;index:idx_signal_symbol"`
	Side         string    `gorm:"type:varchar(8);not null"`
	StrategyName string    `gorm:"type:text;not null"`
	EmittedAt    time.Time `gorm:"not null;index:idx_signal_emitted_at"`

	EntryPrice float64 `gorm:"type:numeric;not null"`
	StopLoss   float64 `gorm:"type:numeric;not null"`
	TakeProfit float64 `gorm:"type:numeric;not null"`
	Quantity   float64 `gorm:"type:numeric;not null"`

	TargetMethod string `gorm:"type:varchar(16)"` // "atr" or "percent"

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (SignalRecord) TableName() string {
	return "signal_record"
}
