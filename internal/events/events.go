package events

import (
	"time"

	"quanttrader/internal/model"
)

// AnalysisCompleted is published by the external analyzer when a finalized
// candle has been processed into a full analysis result.
type AnalysisCompleted struct {
	Symbol     string
	Result     model.AnalysisResult
	Timeframe  string // e.g., "15m"
	AnalyzedAt time.Time
}

// PositionOpened is published by the execution collaborator once an entry
// order is confirmed filled.
type PositionOpened struct {
	Symbol   string
	Side     model.Side
	Quantity float64
	Leverage float64
	Notional float64 // quote-currency size after leverage
}

// PositionClosed is published once a close order is confirmed filled.
type PositionClosed struct {
	Symbol   string
	Side     model.Side
	Quantity float64
}

// SignalEmitted wraps a trading signal produced by the engine.
type SignalEmitted struct {
	Signal model.TradingSignal
}
