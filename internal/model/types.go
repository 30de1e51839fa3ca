package model

import "time"

// Side is the direction of a position or signal.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the reverse direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OverallSignal is the aggregate verdict of the external analyzer.
type OverallSignal string

const (
	SignalStrongBuy  OverallSignal = "STRONG_BUY"
	SignalBuy        OverallSignal = "BUY"
	SignalNeutral    OverallSignal = "NEUTRAL"
	SignalSell       OverallSignal = "SELL"
	SignalStrongSell OverallSignal = "STRONG_SELL"
)

// Position is the authoritative snapshot of one open position.
// At most one position exists per symbol.
type Position struct {
	Symbol     string    `json:"symbol"`     // e.g., "BTCUSDT"
	Side       Side      `json:"side"`       // LONG or SHORT
	EntryPrice float64   `json:"entryPrice"` // fill price of the opening order
	Quantity   float64   `json:"quantity"`   // position size in base units
	Leverage   float64   `json:"leverage"`   // applied leverage multiplier
	OpenedAt   time.Time `json:"openedAt"`   // when the opening fill was confirmed
}

// PivotLevels holds support/resistance levels derived from the prior period.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
}

// Indicators carries the technical values the engine reads from an analysis
// result. Zero-valued fields mean the analyzer could not compute the value;
// the engine substitutes neutral defaults rather than failing.
type Indicators struct {
	RSI         float64     `json:"rsi"`         // 0..100, 0 means unavailable
	ATR         float64     `json:"atr"`         // average true range, 0 means unavailable
	VolumeRatio float64     `json:"volumeRatio"` // current volume / average volume
	Pivots      PivotLevels `json:"pivots"`
}

// StrategyVote is one strategy's contribution to the overall verdict.
type StrategyVote struct {
	Name   string        `json:"name"`
	Signal OverallSignal `json:"signal"`
	Weight float64       `json:"weight"`
}

// AnalysisResult is the fully-formed output of the external analyzer.
// The engine never computes indicators itself.
type AnalysisResult struct {
	Symbol        string         `json:"symbol"`
	OverallSignal OverallSignal  `json:"overallSignal"`
	CurrentPrice  float64        `json:"currentPrice"`
	Indicators    Indicators     `json:"indicators"`
	Strategies    []StrategyVote `json:"strategies"`
}

// TradingSignal is the engine's output, consumed by the external execution
// collaborator. Immutable once emitted.
type TradingSignal struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Symbol       string            `json:"symbol"`
	Side         Side              `json:"side"`
	StrategyName string            `json:"strategyName"`
	EntryPrice   float64           `json:"entryPrice"`
	StopLoss     float64           `json:"stopLoss"`
	TakeProfit   float64           `json:"takeProfit"`
	Quantity     float64           `json:"quantity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
