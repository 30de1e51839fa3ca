package engine

import (
	"quanttrader/config"
	"quanttrader/internal/model"
)

// entryChecks is the outcome of the three boolean entry conditions. Each
// check treats missing indicator data (zero values) as neutral: the condition
// simply does not vote, it never crashes the evaluation.
type entryChecks struct {
	PivotTouch  bool // price within tolerance of a support/resistance pivot
	RSISignal   bool // oversold (long) or overbought (short)
	VolumeSurge bool // volume ratio above the surge threshold
}

func (c entryChecks) votes() int {
	n := 0
	if c.PivotTouch {
		n++
	}
	if c.RSISignal {
		n++
	}
	if c.VolumeSurge {
		n++
	}
	return n
}

// evaluateLongEntry runs the long-side condition set: price hugging S1/S2
// from above, RSI below the oversold threshold, volume surging.
func evaluateLongEntry(ind model.Indicators, price float64, cfg config.TradingConfig) entryChecks {
	return entryChecks{
		PivotTouch: nearSupport(price, ind.Pivots.S1, cfg.PivotTolerance) ||
			nearSupport(price, ind.Pivots.S2, cfg.PivotTolerance),
		RSISignal:   ind.RSI > 0 && ind.RSI < cfg.RSIOversold,
		VolumeSurge: ind.VolumeRatio >= cfg.VolumeSurge,
	}
}

// evaluateShortEntry is the symmetric resistance-side set.
func evaluateShortEntry(ind model.Indicators, price float64, cfg config.TradingConfig) entryChecks {
	return entryChecks{
		PivotTouch: nearResistance(price, ind.Pivots.R1, cfg.PivotTolerance) ||
			nearResistance(price, ind.Pivots.R2, cfg.PivotTolerance),
		RSISignal:   ind.RSI > cfg.RSIOverbought,
		VolumeSurge: ind.VolumeRatio >= cfg.VolumeSurge,
	}
}

// nearSupport reports whether price sits at most tolerance above the support
// level. An absent level (zero) never matches.
func nearSupport(price, level, tolerance float64) bool {
	return level > 0 && price <= level*(1+tolerance)
}

// nearResistance reports whether price sits at most tolerance below the
// resistance level.
func nearResistance(price, level, tolerance float64) bool {
	return level > 0 && price >= level*(1-tolerance)
}

// wantsLongEntry reports whether the overall signal even qualifies for the
// long path. Plain BUY is deliberately not enough to open a fresh long.
func wantsLongEntry(s model.OverallSignal) bool {
	return s == model.SignalStrongBuy
}

// wantsShortEntry reports whether the overall signal qualifies for the short
// path.
func wantsShortEntry(s model.OverallSignal) bool {
	return s == model.SignalStrongSell || s == model.SignalSell
}

// wantsSwitch reports whether the overall signal points against the open
// position's direction.
func wantsSwitch(side model.Side, s model.OverallSignal) bool {
	switch side {
	case model.SideLong:
		return s == model.SignalSell || s == model.SignalStrongSell
	case model.SideShort:
		return s == model.SignalBuy || s == model.SignalStrongBuy
	}
	return false
}
