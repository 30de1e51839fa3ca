package engine

import (
	"quanttrader/internal/cache"
	"quanttrader/internal/model"
)

// Targets are the protective price levels attached to an entry signal.
type Targets struct {
	StopLoss   float64
	TakeProfit float64
	Method     string // "atr" or "percent"
}

// atrTargets derives stop/take-profit from volatility: distance scales with
// the ATR and the configured multipliers. Signs invert for shorts.
func atrTargets(side model.Side, price, atr, slMult, tpMult float64) Targets {
	slDistance := atr * slMult
	tpDistance := atr * tpMult

	t := Targets{Method: "atr"}
	if side == model.SideLong {
		t.StopLoss = price - slDistance
		t.TakeProfit = price + tpDistance
	} else {
		t.StopLoss = price + slDistance
		t.TakeProfit = price - tpDistance
	}
	return t
}

// percentTargets is the fixed-percentage fallback used when no ATR is cached.
func percentTargets(side model.Side, price, slPct, tpPct float64) Targets {
	t := Targets{Method: "percent"}
	if side == model.SideLong {
		t.StopLoss = price * (1 - slPct)
		t.TakeProfit = price * (1 + tpPct)
	} else {
		t.StopLoss = price * (1 + slPct)
		t.TakeProfit = price * (1 - tpPct)
	}
	return t
}

// positionSize converts the allocated slice of the balance into base units:
// (balance * allocationPct) * leverage / price. A non-positive result cancels
// the entry upstream.
func positionSize(balance, allocationPct, leverage, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return balance * allocationPct * leverage / price
}

// computeTargets picks the ATR method when a cached ATR exists, falling back
// to fixed percentages otherwise. Multipliers are runtime-overridable through
// the metric cache.
func (e *Engine) computeTargets(symbol string, side model.Side, price float64) Targets {
	if atr, ok := e.cache.Get(cache.ATRKey(symbol)); ok && atr > 0 {
		slMult := e.override("stop_loss_atr_mult", e.cfg.StopLossATRMult)
		tpMult := e.override("take_profit_atr_mult", e.cfg.TakeProfitATRMult)
		return atrTargets(side, price, atr, slMult, tpMult)
	}

	slPct, tpPct := e.cfg.FuturesStopLossPct, e.cfg.FuturesTakeProfitPct
	if e.cfg.Market == "spot" {
		slPct, tpPct = e.cfg.SpotStopLossPct, e.cfg.SpotTakeProfitPct
	}
	return percentTargets(side, price, slPct, tpPct)
}

// override reads a runtime-tunable value from the cache, falling back to the
// static config default.
func (e *Engine) override(name string, def float64) float64 {
	if v, ok := e.cache.Get(cache.OverrideKey(name)); ok && v > 0 {
		return v
	}
	return def
}
