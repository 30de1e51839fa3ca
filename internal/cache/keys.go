package cache

// Key conventions shared by metric producers and consumers.

const (
	// ATRPrefix namespaces per-symbol ATR values, e.g. "atr:BTCUSDT".
	ATRPrefix = "atr:"
	// OverridePrefix namespaces runtime-tunable config overrides,
	// e.g. "override:stop_loss_atr_mult".
	OverridePrefix = "override:"
)

// ATRKey returns the cache key holding a symbol's ATR value.
func ATRKey(symbol string) string {
	return ATRPrefix + symbol
}

// OverrideKey returns the cache key holding a runtime config override.
func OverrideKey(name string) string {
	return OverridePrefix + name
}
