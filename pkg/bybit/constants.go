package bybit

import "fmt"

// KlineInterval is the interval type used for API and stream topics.
type KlineInterval string

// KlineIntervalMeta holds the API value and display value for a Kline interval.
type KlineIntervalMeta struct {
	APIValue string
	Display  string
	Minutes  int
}

const (
	Interval1Min  KlineInterval = "1"
	Interval3Min  KlineInterval = "3"
	Interval5Min  KlineInterval = "5"
	Interval15Min KlineInterval = "15"
	Interval30Min KlineInterval = "30"
	Interval60Min KlineInterval = "60"
)

// validKlineIntervals maps KlineInterval to its representations.
var validKlineIntervals = map[KlineInterval]KlineIntervalMeta{
	Interval1Min:  {APIValue: "1", Display: "1m", Minutes: 1},
	Interval3Min:  {APIValue: "3", Display: "3m", Minutes: 3},
	Interval5Min:  {APIValue: "5", Display: "5m", Minutes: 5},
	Interval15Min: {APIValue: "15", Display: "15m", Minutes: 15},
	Interval30Min: {APIValue: "30", Display: "30m", Minutes: 30},
	Interval60Min: {APIValue: "60", Display: "1h", Minutes: 60},
}

// IsValid checks if the KlineInterval is a valid predefined interval.
func (k KlineInterval) IsValid() bool {
	_, ok := validKlineIntervals[k]
	return ok
}

// ParseKlineInterval parses a string into a valid KlineIntervalMeta.
func ParseKlineInterval(s string) (KlineIntervalMeta, error) {
	meta, ok := validKlineIntervals[KlineInterval(s)]
	if !ok {
		return KlineIntervalMeta{}, fmt.Errorf("invalid KlineInterval: %s", s)
	}
	return meta, nil
}

// TradeTopic builds the public trade stream topic, e.g. "publicTrade.BTCUSDT".
func TradeTopic(symbol string) string {
	return "publicTrade." + symbol
}

// KlineTopic builds the kline stream topic, e.g. "kline.5.BTCUSDT".
func KlineTopic(interval, symbol string) string {
	return fmt.Sprintf("kline.%s.%s", interval, symbol)
}
