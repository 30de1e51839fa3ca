package stream

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"quanttrader/internal/metrics"
	"quanttrader/pkg/bybit"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var routerJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Router decodes stream envelopes into domain messages and forwards them to
// the registered sinks. Trade ticks are throttled to one delivery per symbol
// per throttle interval; anything faster is dropped before it reaches a
// consumer. Klines arrive at a bounded rate already and always pass through.
type Router struct {
	log      *zap.Logger
	throttle time.Duration

	onTrade  func(TradeTick)
	onCandle func(Candle)

	mu       sync.Mutex
	lastTick map[string]time.Time
}

func NewRouter(throttle time.Duration, onTrade func(TradeTick), onCandle func(Candle), logger *zap.Logger) *Router {
	return &Router{
		log:      logger,
		throttle: throttle,
		onTrade:  onTrade,
		onCandle: onCandle,
		lastTick: make(map[string]time.Time),
	}
}

// Handle routes one decoded envelope by topic kind.
func (r *Router) Handle(env bybit.StreamEnvelope) {
	switch {
	case strings.HasPrefix(env.Topic, "publicTrade."):
		r.handleTrades(env)
	case strings.HasPrefix(env.Topic, "kline."):
		r.handleKlines(env)
	}
}

func (r *Router) handleTrades(env bybit.StreamEnvelope) {
	if r.onTrade == nil {
		return
	}

	var trades []bybit.Trade
	if err := routerJSON.Unmarshal(env.Data, &trades); err != nil {
		r.log.Warn("failed to parse trade payload", zap.String("topic", env.Topic), zap.Error(err))
		return
	}
	if len(trades) == 0 {
		return
	}

	// Ticks can arrive in the hundreds per second; only the newest one in the
	// frame matters downstream.
	last := trades[len(trades)-1]
	symbol := last.Symbol
	if symbol == "" {
		symbol = symbolFromTopic(env.Topic)
	}

	if !r.allowTick(symbol) {
		metrics.TicksThrottled.WithLabelValues(symbol).Inc()
		return
	}

	price, err := strconv.ParseFloat(last.Price, 64)
	if err != nil {
		r.log.Warn("failed to parse trade price", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	volume, _ := strconv.ParseFloat(last.Volume, 64)

	r.onTrade(TradeTick{
		Symbol: symbol,
		Price:  price,
		Volume: volume,
		Side:   last.Side,
		At:     time.UnixMilli(last.Timestamp),
	})
}

func (r *Router) handleKlines(env bybit.StreamEnvelope) {
	if r.onCandle == nil {
		return
	}

	var klines []bybit.Kline
	if err := routerJSON.Unmarshal(env.Data, &klines); err != nil {
		r.log.Warn("failed to parse kline payload", zap.String("topic", env.Topic), zap.Error(err))
		return
	}
	symbol := symbolFromTopic(env.Topic)

	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			r.log.Warn("failed to parse kline prices", zap.String("topic", env.Topic))
			continue
		}
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		r.onCandle(Candle{
			Symbol:   symbol,
			Interval: k.Interval,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
			Confirm:  k.Confirm,
			Start:    time.UnixMilli(k.Start),
			End:      time.UnixMilli(k.End),
		})
	}
}

// allowTick applies the per-symbol minimum inter-delivery interval.
func (r *Router) allowTick(symbol string) bool {
	if r.throttle <= 0 {
		return true
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastTick[symbol]; ok && now.Sub(last) < r.throttle {
		return false
	}
	r.lastTick[symbol] = now
	return true
}

// symbolFromTopic extracts the symbol from a topic like "kline.1.BTCUSDT" or
// "publicTrade.BTCUSDT".
func symbolFromTopic(topic string) string {
	parts := strings.Split(topic, ".")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
