package stream

import (
	"time"

	"quanttrader/pkg/bybit"
)

// TradeTick is one decoded public trade delivered downstream.
type TradeTick struct {
	Symbol string
	Price  float64
	Volume float64
	Side   string // taker side, "Buy" or "Sell"
	At     time.Time
}

// Candle is one decoded kline delivered downstream. Confirm distinguishes a
// finalized candle from an in-progress update; only finalized candles should
// trigger analysis.
type Candle struct {
	Symbol   string
	Interval string // minutes, e.g. "1", "5", "15"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Confirm  bool
	Start    time.Time
	End      time.Time
}

// Connection is the slice of bybit.StreamConn the stream layer depends on.
type Connection interface {
	Connect() error
	Close() error
	Topic() string
	IsConnected() bool
}

// ConnFactory builds a connection for one topic delivering decoded envelopes
// to handler.
type ConnFactory func(topic string, handler func(bybit.StreamEnvelope)) Connection
