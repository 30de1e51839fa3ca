package stream

import (
	"quanttrader/config"
	"quanttrader/internal/metrics"
	"quanttrader/pkg/bybit"

	"go.uber.org/zap"
)

// NewConnFactory returns the production ConnFactory: gorilla-websocket
// streams with the configured backoff, reporting state transitions to the
// logger and prometheus. A terminal failure is a degraded subscription, not a
// process crash; it is surfaced here and left for the operator.
func NewConnFactory(wsURL string, cfg config.StreamConfig, logger *zap.Logger) ConnFactory {
	backoff := bybit.BackoffConfig{
		Base:        cfg.ReconnectBase,
		Max:         cfg.ReconnectMax,
		MaxAttempts: cfg.MaxAttempts,
	}

	return func(topic string, handler func(bybit.StreamEnvelope)) Connection {
		c := bybit.NewStreamConn(wsURL, topic, backoff, handler, logger)
		c.SetStateHandler(func(topic string, state bybit.ConnState, err error) {
			switch state {
			case bybit.StateReconnecting:
				metrics.StreamReconnects.WithLabelValues(topic).Inc()
			case bybit.StateFailed:
				metrics.StreamFailures.WithLabelValues(topic).Inc()
				logger.Error("stream subscription degraded",
					zap.String("topic", topic), zap.Error(err))
			}
		})
		return c
	}
}
