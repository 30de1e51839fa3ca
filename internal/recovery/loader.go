package recovery

import (
	"context"
	"fmt"

	"quanttrader/internal/model"
	"quanttrader/internal/position"
	"quanttrader/internal/stream"
	"quanttrader/pkg/bybit"

	"go.uber.org/zap"
)

// Loader rebuilds local state after a restart: open positions are fetched
// from the exchange, seeded into the tracker, and each gets its monitoring
// bundle re-acquired. Without this a restart would leave live positions
// unmonitored until the next fill event.
type Loader struct {
	Rest     *bybit.RESTClient
	Tracker  *position.Tracker
	Registry *stream.Registry
	Logger   *zap.Logger
}

// Run performs one recovery pass. Per-symbol subscription failures are
// logged and skipped; a degraded bundle is better than refusing to start.
func (l *Loader) Run(ctx context.Context) error {
	open, err := l.Rest.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch open positions: %w", err)
	}

	for _, p := range open {
		side := model.SideLong
		if p.Side == "Sell" {
			side = model.SideShort
		}

		l.Tracker.Open(model.Position{
			Symbol:     p.Symbol,
			Side:       side,
			EntryPrice: p.AvgPrice,
			Quantity:   p.Size,
			Leverage:   p.Leverage,
			OpenedAt:   p.CreatedAt,
		})

		if err := l.Registry.Acquire(p.Symbol); err != nil {
			l.Logger.Warn("recovery: failed to acquire monitoring bundle",
				zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		l.Logger.Info("recovered open position",
			zap.String("symbol", p.Symbol),
			zap.String("side", string(side)),
			zap.Float64("size", p.Size))
	}

	l.Logger.Info("position recovery finished", zap.Int("positions", len(open)))
	return nil
}
