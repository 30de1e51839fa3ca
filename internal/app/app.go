package app

import (
	"context"
	"fmt"
	"time"

	"quanttrader/config"
	"quanttrader/internal/cache"
	"quanttrader/internal/engine"
	"quanttrader/internal/events"
	"quanttrader/internal/execution"
	"quanttrader/internal/metrics"
	"quanttrader/internal/model"
	"quanttrader/internal/position"
	"quanttrader/internal/recovery"
	"quanttrader/internal/stream"
	"quanttrader/pkg/bybit"
	"quanttrader/pkg/storage/postgres"

	"go.uber.org/zap"
)

// App holds the wired trading core. Every component is constructed and
// subscribed here; nothing reaches into ambient global state.
type App struct {
	Bus *events.Bus

	log       *zap.Logger
	cache     *cache.Cache[float64]
	registry  *stream.Registry
	watchlist *stream.Watchlist
	engine    *engine.Engine
	storage   *postgres.PostgresClient
}

// Start builds and launches the trading core. The returned App's Bus is the
// entry point for inbound events (analysis results, execution confirmations).
func Start(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Signal audit trail
	storageClient, err := postgres.InitializeAndMigrateSignalRecord(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	bus := events.NewBus()

	metricCache := cache.New[float64](cfg.Cache.DefaultTTL, cfg.Cache.SweepInterval)
	metricCache.SetEvictionHook(func(count int) {
		metrics.CacheEvictions.Add(float64(count))
	})
	metricCache.StartSweep()

	tracker := position.NewTracker()

	restClient := bybit.NewRESTClient(
		cfg.Bybit.REST.BaseURL,
		cfg.Bybit.REST.APIKey,
		cfg.Bybit.REST.APISecret,
		cfg.Bybit.REST.Timeout,
	)

	// Stream layer: one router shared by the monitoring bundles and the
	// always-on watch channels. Decoded ticks and candles go to the external
	// monitoring/analysis collaborators; their analysis results come back
	// out-of-band as AnalysisCompleted events on the bus.
	router := stream.NewRouter(cfg.Stream.TickThrottle,
		func(tick stream.TradeTick) {
			logger.Debug("tick",
				zap.String("symbol", tick.Symbol), zap.Float64("price", tick.Price))
		},
		func(c stream.Candle) {
			if !c.Confirm {
				return // only finalized candles feed analysis
			}
			logger.Debug("finalized candle",
				zap.String("symbol", c.Symbol),
				zap.String("interval", c.Interval),
				zap.Float64("close", c.Close))
		},
		logger,
	)

	factory := stream.NewConnFactory(cfg.Bybit.WS.URL, cfg.Stream, logger)
	registry := stream.NewRegistry(cfg.Stream, router, factory, logger)

	watchlist := stream.NewWatchlist(cfg.Stream, router, factory,
		watchSymbolSource(cfg, restClient), logger)

	executor := execution.NewClient(cfg.Execution.BaseURL, cfg.Execution.Timeout)

	emit := func(sig model.TradingSignal) {
		bus.PublishSignalEmitted(events.SignalEmitted{Signal: sig})
	}
	eng := engine.New(cfg.Trading, metricCache, tracker, executor, restClient, emit, logger)

	// Explicit subscriptions; no component listens to anything it did not ask for.
	// Fresh ATR values are published to the metric cache before the engine sees
	// the event, so target computation reads at most one TTL behind.
	bus.OnAnalysisCompleted(func(ev events.AnalysisCompleted) {
		if atr := ev.Result.Indicators.ATR; atr > 0 {
			metricCache.Set(cache.ATRKey(ev.Symbol), atr)
		}
	})
	bus.OnAnalysisCompleted(eng.HandleAnalysis)

	bus.OnPositionOpened(func(ev events.PositionOpened) {
		tracker.Open(model.Position{
			Symbol:   ev.Symbol,
			Side:     ev.Side,
			Quantity: ev.Quantity,
			Leverage: ev.Leverage,
		})
		if err := registry.Acquire(ev.Symbol); err != nil {
			logger.Error("failed to open monitoring bundle",
				zap.String("symbol", ev.Symbol), zap.Error(err))
		}
	})

	bus.OnPositionClosed(func(ev events.PositionClosed) {
		tracker.Close(ev.Symbol)
		registry.Release(ev.Symbol)
	})

	bus.OnSignalEmitted(func(ev events.SignalEmitted) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := storageClient.InsertSignal(ctx, postgres.ToSignalRecord(ev.Signal)); err != nil {
			logger.Warn("failed to record signal",
				zap.String("id", ev.Signal.ID), zap.Error(err))
		}
	})

	bus.Start()
	watchlist.Start()

	// Rebuild position state and monitoring bundles after a restart.
	loader := &recovery.Loader{
		Rest:     restClient,
		Tracker:  tracker,
		Registry: registry,
		Logger:   logger,
	}
	recoveryCtx, cancel := context.WithTimeout(context.Background(), cfg.Bybit.REST.Timeout)
	defer cancel()
	if err := loader.Run(recoveryCtx); err != nil {
		logger.Warn("position recovery failed; starting with empty state", zap.Error(err))
	}

	if cfg.Metrics.ListenAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.ListenAddr); err != nil {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	return &App{
		Bus:       bus,
		log:       logger,
		cache:     metricCache,
		registry:  registry,
		watchlist: watchlist,
		engine:    eng,
		storage:   storageClient,
	}, nil
}

// Stop tears the core down in dependency order.
func (a *App) Stop() {
	a.engine.Stop()
	a.watchlist.Stop()
	a.registry.CloseAll()
	a.Bus.Stop()
	a.cache.StopSweep()
	if err := a.storage.Close(); err != nil {
		a.log.Warn("error closing storage", zap.Error(err))
	}
}

// watchSymbolSource filters the configured watch symbols against the
// exchange's tradable instruments so a typo or delisting cannot wedge the
// watchlist.
func watchSymbolSource(cfg *config.Config, rest *bybit.RESTClient) func() ([]string, error) {
	return func() ([]string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Bybit.REST.Timeout)
		defer cancel()

		tradable, err := rest.GetLinearSymbols(ctx)
		if err != nil {
			return nil, err
		}

		valid := make(map[string]struct{}, len(tradable))
		for _, s := range tradable {
			valid[s] = struct{}{}
		}

		var out []string
		for _, s := range cfg.Stream.WatchSymbols {
			if _, ok := valid[s]; ok {
				out = append(out, s)
			}
		}
		return out, nil
	}
}
