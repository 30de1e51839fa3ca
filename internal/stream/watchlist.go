package stream

import (
	"sync"
	"time"

	"quanttrader/config"
	"quanttrader/pkg/bybit"

	"go.uber.org/zap"
)

// Watchlist keeps one always-on kline channel at the watch interval (e.g.
// 15m) per tracked symbol, independent of position state. Finalized candles
// from these channels are what feeds the external analyzer. The set of
// symbols is reconciled periodically so config changes and delisted symbols
// converge without a restart.
type Watchlist struct {
	cfg     config.StreamConfig
	log     *zap.Logger
	newConn ConnFactory
	router  *Router
	symbols func() ([]string, error)

	mu    sync.Mutex
	conns map[string]Connection

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWatchlist builds a reconciler around a symbol source. The source
// usually wraps the configured watch symbols filtered against the exchange's
// tradable instruments.
func NewWatchlist(cfg config.StreamConfig, router *Router, factory ConnFactory,
	symbols func() ([]string, error), logger *zap.Logger) *Watchlist {
	return &Watchlist{
		cfg:      cfg,
		log:      logger,
		newConn:  factory,
		router:   router,
		symbols:  symbols,
		conns:    make(map[string]Connection),
		stopChan: make(chan struct{}),
	}
}

// Start reconciles immediately, then on every tick until Stop.
func (w *Watchlist) Start() {
	go func() {
		w.reconcile()

		ticker := time.NewTicker(w.cfg.WatchReconcile)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopChan:
				return
			case <-ticker.C:
				w.reconcile()
			}
		}
	}()
}

// Stop halts reconciliation and closes every watch channel.
func (w *Watchlist) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })

	w.mu.Lock()
	defer w.mu.Unlock()
	for symbol, c := range w.conns {
		_ = c.Close()
		delete(w.conns, symbol)
	}
}

// Watching returns whether symbol currently has a watch channel.
func (w *Watchlist) Watching(symbol string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.conns[symbol]
	return ok
}

func (w *Watchlist) reconcile() {
	symbols, err := w.symbols()
	if err != nil {
		w.log.Warn("watchlist: symbol source unavailable, keeping current set", zap.Error(err))
		return
	}

	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Close channels for symbols no longer tracked.
	for symbol, c := range w.conns {
		if _, ok := want[symbol]; !ok {
			_ = c.Close()
			delete(w.conns, symbol)
			w.log.Info("watch channel closed", zap.String("symbol", symbol))
		}
	}

	// Open channels for newly tracked symbols.
	for symbol := range want {
		if _, ok := w.conns[symbol]; ok {
			continue
		}
		c := w.newConn(bybit.KlineTopic(w.cfg.WatchInterval, symbol), w.router.Handle)
		if err := c.Connect(); err != nil {
			w.log.Warn("watch channel connect failed; will retry next reconcile",
				zap.String("symbol", symbol), zap.Error(err))
			_ = c.Close()
			continue
		}
		w.conns[symbol] = c
		w.log.Info("watch channel opened",
			zap.String("symbol", symbol), zap.String("interval", w.cfg.WatchInterval))
	}
}
