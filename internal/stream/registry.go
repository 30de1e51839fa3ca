package stream

import (
	"fmt"
	"sync"

	"quanttrader/config"
	"quanttrader/pkg/bybit"

	"go.uber.org/zap"
)

// Registry deduplicates interest in per-symbol monitoring bundles. A bundle
// is the trade-tick channel plus one kline channel per configured interval,
// treated as one atomic unit: acquiring a symbol twice bumps a single shared
// reference count, and the connections exist iff that count is positive.
type Registry struct {
	cfg     config.StreamConfig
	log     *zap.Logger
	newConn ConnFactory
	router  *Router

	mu      sync.Mutex
	bundles map[string]*bundle
}

type bundle struct {
	refCount int
	conns    []Connection
}

func NewRegistry(cfg config.StreamConfig, router *Router, factory ConnFactory, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		log:     logger,
		newConn: factory,
		router:  router,
		bundles: make(map[string]*bundle),
	}
}

// Acquire registers interest in a symbol's monitoring bundle. The first
// acquire opens and connects every channel in the bundle; later ones only
// increment the reference count.
func (r *Registry) Acquire(symbol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[symbol]; ok {
		b.refCount++
		r.log.Debug("bundle ref incremented",
			zap.String("symbol", symbol), zap.Int("refCount", b.refCount))
		return nil
	}

	topics := r.bundleTopics(symbol)
	conns := make([]Connection, 0, len(topics))
	for _, topic := range topics {
		c := r.newConn(topic, r.router.Handle)
		if err := c.Connect(); err != nil {
			// No partial bundles: tear down whatever already connected.
			for _, opened := range conns {
				_ = opened.Close()
			}
			_ = c.Close()
			return fmt.Errorf("acquire %s: %w", symbol, err)
		}
		conns = append(conns, c)
	}

	r.bundles[symbol] = &bundle{refCount: 1, conns: conns}
	r.log.Info("monitoring bundle opened",
		zap.String("symbol", symbol), zap.Int("channels", len(conns)))
	return nil
}

// Release drops one reference to the symbol's bundle. When the count reaches
// zero every channel is closed and the entry removed. Releasing an unknown
// symbol only warns: close confirmations can race a prior teardown.
func (r *Registry) Release(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bundles[symbol]
	if !ok {
		r.log.Warn("release of unsubscribed symbol", zap.String("symbol", symbol))
		return
	}

	b.refCount--
	if b.refCount > 0 {
		r.log.Debug("bundle ref decremented",
			zap.String("symbol", symbol), zap.Int("refCount", b.refCount))
		return
	}

	for _, c := range b.conns {
		if err := c.Close(); err != nil {
			r.log.Warn("error closing stream",
				zap.String("topic", c.Topic()), zap.Error(err))
		}
	}
	delete(r.bundles, symbol)
	r.log.Info("monitoring bundle closed", zap.String("symbol", symbol))
}

// RefCount returns the current reference count for symbol (0 when absent).
func (r *Registry) RefCount(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bundles[symbol]; ok {
		return b.refCount
	}
	return 0
}

// Subscribed reports whether a bundle exists for symbol.
func (r *Registry) Subscribed(symbol string) bool {
	return r.RefCount(symbol) > 0
}

// CloseAll tears down every bundle regardless of reference counts. Shutdown
// path only.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol, b := range r.bundles {
		for _, c := range b.conns {
			_ = c.Close()
		}
		delete(r.bundles, symbol)
	}
}

func (r *Registry) bundleTopics(symbol string) []string {
	topics := []string{bybit.TradeTopic(symbol)}
	for _, interval := range r.cfg.BundleIntervals {
		topics = append(topics, bybit.KlineTopic(interval, symbol))
	}
	return topics
}
