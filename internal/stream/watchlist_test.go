package stream

import (
	"errors"
	"testing"
	"time"

	"quanttrader/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestWatchlist(t *testing.T, symbols func() ([]string, error)) (*Watchlist, *fakeFactory) {
	t.Helper()
	factory := newFakeFactory()
	router := NewRouter(0, nil, nil, zap.NewNop())
	cfg := config.StreamConfig{
		WatchInterval:  "15",
		WatchReconcile: time.Minute,
	}
	return NewWatchlist(cfg, router, factory.build, symbols, zap.NewNop()), factory
}

func TestWatchlistOpensConfiguredSymbols(t *testing.T) {
	w, factory := newTestWatchlist(t, func() ([]string, error) {
		return []string{"BTCUSDT", "ETHUSDT"}, nil
	})

	w.reconcile()

	assert.True(t, w.Watching("BTCUSDT"))
	assert.True(t, w.Watching("ETHUSDT"))
	assert.NotNil(t, factory.conn("kline.15.BTCUSDT"))
	assert.NotNil(t, factory.conn("kline.15.ETHUSDT"))
}

func TestWatchlistReconcileConverges(t *testing.T) {
	current := []string{"BTCUSDT", "ETHUSDT"}
	w, factory := newTestWatchlist(t, func() ([]string, error) {
		return current, nil
	})

	w.reconcile()

	// Symbol set changes: ETHUSDT leaves, SOLUSDT arrives.
	current = []string{"BTCUSDT", "SOLUSDT"}
	w.reconcile()

	assert.True(t, w.Watching("BTCUSDT"))
	assert.False(t, w.Watching("ETHUSDT"))
	assert.True(t, w.Watching("SOLUSDT"))
	assert.Equal(t, 1, factory.conn("kline.15.ETHUSDT").closeCount())
	// The surviving channel was not churned.
	assert.Equal(t, 1, factory.conn("kline.15.BTCUSDT").connects)
}

func TestWatchlistKeepsSetWhenSourceFails(t *testing.T) {
	calls := 0
	w, _ := newTestWatchlist(t, func() ([]string, error) {
		calls++
		if calls == 1 {
			return []string{"BTCUSDT"}, nil
		}
		return nil, errors.New("instruments endpoint down")
	})

	w.reconcile()
	w.reconcile() // source error: current set must survive

	assert.True(t, w.Watching("BTCUSDT"))
}

func TestWatchlistRetriesFailedConnect(t *testing.T) {
	w, factory := newTestWatchlist(t, func() ([]string, error) {
		return []string{"BTCUSDT"}, nil
	})
	factory.failTopics["kline.15.BTCUSDT"] = true

	w.reconcile()
	assert.False(t, w.Watching("BTCUSDT"))

	// Next reconcile picks the symbol up once connects succeed again.
	factory.mu.Lock()
	factory.failTopics["kline.15.BTCUSDT"] = false
	factory.mu.Unlock()
	w.reconcile()
	assert.True(t, w.Watching("BTCUSDT"))
}

func TestWatchlistStopClosesEverything(t *testing.T) {
	w, factory := newTestWatchlist(t, func() ([]string, error) {
		return []string{"BTCUSDT"}, nil
	})

	w.Start()
	defer w.Stop()

	assert.Eventually(t, func() bool { return w.Watching("BTCUSDT") },
		time.Second, 10*time.Millisecond)

	w.Stop()
	assert.False(t, w.Watching("BTCUSDT"))
	assert.Equal(t, 1, factory.conn("kline.15.BTCUSDT").closeCount())
}
