package position

import (
	"sync"
	"time"

	"quanttrader/internal/model"
)

// Tracker is the authoritative per-symbol snapshot of open positions. It is
// written by the execution-confirmation path and read by the signal engine;
// the engine never mutates it directly. At most one position exists per
// symbol.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]model.Position
}

func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]model.Position),
	}
}

// Get returns the open position for symbol, if any.
func (t *Tracker) Get(symbol string) (model.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

// Open records a confirmed position, replacing any previous entry for the
// symbol.
func (t *Tracker) Open(p model.Position) {
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	t.mu.Lock()
	t.positions[p.Symbol] = p
	t.mu.Unlock()
}

// Close removes the position for symbol. Closing an untracked symbol is a
// no-op; close confirmations can arrive after a restart wiped local state.
func (t *Tracker) Close(symbol string) {
	t.mu.Lock()
	delete(t.positions, symbol)
	t.mu.Unlock()
}

// Symbols returns the symbols with an open position.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.positions))
	for symbol := range t.positions {
		out = append(out, symbol)
	}
	return out
}

// Count returns the number of open positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}
