package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quanttrader/config"
	"quanttrader/internal/cache"
	"quanttrader/internal/events"
	"quanttrader/internal/metrics"
	"quanttrader/internal/model"
	"quanttrader/internal/position"

	"go.uber.org/zap"
)

// Executor is the external execution collaborator. It places real orders;
// the engine only ever asks it to close a position ahead of a switch.
type Executor interface {
	ClosePosition(ctx context.Context, symbol string, side model.Side, quantity float64) error
}

// BalanceProvider supplies the available balance used for sizing.
type BalanceProvider interface {
	GetAvailableBalance(ctx context.Context) (float64, error)
}

const (
	symbolQueueSize = 16
	callTimeout     = 10 * time.Second
)

// Engine is the decision core. It consumes one analysis result per
// invocation and produces at most one trading signal. Events for the same
// symbol are processed strictly in arrival order by a dedicated per-symbol
// worker, so a slow external call can never let a second event read a stale
// position snapshot; different symbols proceed independently.
type Engine struct {
	cfg       config.TradingConfig
	log       *zap.Logger
	cache     *cache.Cache[float64]
	positions *position.Tracker
	executor  Executor
	balance   BalanceProvider
	emit      func(model.TradingSignal)

	mu     sync.Mutex
	queues map[string]chan events.AnalysisCompleted
	closed bool
	wg     sync.WaitGroup
}

func New(cfg config.TradingConfig, metricCache *cache.Cache[float64], tracker *position.Tracker,
	executor Executor, balance BalanceProvider, emit func(model.TradingSignal), logger *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		log:       logger,
		cache:     metricCache,
		positions: tracker,
		executor:  executor,
		balance:   balance,
		emit:      emit,
		queues:    make(map[string]chan events.AnalysisCompleted),
	}
}

// HandleAnalysis enqueues one analysis event onto its symbol's worker.
// Intended as the bus handler for AnalysisCompleted.
func (e *Engine) HandleAnalysis(ev events.AnalysisCompleted) {
	// The send must happen under the same lock as the closed check: Stop
	// closes the queues under e.mu, and a send after close panics. The send
	// is non-blocking, so holding the lock across it is safe.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	q, ok := e.queues[ev.Symbol]
	if !ok {
		q = make(chan events.AnalysisCompleted, symbolQueueSize)
		e.queues[ev.Symbol] = q
		e.wg.Add(1)
		go e.worker(q)
	}

	select {
	case q <- ev:
	default:
		// Analysis runs per finalized candle; a full queue means the symbol
		// is badly behind and the oldest context is stale anyway.
		e.log.Warn("analysis queue full, dropping event", zap.String("symbol", ev.Symbol))
	}
}

// Stop drains the per-symbol workers and waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, q := range e.queues {
		close(q)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) worker(q <-chan events.AnalysisCompleted) {
	defer e.wg.Done()
	for ev := range q {
		e.process(ev)
	}
}

// process handles one event. A failure for one symbol must never take down
// the engine, so panics are contained here.
func (e *Engine) process(ev events.AnalysisCompleted) {
	start := time.Now()
	defer func() {
		metrics.AnalysisDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
		if r := recover(); r != nil {
			e.log.Error("panic while processing analysis event",
				zap.String("symbol", ev.Symbol), zap.Any("panic", r))
		}
	}()

	result := ev.Result
	if pos, ok := e.positions.Get(ev.Symbol); ok {
		e.manage(pos, result)
		return
	}
	e.tryEntry(result)
}

// tryEntry is the no-current-position path: classify the overall signal and
// evaluate the matching condition set.
func (e *Engine) tryEntry(result model.AnalysisResult) {
	switch {
	case wantsLongEntry(result.OverallSignal):
		checks := evaluateLongEntry(result.Indicators, result.CurrentPrice, e.cfg)
		if checks.votes() < e.cfg.LongEntryVotes {
			e.skip(result.Symbol, model.SideLong, checks)
			return
		}
		e.enter(model.SideLong, result, checks)

	case wantsShortEntry(result.OverallSignal):
		checks := evaluateShortEntry(result.Indicators, result.CurrentPrice, e.cfg)
		if checks.votes() < e.cfg.ShortEntryVotes {
			e.skip(result.Symbol, model.SideShort, checks)
			return
		}
		e.enter(model.SideShort, result, checks)
	}
}

// manage is the existing-position path: the only management action is a
// switch on a reversal signal. There is no hold-time or loss-cap guard;
// position management is purely signal-driven.
func (e *Engine) manage(pos model.Position, result model.AnalysisResult) {
	if !wantsSwitch(pos.Side, result.OverallSignal) {
		return
	}

	target := pos.Side.Opposite()
	var checks entryChecks
	if target == model.SideShort {
		checks = evaluateShortEntry(result.Indicators, result.CurrentPrice, e.cfg)
	} else {
		checks = evaluateLongEntry(result.Indicators, result.CurrentPrice, e.cfg)
	}
	if checks.votes() < e.cfg.SwitchVotes {
		return
	}

	// Close first; only a confirmed close may be followed by the opposite
	// entry. If the close fails the original position is assumed to remain.
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	err := e.executor.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Quantity)
	cancel()
	if err != nil {
		e.log.Error("switch aborted: close failed",
			zap.String("symbol", pos.Symbol),
			zap.String("from", string(pos.Side)),
			zap.Error(err))
		metrics.EntriesSkipped.WithLabelValues("close_failed").Inc()
		return
	}

	e.log.Info("position closed for switch",
		zap.String("symbol", pos.Symbol),
		zap.String("from", string(pos.Side)),
		zap.String("to", string(target)))
	e.enter(target, result, checks)
}

// enter sizes the position, computes protective targets, and emits the
// trading signal. Sizing failures skip the entry; a degenerate order is worse
// than no order.
func (e *Engine) enter(side model.Side, result model.AnalysisResult, checks entryChecks) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	balance, err := e.balance.GetAvailableBalance(ctx)
	cancel()
	if err != nil {
		e.log.Warn("entry skipped: balance lookup failed",
			zap.String("symbol", result.Symbol), zap.Error(err))
		metrics.EntriesSkipped.WithLabelValues("balance").Inc()
		return
	}

	quantity := positionSize(balance, e.cfg.AllocationPct, e.cfg.Leverage, result.CurrentPrice)
	if quantity <= 0 {
		e.log.Warn("entry skipped: non-positive quantity",
			zap.String("symbol", result.Symbol),
			zap.Float64("balance", balance),
			zap.Float64("price", result.CurrentPrice))
		metrics.EntriesSkipped.WithLabelValues("sizing").Inc()
		return
	}

	targets := e.computeTargets(result.Symbol, side, result.CurrentPrice)

	signal := model.TradingSignal{
		ID:           fmt.Sprintf("%s-%d", result.Symbol, time.Now().UnixNano()),
		Timestamp:    time.Now(),
		Symbol:       result.Symbol,
		Side:         side,
		StrategyName: strategyName(result, side),
		EntryPrice:   result.CurrentPrice,
		StopLoss:     targets.StopLoss,
		TakeProfit:   targets.TakeProfit,
		Quantity:     quantity,
		Metadata: map[string]string{
			"targetMethod": targets.Method,
			"pivotTouch":   fmt.Sprintf("%t", checks.PivotTouch),
			"rsiSignal":    fmt.Sprintf("%t", checks.RSISignal),
			"volumeSurge":  fmt.Sprintf("%t", checks.VolumeSurge),
		},
	}

	e.emit(signal)
	metrics.SignalsEmitted.WithLabelValues(signal.Symbol, string(signal.Side)).Inc()
	e.log.Info("trading signal emitted",
		zap.String("symbol", signal.Symbol),
		zap.String("side", string(signal.Side)),
		zap.Float64("entry", signal.EntryPrice),
		zap.Float64("stopLoss", signal.StopLoss),
		zap.Float64("takeProfit", signal.TakeProfit),
		zap.Float64("quantity", signal.Quantity))
}

func (e *Engine) skip(symbol string, side model.Side, checks entryChecks) {
	metrics.EntriesSkipped.WithLabelValues("votes").Inc()
	e.log.Debug("entry conditions not met",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int("votes", checks.votes()))
}

// strategyName labels the signal with the first strategy that agreed with the
// chosen direction, falling back to the condition-set name.
func strategyName(result model.AnalysisResult, side model.Side) string {
	for _, s := range result.Strategies {
		if side == model.SideLong && (s.Signal == model.SignalBuy || s.Signal == model.SignalStrongBuy) {
			return s.Name
		}
		if side == model.SideShort && (s.Signal == model.SignalSell || s.Signal == model.SignalStrongSell) {
			return s.Name
		}
	}
	return "pivot-rsi-volume"
}
