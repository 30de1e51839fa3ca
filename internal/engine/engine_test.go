package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quanttrader/internal/cache"
	"quanttrader/internal/events"
	"quanttrader/internal/model"
	"quanttrader/internal/position"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExecutor struct {
	mu       sync.Mutex
	closeErr error
	calls    []string // symbols closed, in order
	onClose  func()
}

func (f *fakeExecutor) ClosePosition(_ context.Context, symbol string, _ model.Side, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onClose != nil {
		f.onClose()
	}
	if f.closeErr != nil {
		return f.closeErr
	}
	f.calls = append(f.calls, symbol)
	return nil
}

func (f *fakeExecutor) closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBalance struct {
	balance float64
	err     error
}

func (f *fakeBalance) GetAvailableBalance(context.Context) (float64, error) {
	return f.balance, f.err
}

// emitRecorder collects emitted signals and the relative order of close and
// emit actions.
type emitRecorder struct {
	mu      sync.Mutex
	signals []model.TradingSignal
	actions []string
}

func (r *emitRecorder) emit(s model.TradingSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	r.actions = append(r.actions, "emit")
}

func (r *emitRecorder) record(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *emitRecorder) emitted() []model.TradingSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TradingSignal(nil), r.signals...)
}

func (r *emitRecorder) actionLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newTestEngine(t *testing.T, exec Executor, bal BalanceProvider) (*Engine, *emitRecorder) {
	t.Helper()
	if exec == nil {
		exec = &fakeExecutor{}
	}
	if bal == nil {
		bal = &fakeBalance{balance: 10000}
	}
	metricCache := cache.New[float64](time.Minute, time.Minute)
	tracker := position.NewTracker()
	rec := &emitRecorder{}
	e := New(testTradingConfig(), metricCache, tracker, exec, bal, rec.emit, zap.NewNop())
	return e, rec
}

func analysisEvent(r model.AnalysisResult) events.AnalysisCompleted {
	return events.AnalysisCompleted{
		Symbol:     r.Symbol,
		Result:     r,
		Timeframe:  "15m",
		AnalyzedAt: time.Now(),
	}
}

// strongBuyResult builds an analysis result that satisfies all three long
// conditions at price 50000.
func strongBuyResult(symbol string) model.AnalysisResult {
	return model.AnalysisResult{
		Symbol:        symbol,
		OverallSignal: model.SignalStrongBuy,
		CurrentPrice:  50000,
		Indicators: model.Indicators{
			RSI:         25,
			VolumeRatio: 2.0,
			Pivots:      model.PivotLevels{S1: 49900, S2: 49000},
		},
		Strategies: []model.StrategyVote{
			{Name: "pivot-bounce", Signal: model.SignalStrongBuy, Weight: 1},
		},
	}
}

// strongSellResult satisfies all three short conditions at price 50000.
func strongSellResult(symbol string) model.AnalysisResult {
	return model.AnalysisResult{
		Symbol:        symbol,
		OverallSignal: model.SignalStrongSell,
		CurrentPrice:  50000,
		Indicators: model.Indicators{
			RSI:         75,
			VolumeRatio: 2.0,
			Pivots:      model.PivotLevels{R1: 50100, R2: 51000},
		},
	}
}

func TestEntryEmitsSignal(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	e.process(analysisEvent(strongBuyResult("BTCUSDT")))

	signals := rec.emitted()
	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, model.SideLong, sig.Side)
	assert.Equal(t, 50000.0, sig.EntryPrice)
	// (10000 * 0.1) * 5 / 50000
	assert.InDelta(t, 0.1, sig.Quantity, 1e-9)
	assert.Equal(t, "pivot-bounce", sig.StrategyName)
	assert.Equal(t, "percent", sig.Metadata["targetMethod"])
	assert.NotEmpty(t, sig.ID)
}

func TestEntryUsesATRTargetsWhenCached(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)
	e.cache.Set(cache.ATRKey("BTCUSDT"), 500)

	e.process(analysisEvent(strongBuyResult("BTCUSDT")))

	signals := rec.emitted()
	require.Len(t, signals, 1)
	assert.InDelta(t, 48600.0, signals[0].StopLoss, 1e-9)
	assert.InDelta(t, 50650.0, signals[0].TakeProfit, 1e-9)
	assert.Equal(t, "atr", signals[0].Metadata["targetMethod"])
}

func TestLongEntryNeedsTwoVotes(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	result := strongBuyResult("BTCUSDT")
	// Only the volume condition holds: 1 of 3 is below the long threshold.
	result.Indicators.RSI = 50
	result.Indicators.Pivots = model.PivotLevels{}

	e.process(analysisEvent(result))
	assert.Empty(t, rec.emitted())
}

func TestShortEntryFiresOnOneVote(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	result := strongSellResult("BTCUSDT")
	// Only the volume condition holds; the short path fires on 1 of 3.
	result.Indicators.RSI = 50
	result.Indicators.Pivots = model.PivotLevels{}

	e.process(analysisEvent(result))

	signals := rec.emitted()
	require.Len(t, signals, 1)
	assert.Equal(t, model.SideShort, signals[0].Side)
}

func TestMissingIndicatorsDoNotTrigger(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	// Entirely absent indicator data must stay neutral on both paths, even
	// though the short threshold is only one vote.
	long := strongBuyResult("BTCUSDT")
	long.Indicators = model.Indicators{}
	e.process(analysisEvent(long))

	short := strongSellResult("ETHUSDT")
	short.Indicators = model.Indicators{}
	e.process(analysisEvent(short))

	assert.Empty(t, rec.emitted())
}

func TestNeutralSignalIsNoop(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	result := strongBuyResult("BTCUSDT")
	result.OverallSignal = model.SignalNeutral
	e.process(analysisEvent(result))

	assert.Empty(t, rec.emitted())
}

func TestBalanceFailureSkipsEntry(t *testing.T) {
	e, rec := newTestEngine(t, nil, &fakeBalance{err: errors.New("api down")})

	e.process(analysisEvent(strongBuyResult("BTCUSDT")))
	assert.Empty(t, rec.emitted())
}

func TestZeroQuantityCancelsEntry(t *testing.T) {
	e, rec := newTestEngine(t, nil, &fakeBalance{balance: 0})

	e.process(analysisEvent(strongBuyResult("BTCUSDT")))
	assert.Empty(t, rec.emitted(), "degenerate order must not be emitted")
}

func TestSwitchClosesBeforeEmit(t *testing.T) {
	exec := &fakeExecutor{}
	e, rec := newTestEngine(t, exec, nil)

	e.positions.Open(model.Position{
		Symbol: "BTCUSDT", Side: model.SideLong, Quantity: 0.1, EntryPrice: 49000,
	})

	// Record interleaving: the close must land before the opposite entry.
	exec.onClose = func() { rec.record("close") }

	e.process(analysisEvent(strongSellResult("BTCUSDT")))

	signals := rec.emitted()
	require.Len(t, signals, 1)
	assert.Equal(t, model.SideShort, signals[0].Side)
	assert.Equal(t, []string{"BTCUSDT"}, exec.closed())
	assert.Equal(t, []string{"close", "emit"}, rec.actionLog())
}

func TestSwitchAbortsWhenCloseFails(t *testing.T) {
	exec := &fakeExecutor{closeErr: errors.New("exchange rejected")}
	e, rec := newTestEngine(t, exec, nil)

	e.positions.Open(model.Position{
		Symbol: "BTCUSDT", Side: model.SideLong, Quantity: 0.1,
	})

	e.process(analysisEvent(strongSellResult("BTCUSDT")))

	assert.Empty(t, rec.emitted(), "no SHORT signal without a confirmed close")
}

func TestSwitchNeedsVotes(t *testing.T) {
	exec := &fakeExecutor{}
	e, rec := newTestEngine(t, exec, nil)

	e.positions.Open(model.Position{
		Symbol: "BTCUSDT", Side: model.SideLong, Quantity: 0.1,
	})

	// Reversal signal but only one condition holds: below the 2-vote switch
	// threshold, so the position is held.
	result := strongSellResult("BTCUSDT")
	result.Indicators.RSI = 50
	result.Indicators.Pivots = model.PivotLevels{}

	e.process(analysisEvent(result))

	assert.Empty(t, exec.closed())
	assert.Empty(t, rec.emitted())
}

func TestHoldWhenSignalAgreesWithPosition(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	e.positions.Open(model.Position{
		Symbol: "BTCUSDT", Side: model.SideLong, Quantity: 0.1,
	})

	e.process(analysisEvent(strongBuyResult("BTCUSDT")))
	assert.Empty(t, rec.emitted(), "no re-entry on top of an open position")
}

func TestPanicIsContained(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)
	e.emit = func(model.TradingSignal) { panic("boom") }

	assert.NotPanics(t, func() {
		e.process(analysisEvent(strongBuyResult("BTCUSDT")))
	})

	// The engine must keep working for other symbols afterwards.
	e.emit = rec.emit
	e.process(analysisEvent(strongBuyResult("ETHUSDT")))
	assert.Len(t, rec.emitted(), 1)
}

func TestPerSymbolArrivalOrder(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)

	first := strongBuyResult("BTCUSDT")
	first.CurrentPrice = 50000
	second := strongBuyResult("BTCUSDT")
	second.CurrentPrice = 50001

	e.HandleAnalysis(analysisEvent(first))
	e.HandleAnalysis(analysisEvent(second))
	e.Stop() // drains the per-symbol queue

	signals := rec.emitted()
	require.Len(t, signals, 2)
	assert.Equal(t, 50000.0, signals[0].EntryPrice)
	assert.Equal(t, 50001.0, signals[1].EntryPrice)
}

func TestStopRacingHandleAnalysis(t *testing.T) {
	// Stop closes the per-symbol queues while producers may be mid-enqueue;
	// a send must never hit a closed channel.
	for i := 0; i < 50; i++ {
		e, _ := newTestEngine(t, nil, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.HandleAnalysis(analysisEvent(strongBuyResult("BTCUSDT")))
			}
		}()
		go func() {
			defer wg.Done()
			e.Stop()
		}()
		wg.Wait()
	}
}

func TestHandleAfterStopIsNoop(t *testing.T) {
	e, rec := newTestEngine(t, nil, nil)
	e.Stop()

	e.HandleAnalysis(analysisEvent(strongBuyResult("BTCUSDT")))
	assert.Empty(t, rec.emitted())
}
