package events

import "sync"

// Bus is an explicit, typed publish/subscribe hub. Each event type gets its
// own buffered queue and one dispatcher goroutine, so events of one type are
// delivered to handlers in arrival order. Handlers are registered before
// Start; there is no ambient global emitter.
type Bus struct {
	analysis chan AnalysisCompleted
	opened   chan PositionOpened
	closed   chan PositionClosed
	signals  chan SignalEmitted

	mu               sync.Mutex
	analysisHandlers []func(AnalysisCompleted)
	openedHandlers   []func(PositionOpened)
	closedHandlers   []func(PositionClosed)
	signalHandlers   []func(SignalEmitted)

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

const busQueueSize = 256

// NewBus creates an idle bus. Call Start after registering handlers.
func NewBus() *Bus {
	return &Bus{
		analysis: make(chan AnalysisCompleted, busQueueSize),
		opened:   make(chan PositionOpened, busQueueSize),
		closed:   make(chan PositionClosed, busQueueSize),
		signals:  make(chan SignalEmitted, busQueueSize),
		done:     make(chan struct{}),
	}
}

// OnAnalysisCompleted registers a handler for analysis events.
func (b *Bus) OnAnalysisCompleted(h func(AnalysisCompleted)) {
	b.mu.Lock()
	b.analysisHandlers = append(b.analysisHandlers, h)
	b.mu.Unlock()
}

// OnPositionOpened registers a handler for position-open confirmations.
func (b *Bus) OnPositionOpened(h func(PositionOpened)) {
	b.mu.Lock()
	b.openedHandlers = append(b.openedHandlers, h)
	b.mu.Unlock()
}

// OnPositionClosed registers a handler for position-close confirmations.
func (b *Bus) OnPositionClosed(h func(PositionClosed)) {
	b.mu.Lock()
	b.closedHandlers = append(b.closedHandlers, h)
	b.mu.Unlock()
}

// OnSignalEmitted registers a handler for emitted trading signals.
func (b *Bus) OnSignalEmitted(h func(SignalEmitted)) {
	b.mu.Lock()
	b.signalHandlers = append(b.signalHandlers, h)
	b.mu.Unlock()
}

// PublishAnalysisCompleted enqueues an analysis event.
func (b *Bus) PublishAnalysisCompleted(ev AnalysisCompleted) {
	select {
	case b.analysis <- ev:
	case <-b.done:
	}
}

// PublishPositionOpened enqueues a position-open confirmation.
func (b *Bus) PublishPositionOpened(ev PositionOpened) {
	select {
	case b.opened <- ev:
	case <-b.done:
	}
}

// PublishPositionClosed enqueues a position-close confirmation.
func (b *Bus) PublishPositionClosed(ev PositionClosed) {
	select {
	case b.closed <- ev:
	case <-b.done:
	}
}

// PublishSignalEmitted enqueues an emitted trading signal.
func (b *Bus) PublishSignalEmitted(ev SignalEmitted) {
	select {
	case b.signals <- ev:
	case <-b.done:
	}
}

// Start launches the dispatcher goroutines. Safe to call once.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.wg.Add(4)
		go dispatch(b, b.analysis, func() []func(AnalysisCompleted) {
			b.mu.Lock()
			defer b.mu.Unlock()
			return b.analysisHandlers
		})
		go dispatch(b, b.opened, func() []func(PositionOpened) {
			b.mu.Lock()
			defer b.mu.Unlock()
			return b.openedHandlers
		})
		go dispatch(b, b.closed, func() []func(PositionClosed) {
			b.mu.Lock()
			defer b.mu.Unlock()
			return b.closedHandlers
		})
		go dispatch(b, b.signals, func() []func(SignalEmitted) {
			b.mu.Lock()
			defer b.mu.Unlock()
			return b.signalHandlers
		})
	})
}

// Stop shuts the dispatchers down and waits for them to drain.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
}

func dispatch[E any](b *Bus, ch <-chan E, handlers func() []func(E)) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			// Events accepted before Stop are still delivered; only new
			// publishes are refused once done is closed.
			for {
				select {
				case ev := <-ch:
					for _, h := range handlers() {
						h(ev)
					}
				default:
					return
				}
			}
		case ev := <-ch:
			for _, h := range handlers() {
				h(ev)
			}
		}
	}
}
