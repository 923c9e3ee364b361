package countdown

import (
	"context"
	"sync"
	"time"

	"auction-storefront/internal/clock"
)

const DefaultInterval = time.Second

type State struct {
	Breakdown
	Progress float64   `json:"progress"`
	At       time.Time `json:"at"`
}

// Snapshot computes the countdown state at now.
func Snapshot(deadline time.Time, total time.Duration, now time.Time) State {
	return State{
		Breakdown: Remaining(deadline, now),
		Progress:  Progress(deadline, total, now),
		At:        now,
	}
}

// Watcher recomputes a countdown on a fixed interval and hands each state to
// emit. Its ticker is released on every exit path: Stop, context
// cancellation, or the first expired state.
type Watcher struct {
	clock    clock.Clock
	deadline time.Time
	total    time.Duration
	interval time.Duration
	emit     func(State)

	mu      sync.Mutex
	ticker  clock.Ticker
	done    chan struct{}
	started bool
	once    sync.Once
}

func NewWatcher(clk clock.Clock, deadline time.Time, total time.Duration, emit func(State)) *Watcher {
	if clk == nil {
		clk = clock.Real()
	}
	return &Watcher{
		clock:    clk,
		deadline: deadline,
		total:    total,
		interval: DefaultInterval,
		emit:     emit,
		done:     make(chan struct{}),
	}
}

// Start emits the current state immediately and then once per interval.
// Calling Start more than once has no effect.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	state := Snapshot(w.deadline, w.total, w.clock.Now())
	w.emit(state)
	if state.Expired {
		w.Stop()
		return
	}

	w.mu.Lock()
	select {
	case <-w.done:
		// Stopped from within emit.
		w.mu.Unlock()
		return
	default:
	}
	w.ticker = w.clock.NewTicker(w.interval)
	ticks := w.ticker.C()
	w.mu.Unlock()

	go w.run(ctx, ticks)
}

func (w *Watcher) run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ticks:
			state := Snapshot(w.deadline, w.total, w.clock.Now())
			w.emit(state)
			if state.Expired {
				w.Stop()
				return
			}
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		}
	}
}

// Stop releases the ticker. Safe to call repeatedly and from emit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.ticker != nil {
			w.ticker.Stop()
		}
		close(w.done)
	})
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
