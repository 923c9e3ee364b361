package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire and tickers tick only from
// Advance. It records every timer it creates so tests can assert on scheduled
// delays and on what is still pending.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
	delays  []time.Duration
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		clock:    f,
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward, firing due timers in deadline order and
// delivering ticks to active tickers. Timer callbacks run synchronously on the
// calling goroutine, without the clock lock held.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		due := f.dueTimers(target)
		if len(due) == 0 {
			f.now = target
			f.tickLocked()
			f.mu.Unlock()
			return
		}
		next := due[0]
		f.now = next.at
		f.tickLocked()
		f.removeTimerLocked(next)
		f.mu.Unlock()

		next.fn()
	}
}

func (f *Fake) dueTimers(target time.Time) []*fakeTimer {
	var due []*fakeTimer
	for _, t := range f.timers {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	return due
}

func (f *Fake) tickLocked() {
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(f.now) {
			select {
			case t.ch <- t.next:
			default:
				// Slow receiver; drop like time.Ticker does.
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

func (f *Fake) removeTimerLocked(target *fakeTimer) {
	for i, t := range f.timers {
		if t == target {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// PendingTimers returns the number of timers that have neither fired nor been stopped.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// ActiveTickers returns the number of tickers that have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// ScheduledDelays returns the delay of every AfterFunc call, in call order.
func (f *Fake) ScheduledDelays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.delays))
	copy(out, f.delays)
	return out
}

type fakeTimer struct {
	clock *Fake
	at    time.Time
	fn    func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for _, pending := range t.clock.timers {
		if pending == t {
			t.clock.removeTimerLocked(t)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	clock    *Fake
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
