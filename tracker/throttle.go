package tracker

import (
	"sync"
	"time"
)

// Throttle gates a high-frequency signal to at most one acceptance per
// interval. Signals arriving inside the gate are dropped entirely, not
// coalesced.
type Throttle struct {
	interval time.Duration
	clock    Clock

	mu   sync.Mutex
	last time.Time
}

func NewThrottle(interval time.Duration, clock Clock) *Throttle {
	return &Throttle{interval: interval, clock: clock}
}

// Allow reports whether a signal arriving now clears the gate, and if so
// re-arms it.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

type debounceState int

const (
	debounceIdle debounceState = iota
	debouncePending
)

// Debouncer delays a callback until a settle period has elapsed with no new
// signal. Each Signal cancels any pending timer and restarts the delay.
type Debouncer struct {
	delay time.Duration
	clock Clock
	fn    func()

	mu    sync.Mutex
	state debounceState
	timer Timer
}

func NewDebouncer(delay time.Duration, clock Clock, fn func()) *Debouncer {
	return &Debouncer{delay: delay, clock: clock, fn: fn}
}

func (d *Debouncer) Signal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == debouncePending && d.timer != nil {
		d.timer.Stop()
	}
	d.state = debouncePending
	d.timer = d.clock.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.state = debounceIdle
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending fire.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = debounceIdle
}
