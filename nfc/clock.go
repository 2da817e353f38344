package nfc

import (
	"sync"
	"time"
)

// Clock abstracts the time operations used by the session controller and the
// reader poller so tests can drive deadlines and backoff without sleeping.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// NewTicker creates a ticker firing every d
	NewTicker(d time.Duration) Ticker

	// NewTimer creates a timer firing once after d
	NewTimer(d time.Duration) Timer

	// After returns a channel that receives once after d
	After(d time.Duration) <-chan time.Time
}

// Ticker is an interface for time.Ticker to enable testing
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is an interface for time.Timer to enable testing
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock implements Clock using actual time operations
type RealClock struct{}

// NewRealClock creates a new RealClock
func NewRealClock() Clock {
	return &RealClock{}
}

func (rc *RealClock) Now() time.Time {
	return time.Now()
}

func (rc *RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

func (rc *RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

func (rc *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	ticker *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.ticker.C }
func (rt *realTicker) Stop()               { rt.ticker.Stop() }

type realTimer struct {
	timer *time.Timer
}

func (rt *realTimer) C() <-chan time.Time { return rt.timer.C }
func (rt *realTimer) Stop() bool          { return rt.timer.Stop() }

// FakeClock implements Clock for testing with controllable time.
// Timers and tickers fire only when Advance moves time past their deadline.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

// NewFakeClock creates a new FakeClock starting at the given time
func NewFakeClock(startTime time.Time) *FakeClock {
	fc := &FakeClock{now: startTime}
	fc.cond = sync.NewCond(&fc.mu)
	return fc
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *FakeClock) NewTicker(d time.Duration) Ticker {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ft := &fakeTicker{
		clock:    fc,
		interval: d,
		next:     fc.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	fc.tickers = append(fc.tickers, ft)
	fc.cond.Broadcast()
	return ft
}

func (fc *FakeClock) NewTimer(d time.Duration) Timer {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ft := &fakeTimer{
		clock:    fc,
		deadline: fc.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	fc.timers = append(fc.timers, ft)
	fc.cond.Broadcast()
	return ft
}

func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	return fc.NewTimer(d).C()
}

// Advance moves the fake clock forward by the given duration
// and fires any tickers/timers that should fire
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)

	for _, ticker := range fc.tickers {
		if ticker.stopped || fc.now.Before(ticker.next) {
			continue
		}
		select {
		case ticker.c <- fc.now:
		default:
			// Channel full, drop the tick like time.Ticker does
		}
		for !fc.now.Before(ticker.next) {
			ticker.next = ticker.next.Add(ticker.interval)
		}
	}

	pending := fc.timers[:0]
	for _, timer := range fc.timers {
		if timer.stopped {
			continue
		}
		if fc.now.Before(timer.deadline) {
			pending = append(pending, timer)
			continue
		}
		timer.c <- fc.now
		timer.stopped = true
	}
	fc.timers = pending
	fc.cond.Broadcast()
}

// Waiters returns the number of timers that have neither fired nor been stopped.
func (fc *FakeClock) Waiters() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.activeTimersLocked()
}

// BlockUntil waits until at least n timers are pending. Tests use it to make
// sure the code under test is parked on the clock before calling Advance.
func (fc *FakeClock) BlockUntil(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for fc.activeTimersLocked() < n {
		fc.cond.Wait()
	}
}

func (fc *FakeClock) activeTimersLocked() int {
	count := 0
	for _, t := range fc.timers {
		if !t.stopped {
			count++
		}
	}
	return count
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopped  bool
}

func (ft *fakeTicker) C() <-chan time.Time {
	return ft.c
}

func (ft *fakeTicker) Stop() {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	ft.stopped = true
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	c        chan time.Time
	stopped  bool
}

func (ft *fakeTimer) C() <-chan time.Time {
	return ft.c
}

func (ft *fakeTimer) Stop() bool {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	if ft.stopped {
		return false
	}
	ft.stopped = true
	ft.clock.cond.Broadcast()
	return true
}
