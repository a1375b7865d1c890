// Package clock provides the deadline-based countdown that drives attempt timeouts.
//
// Remaining time is always recomputed as deadline minus now, so a reload,
// a device sleep or a slow event loop can never extend an attempt.
package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the countdown resolution.
const DefaultInterval = time.Second

// Ticker is the subset of time.Ticker the clock needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithTicker overrides the tick source.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Clock) { c.newTicker = newTicker }
}

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) { c.interval = d }
}

// WithObserver registers fn to run after every check, once onTick or
// onExpired has returned. It receives the remaining seconds that check saw.
func WithObserver(fn func(remaining int)) Option {
	return func(c *Clock) { c.observe = fn }
}

// Clock counts down to an absolute deadline. onTick receives the remaining
// whole seconds while they are positive; onExpired fires once when they hit zero.
// Callbacks run on the clock's own goroutine.
type Clock struct {
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	interval  time.Duration
	onTick    func(remaining int)
	onExpired func()
	observe   func(remaining int)

	mu       sync.Mutex
	deadline time.Time
	stop     chan struct{}
}

// New creates a stopped clock.
func New(onTick func(remaining int), onExpired func(), opts ...Option) *Clock {
	c := &Clock{
		now:       time.Now,
		newTicker: NewRealTicker,
		interval:  DefaultInterval,
		onTick:    onTick,
		onExpired: onExpired,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.onTick == nil {
		c.onTick = func(int) {}
	}
	if c.onExpired == nil {
		c.onExpired = func() {}
	}
	if c.observe == nil {
		c.observe = func(int) {}
	}
	return c
}

// Start begins counting down to deadline, replacing any running countdown.
// A deadline that has already passed fires onExpired straight away.
func (c *Clock) Start(deadline time.Time) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.deadline = deadline
	ticker := c.newTicker(c.interval)
	c.mu.Unlock()

	go c.run(deadline, ticker, stop)
}

// Stop halts the countdown. It does not wait for an in-flight callback, so it
// is safe to call from inside onTick or onExpired.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Deadline returns the deadline of the current or last countdown.
func (c *Clock) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Remaining returns the whole seconds left until the current deadline.
func (c *Clock) Remaining() int {
	return Remaining(c.Deadline(), c.now())
}

// Remaining returns deadline minus now rounded up to whole seconds, floored at zero.
func Remaining(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (c *Clock) run(deadline time.Time, ticker Ticker, stop chan struct{}) {
	defer ticker.Stop()

	if c.check(deadline, stop) {
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if c.check(deadline, stop) {
				return
			}
		}
	}
}

// check emits one tick or the expiry and reports whether the countdown is over.
func (c *Clock) check(deadline time.Time, stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
	}

	remaining := Remaining(deadline, c.now())
	defer c.observe(remaining)
	if remaining <= 0 {
		c.onExpired()
		return true
	}
	c.onTick(remaining)
	return false
}
