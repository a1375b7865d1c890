// Package violation turns raw host focus/visibility signals into debounced
// suspicious-activity events.
package violation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounce is the minimum spacing between two emitted events.
const DefaultDebounce = 3 * time.Second

// HostSignal is the single entry point every host-specific event source
// reports into. Focus loss and visibility loss both arrive here, which is
// what coalesces them into one logical event type.
type HostSignal interface {
	OnSuspiciousActivity(reason string)
}

// Mode is the detector's detection state.
type Mode int

const (
	// Armed detectors emit events.
	Armed Mode = iota
	// Suspended detectors drop events until every hold is released.
	Suspended
	// Disarmed detectors never emit again.
	Disarmed
)

func (m Mode) String() string {
	switch m {
	case Armed:
		return "armed"
	case Suspended:
		return "suspended"
	default:
		return "disarmed"
	}
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithNow overrides the detector time source.
func WithNow(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) DetectorOption {
	return func(d *Detector) { d.log = log.With().Str("component", "violation_detector").Logger() }
}

// Detector debounces raw signals and forwards them to emit.
type Detector struct {
	window time.Duration
	emit   func(reason string)
	now    func() time.Time
	log    zerolog.Logger

	mu       sync.Mutex
	holds    int
	disarmed bool
	lastEmit time.Time
	emitted  bool
}

var _ HostSignal = (*Detector)(nil)

// NewDetector creates an armed detector. A non-positive window falls back to DefaultDebounce.
func NewDetector(window time.Duration, emit func(reason string), opts ...DetectorOption) *Detector {
	if window <= 0 {
		window = DefaultDebounce
	}
	d := &Detector{
		window: window,
		emit:   emit,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnSuspiciousActivity implements HostSignal.
func (d *Detector) OnSuspiciousActivity(reason string) {
	d.mu.Lock()
	mode := d.modeLocked()
	if mode != Armed {
		d.mu.Unlock()
		d.log.Debug().Str("reason", reason).Stringer("mode", mode).Msg("Signal suppressed")
		return
	}

	now := d.now()
	if d.emitted && now.Sub(d.lastEmit) < d.window {
		d.mu.Unlock()
		d.log.Debug().Str("reason", reason).Msg("Signal debounced")
		return
	}
	d.lastEmit = now
	d.emitted = true
	d.mu.Unlock()

	d.emit(reason)
}

// Suspend pauses detection until the returned release func is called.
// Holds nest; release is idempotent.
func (d *Detector) Suspend() (release func()) {
	d.mu.Lock()
	d.holds++
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			d.holds--
			d.mu.Unlock()
		})
	}
}

// Disarm stops detection permanently.
func (d *Detector) Disarm() {
	d.mu.Lock()
	d.disarmed = true
	d.mu.Unlock()
}

// Mode returns the current detection state.
func (d *Detector) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modeLocked()
}

func (d *Detector) modeLocked() Mode {
	switch {
	case d.disarmed:
		return Disarmed
	case d.holds > 0:
		return Suspended
	default:
		return Armed
	}
}
