package clock

import (
	"sync"
	"testing"
	"time"
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

type recorder struct {
	ticks   chan int
	expired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ticks: make(chan int, 64), expired: make(chan struct{}, 4)}
}

func (r *recorder) clock(ft *fakeTime, mt *manualTicker) *Clock {
	return New(
		func(rem int) { r.ticks <- rem },
		func() { r.expired <- struct{}{} },
		WithNow(ft.Now),
		WithTicker(func(time.Duration) Ticker { return mt }),
	)
}

func TestRemainingRoundsUp(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		deadline time.Time
		want     int
	}{
		{"past", base.Add(-time.Second), 0},
		{"exact", base, 0},
		{"fraction", base.Add(300 * time.Millisecond), 1},
		{"whole", base.Add(90 * time.Second), 90},
	}
	for _, tt := range tests {
		if got := Remaining(tt.deadline, base); got != tt.want {
			t.Fatalf("%s: Remaining = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestExpiredDeadlineFiresImmediately(t *testing.T) {
	t.Parallel()

	ft := &fakeTime{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	mt := newManualTicker()
	rec := newRecorder()
	c := rec.clock(ft, mt)

	c.Start(ft.Now().Add(-5 * time.Minute))

	select {
	case <-rec.expired:
	case <-time.After(time.Second):
		t.Fatal("expected immediate expiry")
	}
	select {
	case <-mt.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped after expiry")
	}
	if len(rec.ticks) != 0 {
		t.Fatalf("unexpected ticks: %d", len(rec.ticks))
	}
}

func TestCountdownExpiresAfterRemainingSeconds(t *testing.T) {
	t.Parallel()

	const remaining = 5
	ft := &fakeTime{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	mt := newManualTicker()
	rec := newRecorder()
	c := rec.clock(ft, mt)

	c.Start(ft.Now().Add(remaining * time.Second))
	if got := <-rec.ticks; got != remaining {
		t.Fatalf("first tick = %d, want %d", got, remaining)
	}

	for i := 1; i <= remaining; i++ {
		ft.Advance(time.Second)
		mt.ch <- ft.Now()
		if i < remaining {
			if got := <-rec.ticks; got != remaining-i {
				t.Fatalf("tick %d = %d, want %d", i, got, remaining-i)
			}
		}
	}

	select {
	case <-rec.expired:
	case <-time.After(time.Second):
		t.Fatal("expected expiry after remaining seconds")
	}
}

func TestSleepDoesNotExtendDeadline(t *testing.T) {
	t.Parallel()

	ft := &fakeTime{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	mt := newManualTicker()
	rec := newRecorder()
	c := rec.clock(ft, mt)

	c.Start(ft.Now().Add(60 * time.Second))
	<-rec.ticks

	// One tick after a long suspend must observe the wall clock, not count down by one.
	ft.Advance(10 * time.Minute)
	mt.ch <- ft.Now()

	select {
	case <-rec.expired:
	case <-time.After(time.Second):
		t.Fatal("expected expiry after sleeping past the deadline")
	}
}

func TestStopHaltsTicks(t *testing.T) {
	t.Parallel()

	ft := &fakeTime{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	mt := newManualTicker()
	rec := newRecorder()
	c := rec.clock(ft, mt)

	c.Start(ft.Now().Add(30 * time.Second))
	<-rec.ticks
	c.Stop()

	select {
	case <-mt.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not released after Stop")
	}
	if got := c.Remaining(); got != 30 {
		t.Fatalf("Remaining = %d, want 30", got)
	}
}

func TestObserverRunsAfterEachCheck(t *testing.T) {
	t.Parallel()

	ft := &fakeTime{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
	mt := newManualTicker()
	var ticked []int
	checked := make(chan int, 4)
	c := New(
		func(rem int) { ticked = append(ticked, rem) },
		func() { ticked = append(ticked, 0) },
		WithNow(ft.Now),
		WithTicker(func(time.Duration) Ticker { return mt }),
		WithObserver(func(rem int) { checked <- rem }),
	)

	c.Start(ft.Now().Add(2 * time.Second))
	for _, want := range []int{2, 1, 0} {
		select {
		case got := <-checked:
			if got != want {
				t.Fatalf("observed %d, want %d", got, want)
			}
			// The callback for this check has already run.
			if last := ticked[len(ticked)-1]; last != want {
				t.Fatalf("callback saw %d before observer saw %d", last, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no check observed for %d", want)
		}
		if want > 0 {
			ft.Advance(time.Second)
			mt.ch <- ft.Now()
		}
	}
}
