// Package clock abstracts sleeping and timers so playback timing can be
// observed and collapsed in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Timer is a handle to a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Scheduler owns every suspension point of a simulated call.
type Scheduler interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// Real returns the wall-clock scheduler.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now().UTC() }

func (realScheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Recorder is a Scheduler that never blocks. It records every requested sleep
// and holds AfterFunc callbacks until Fire is called.
type Recorder struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	pending []*recordedTimer
	onSleep func(d time.Duration)
}

// NewRecorder returns a Recorder whose clock starts at a fixed instant.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

// OnSleep installs a hook invoked synchronously on every Sleep. Tests use it
// to cancel a run at a precise suspension point.
func (r *Recorder) OnSleep(hook func(d time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSleep = hook
}

func (r *Recorder) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.now = r.now.Add(d)
	hook := r.onSleep
	r.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (r *Recorder) AfterFunc(d time.Duration, f func()) Timer {
	t := &recordedTimer{delay: d, fn: f}
	r.mu.Lock()
	r.pending = append(r.pending, t)
	r.mu.Unlock()
	return t
}

// Sleeps returns a copy of every duration passed to Sleep so far.
func (r *Recorder) Sleeps() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

// Elapsed sums the recorded sleeps.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, d := range r.sleeps {
		total += d
	}
	return total
}

// Pending returns the delays of timers that have not fired or been stopped.
func (r *Recorder) Pending() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Duration
	for _, t := range r.pending {
		if t.live() {
			out = append(out, t.delay)
		}
	}
	return out
}

// Fire runs every live pending callback and returns how many ran.
func (r *Recorder) Fire() int {
	r.mu.Lock()
	timers := r.pending
	r.pending = nil
	r.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if t.claim() {
			t.fn()
			fired++
		}
	}
	return fired
}

type recordedTimer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	done  bool
}

func (t *recordedTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *recordedTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *recordedTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
