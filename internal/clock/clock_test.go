package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRealSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real().Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep() blocked after cancellation")
	}
}

func TestRealAfterFuncStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := Real().AfterFunc(time.Hour, func() { fired <- struct{}{} })
	if !timer.Stop() {
		t.Fatalf("Stop() = false, want true for pending timer")
	}
	select {
	case <-fired:
		t.Fatalf("stopped timer fired")
	default:
	}
}

func TestRecorderRecordsSleeps(t *testing.T) {
	r := NewRecorder()
	start := r.Now()
	_ = r.Sleep(context.Background(), 400*time.Millisecond)
	_ = r.Sleep(context.Background(), 300*time.Millisecond)

	got := r.Sleeps()
	if len(got) != 2 || got[0] != 400*time.Millisecond || got[1] != 300*time.Millisecond {
		t.Fatalf("Sleeps() = %v, want [400ms 300ms]", got)
	}
	if r.Elapsed() != 700*time.Millisecond {
		t.Fatalf("Elapsed() = %v, want 700ms", r.Elapsed())
	}
	if r.Now().Sub(start) != 700*time.Millisecond {
		t.Fatalf("Now() advanced by %v, want 700ms", r.Now().Sub(start))
	}
}

func TestRecorderHoldsTimersUntilFire(t *testing.T) {
	r := NewRecorder()
	var ran []string
	r.AfterFunc(time.Second, func() { ran = append(ran, "a") })
	stopped := r.AfterFunc(2*time.Second, func() { ran = append(ran, "b") })

	if got := r.Pending(); len(got) != 2 {
		t.Fatalf("Pending() = %v, want 2 timers", got)
	}
	if !stopped.Stop() {
		t.Fatalf("Stop() = false, want true")
	}
	if stopped.Stop() {
		t.Fatalf("second Stop() = true, want false")
	}
	if n := r.Fire(); n != 1 {
		t.Fatalf("Fire() = %d, want 1", n)
	}
	if len(ran) != 1 || ran[0] != "a" {
		t.Fatalf("ran = %v, want [a]", ran)
	}
	if n := r.Fire(); n != 0 {
		t.Fatalf("second Fire() = %d, want 0", n)
	}
}
