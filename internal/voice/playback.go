package voice

import (
	"sync"
	"time"

	"github.com/reflecthealth/callsim/internal/clock"
)

// timedPlayback completes after a fixed duration on a scheduler. Providers
// use it once audio is delivered to the sink, since the sink plays
// asynchronously.
type timedPlayback struct {
	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	err   error
	timer clock.Timer
}

func startTimed(sched clock.Scheduler, d time.Duration) *timedPlayback {
	p := &timedPlayback{done: make(chan struct{})}
	if d <= 0 {
		p.finish(nil)
		return p
	}
	p.mu.Lock()
	p.timer = sched.AfterFunc(d, func() { p.finish(nil) })
	p.mu.Unlock()
	return p
}

// failedPlayback returns a playback that has already ended with err.
func failedPlayback(err error) *timedPlayback {
	p := &timedPlayback{done: make(chan struct{})}
	p.finish(err)
	return p
}

func (p *timedPlayback) Done() <-chan struct{} { return p.done }

func (p *timedPlayback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *timedPlayback) Stop() {
	p.mu.Lock()
	t := p.timer
	p.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	p.finish(ErrPlaybackStopped)
}

func (p *timedPlayback) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

// scaleByRate applies a playback rate to a natural duration.
func scaleByRate(d time.Duration, rate float64) time.Duration {
	if rate <= 0 {
		return d
	}
	return time.Duration(float64(d) / rate)
}
