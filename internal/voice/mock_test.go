package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reflecthealth/callsim/internal/clock"
)

func TestMockProviderPlaybackCompletesOnSchedulerFire(t *testing.T) {
	rec := clock.NewRecorder()
	p := NewMockProvider(rec, 10*time.Millisecond)

	pb, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "hello", VoiceID: "v", Rate: 2})
	if err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	if p.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", p.Active())
	}
	rec.Fire()
	select {
	case <-pb.Done():
	default:
		t.Fatalf("playback not done after Fire()")
	}
	if pb.Err() != nil {
		t.Fatalf("Err() = %v, want nil", pb.Err())
	}
	if got := p.Requests(); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("Requests() = %+v", got)
	}
}

func TestMockProviderStop(t *testing.T) {
	rec := clock.NewRecorder()
	p := NewMockProvider(rec, time.Millisecond)

	pb, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "stop me"})
	if err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	pb.Stop()
	pb.Stop()
	if !errors.Is(pb.Err(), ErrPlaybackStopped) {
		t.Fatalf("Err() = %v, want ErrPlaybackStopped", pb.Err())
	}
	if p.Stopped() != 1 || p.Active() != 0 {
		t.Fatalf("Stopped() = %d Active() = %d, want 1 and 0", p.Stopped(), p.Active())
	}
}

func TestMockProviderZeroDurationCompletesImmediately(t *testing.T) {
	p := NewMockProvider(clock.NewRecorder(), 0)
	pb, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "x"})
	if err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	select {
	case <-pb.Done():
	default:
		t.Fatalf("zero-length playback should be done")
	}
}

func TestMockProviderSinkReceivesClip(t *testing.T) {
	var got Clip
	p := NewMockProvider(clock.NewRecorder(), 0).WithSink(SinkFunc(func(_ context.Context, c Clip) error {
		got = c
		return nil
	}))
	if _, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "abc", VoiceID: "ai", Volume: 0.5}); err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	if got.VoiceID != "ai" || got.Volume != 0.5 || got.Text != "abc" {
		t.Fatalf("clip = %+v", got)
	}
}

func TestMockProviderFailWith(t *testing.T) {
	p := NewMockProvider(clock.NewRecorder(), 0)
	boom := errors.New("boom")
	p.FailWith(func(SynthesisRequest) error { return boom })
	if _, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "x"}); !errors.Is(err, boom) {
		t.Fatalf("Synthesize() error = %v, want boom", err)
	}
}

func TestMockProviderFailPlaybackWith(t *testing.T) {
	p := NewMockProvider(clock.NewRecorder(), time.Millisecond)
	boom := errors.New("device lost")
	p.FailPlaybackWith(func(SynthesisRequest) error { return boom })

	pb, err := p.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Synthesize() unexpected error = %v", err)
	}
	select {
	case <-pb.Done():
	default:
		t.Fatalf("failed playback should already be done")
	}
	if !errors.Is(pb.Err(), boom) {
		t.Fatalf("Err() = %v, want %v", pb.Err(), boom)
	}
	if p.Active() != 0 {
		t.Fatalf("Active() = %d, want 0", p.Active())
	}
}

func TestMockProviderListen(t *testing.T) {
	p := NewMockProvider(clock.NewRecorder(), 0)
	p.QueueUtterances("  first  ", "second")

	got, err := p.Listen(context.Background())
	if err != nil || got != "first" {
		t.Fatalf("Listen() = %q, %v", got, err)
	}
	got, _ = p.Listen(context.Background())
	if got != "second" {
		t.Fatalf("Listen() = %q, want second", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Listen(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Listen() on empty queue error = %v, want context.Canceled", err)
	}

	p.DisableListening()
	if _, err := p.Listen(context.Background()); !errors.Is(err, ErrSTTUnsupported) {
		t.Fatalf("Listen() error = %v, want ErrSTTUnsupported", err)
	}
}

func TestScaleByRate(t *testing.T) {
	if got := scaleByRate(time.Second, 2); got != 500*time.Millisecond {
		t.Fatalf("scaleByRate() = %v, want 500ms", got)
	}
}
