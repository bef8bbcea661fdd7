package voice

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSTTUnsupported is returned by a Listener that cannot recognize
	// speech. Callers fall back to a manual reply path.
	ErrSTTUnsupported = errors.New("speech recognition unsupported")
	// ErrPlaybackStopped is reported by a Playback stopped before it finished.
	ErrPlaybackStopped = errors.New("playback stopped")
)

// SynthesisRequest asks for one line of speech.
type SynthesisRequest struct {
	Text    string
	VoiceID string
	// Volume is a gain in [0,1] applied by the audio sink.
	Volume float64
	// Rate scales playback speed. Zero means 1.
	Rate float64
}

// Playback is a handle to audio that is playing.
type Playback interface {
	// Done is closed when playback completes, fails, or is stopped.
	Done() <-chan struct{}
	// Err reports why playback ended; nil on normal completion.
	Err() error
	// Stop halts playback and releases its resources. It is idempotent.
	Stop()
}

// Synthesizer turns text into playing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Playback, error)
}

// Listener returns the next recognized caller utterance.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Clip is synthesized audio handed to a sink for playback or capture.
type Clip struct {
	VoiceID    string
	Text       string
	Volume     float64
	Format     string
	SampleRate int
	Data       []byte
	Duration   time.Duration
}

// AudioSink receives every synthesized clip.
type AudioSink interface {
	Play(ctx context.Context, clip Clip) error
}

// DiscardSink drops clips.
type DiscardSink struct{}

func (DiscardSink) Play(context.Context, Clip) error { return nil }

// SinkFunc adapts a function to AudioSink.
type SinkFunc func(ctx context.Context, clip Clip) error

func (f SinkFunc) Play(ctx context.Context, clip Clip) error { return f(ctx, clip) }
