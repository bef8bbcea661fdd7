package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/reflecthealth/callsim/internal/clock"
)

// MockProvider is a headless synthesizer and listener used for tests, the
// CLI, and when no speech vendor is configured. Playback lasts PerRune per
// character of text; zero completes immediately.
type MockProvider struct {
	sched   clock.Scheduler
	perRune time.Duration
	sink    AudioSink

	mu         sync.Mutex
	requests   []SynthesisRequest
	playbacks  []*timedPlayback
	fail       func(SynthesisRequest) error
	failPlay   func(SynthesisRequest) error
	utterances []string
	listenErr  error
}

func NewMockProvider(sched clock.Scheduler, perRune time.Duration) *MockProvider {
	if sched == nil {
		sched = clock.Real()
	}
	return &MockProvider{sched: sched, perRune: perRune, sink: DiscardSink{}}
}

// WithSink routes clips to sink.
func (p *MockProvider) WithSink(sink AudioSink) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sink != nil {
		p.sink = sink
	}
	return p
}

// FailWith makes Synthesize return the error produced by fn, when non-nil.
func (p *MockProvider) FailWith(fn func(SynthesisRequest) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fn
}

// FailPlaybackWith makes Synthesize succeed but hand back a playback that
// has already failed with the error produced by fn, when non-nil.
func (p *MockProvider) FailPlaybackWith(fn func(SynthesisRequest) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPlay = fn
}

// QueueUtterances scripts the text returned by successive Listen calls.
func (p *MockProvider) QueueUtterances(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.utterances = append(p.utterances, texts...)
}

// DisableListening makes Listen report ErrSTTUnsupported.
func (p *MockProvider) DisableListening() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listenErr = ErrSTTUnsupported
}

func (p *MockProvider) Synthesize(ctx context.Context, req SynthesisRequest) (Playback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.requests = append(p.requests, req)
	fail := p.fail
	failPlay := p.failPlay
	sink := p.sink
	p.mu.Unlock()

	if fail != nil {
		if err := fail(req); err != nil {
			return nil, err
		}
	}
	if failPlay != nil {
		if err := failPlay(req); err != nil {
			return failedPlayback(err), nil
		}
	}

	d := scaleByRate(time.Duration(utf8.RuneCountInString(req.Text))*p.perRune, req.Rate)
	if err := sink.Play(ctx, Clip{
		VoiceID:  req.VoiceID,
		Text:     req.Text,
		Volume:   req.Volume,
		Format:   "text/plain",
		Data:     []byte(req.Text),
		Duration: d,
	}); err != nil {
		return nil, fmt.Errorf("mock sink: %w", err)
	}

	pb := startTimed(p.sched, d)
	p.mu.Lock()
	p.playbacks = append(p.playbacks, pb)
	p.mu.Unlock()
	return pb, nil
}

// Listen returns the next queued utterance. With nothing queued it blocks
// until ctx is done.
func (p *MockProvider) Listen(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.listenErr != nil {
		err := p.listenErr
		p.mu.Unlock()
		return "", err
	}
	if len(p.utterances) > 0 {
		text := p.utterances[0]
		p.utterances = p.utterances[1:]
		p.mu.Unlock()
		return strings.TrimSpace(text), nil
	}
	p.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

// Requests returns every synthesis request received so far.
func (p *MockProvider) Requests() []SynthesisRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesisRequest(nil), p.requests...)
}

// Stopped counts playbacks that ended through Stop.
func (p *MockProvider) Stopped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pb := range p.playbacks {
		select {
		case <-pb.Done():
			if pb.Err() == ErrPlaybackStopped {
				n++
			}
		default:
		}
	}
	return n
}

// Active counts playbacks that are still running.
func (p *MockProvider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pb := range p.playbacks {
		select {
		case <-pb.Done():
		default:
			n++
		}
	}
	return n
}
