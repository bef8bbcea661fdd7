package voice

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// NewFailoverSynthesizer prefers primary and switches to fallback when
// primary fails to start a line. Once fallback succeeds it stays active
// until it fails; then primary is retried. fallbackVoices optionally maps
// primary voice ids to fallback voice ids.
func NewFailoverSynthesizer(primary, fallback Synthesizer, fallbackVoices map[string]string) *FailoverSynthesizer {
	voices := make(map[string]string, len(fallbackVoices))
	for k, v := range fallbackVoices {
		if v = strings.TrimSpace(v); v != "" {
			voices[k] = v
		}
	}
	return &FailoverSynthesizer{primary: primary, fallback: fallback, fallbackVoices: voices}
}

type FailoverSynthesizer struct {
	fallbackActive atomic.Bool
	primary        Synthesizer
	fallback       Synthesizer
	fallbackVoices map[string]string
}

// FallbackActive reports whether lines are currently routed to fallback.
func (s *FailoverSynthesizer) FallbackActive() bool { return s.fallbackActive.Load() }

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (Playback, error) {
	if s.fallbackActive.Load() {
		pb, fbErr := s.synthesizeFallback(ctx, req)
		if fbErr == nil {
			return pb, nil
		}
		// Fallback failed after being active; try primary again.
		pb, prErr := s.primary.Synthesize(ctx, req)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return pb, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	pb, prErr := s.primary.Synthesize(ctx, req)
	if prErr == nil {
		return pb, nil
	}
	if ctx.Err() != nil {
		return nil, prErr
	}
	pb, fbErr := s.synthesizeFallback(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return pb, nil
}

func (s *FailoverSynthesizer) synthesizeFallback(ctx context.Context, req SynthesisRequest) (Playback, error) {
	if mapped, ok := s.fallbackVoices[req.VoiceID]; ok {
		req.VoiceID = mapped
	}
	return s.fallback.Synthesize(ctx, req)
}
