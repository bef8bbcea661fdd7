package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/reflecthealth/callsim/internal/audio"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileSink writes each clip to Dir as a numbered WAV file. Clips that carry
// no WAV audio are written as silence of the clip's duration so a captured
// call keeps its timing.
type FileSink struct {
	Dir string

	mu sync.Mutex
	n  int
}

func NewFileSink(dir string) (*FileSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file sink dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file sink dir: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

func (s *FileSink) Play(_ context.Context, clip Clip) error {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()

	voice := unsafeFileChars.ReplaceAllString(clip.VoiceID, "_")
	if voice == "" {
		voice = "voice"
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("%03d_%s.wav", n, voice))

	if clip.Format == "audio/wav" {
		return os.WriteFile(path, clip.Data, 0o644)
	}
	rate := clip.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	return audio.WriteWAVFile(path, audio.Silence(clip.Duration, rate), rate)
}

// Written returns how many clips have been written.
func (s *FileSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
