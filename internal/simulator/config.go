package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/reflecthealth/callsim/internal/aggregate"
	"github.com/reflecthealth/callsim/internal/escalation"
	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/scenario"
)

const (
	// CallerVoiceID and AIVoiceID are the default speaker voices.
	CallerVoiceID = "EXAVITQu4vr4xnSDxMaL"
	AIVoiceID     = "onwK4e9ZLuTAKqWW03F9"
)

// VoiceProfile is the voice and gain used for one speaker.
type VoiceProfile struct {
	ID     string  `json:"id"`
	Volume float64 `json:"volume"`
}

// Config holds the simulator's policy and pacing. All of it is validated by
// New; nothing is checked during playback.
type Config struct {
	ConfidenceThreshold float64           `json:"confidence_threshold"`
	RetrySuccessRate    float64           `json:"retry_success_rate"`
	Scenario            scenario.Policy   `json:"scenario"`
	Escalation          escalation.Policy `json:"escalation"`
	Rates               aggregate.Rates   `json:"rates"`
	Timings             phase.Timings     `json:"timings"`

	// Ring is held in awaiting before the first line.
	Ring time.Duration `json:"ring"`
	// LineBuffer separates consecutive lines.
	LineBuffer time.Duration `json:"line_buffer"`
	// CompletionSettle holds confidence-check before the terminal phase.
	CompletionSettle time.Duration `json:"completion_settle"`
	// Cooldown separates auto-repeated calls.
	Cooldown time.Duration `json:"cooldown"`
	// IdleStart delays the first auto-repeated call.
	IdleStart time.Duration `json:"idle_start"`

	// MutedDelay stands in for every line while audio is disabled.
	MutedDelay time.Duration `json:"muted_delay"`
	// A failed line waits max(FallbackMin, runes*FallbackPerRune).
	FallbackMin     time.Duration `json:"fallback_min"`
	FallbackPerRune time.Duration `json:"fallback_per_rune"`

	CallerVoice  VoiceProfile `json:"caller_voice"`
	AIVoice      VoiceProfile `json:"ai_voice"`
	PlaybackRate float64      `json:"playback_rate"`
	AudioEnabled bool         `json:"audio_enabled"`
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 85,
		RetrySuccessRate:    0.6,
		Scenario:            scenario.DefaultPolicy(),
		Escalation:          escalation.DefaultPolicy(),
		Rates:               aggregate.DefaultRates(),
		Timings:             phase.DefaultTimings(),
		Ring:                800 * time.Millisecond,
		LineBuffer:          300 * time.Millisecond,
		CompletionSettle:    800 * time.Millisecond,
		Cooldown:            1500 * time.Millisecond,
		IdleStart:           time.Second,
		MutedDelay:          800 * time.Millisecond,
		FallbackMin:         1200 * time.Millisecond,
		FallbackPerRune:     42 * time.Millisecond,
		CallerVoice:         VoiceProfile{ID: CallerVoiceID, Volume: 0.35},
		AIVoice:             VoiceProfile{ID: AIVoiceID, Volume: 0.5},
		PlaybackRate:        1,
		AudioEnabled:        true,
	}
}

func (c Config) Validate() error {
	if err := escalation.ValidateThreshold(c.ConfidenceThreshold); err != nil {
		return err
	}
	if !(c.RetrySuccessRate >= 0 && c.RetrySuccessRate <= 1) {
		return fmt.Errorf("retry success rate %v outside [0,1]", c.RetrySuccessRate)
	}
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("scenario policy: %w", err)
	}
	if err := c.Escalation.Validate(); err != nil {
		return fmt.Errorf("escalation policy: %w", err)
	}
	if !(c.Rates.CostPerDeflection >= 0) || math.IsInf(c.Rates.CostPerDeflection, 1) || c.Rates.MinutesPerDeflection < 0 || c.Rates.MinutesPerEscalation < 0 {
		return fmt.Errorf("savings rates must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"ring":              c.Ring,
		"line buffer":       c.LineBuffer,
		"completion settle": c.CompletionSettle,
		"cooldown":          c.Cooldown,
		"idle start":        c.IdleStart,
		"muted delay":       c.MutedDelay,
		"fallback min":      c.FallbackMin,
		"fallback per rune": c.FallbackPerRune,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if !(c.PlaybackRate >= 0 && c.PlaybackRate <= 4) {
		return fmt.Errorf("playback rate %v outside [0,4]", c.PlaybackRate)
	}
	if !(c.CallerVoice.Volume >= 0 && c.CallerVoice.Volume <= 1) || !(c.AIVoice.Volume >= 0 && c.AIVoice.Volume <= 1) {
		return fmt.Errorf("voice volume must be in [0,1]")
	}
	return nil
}
