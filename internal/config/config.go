package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/reflecthealth/callsim/internal/simulator"
)

var voiceProviders = map[string]bool{"auto": true, "elevenlabs": true, "polly": true, "mock": true}

// Config contains all runtime settings for the call simulator service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	SessionRetention time.Duration

	ConfidenceThreshold        float64
	MemberCallerShare          float64
	RetrySuccessRate           float64
	AmbiguityRate              float64
	LowConfidenceAmbiguityRate float64
	AmbiguityCutoff            int
	Seed                       uint64
	AutoRepeat                 bool
	Cooldown                   time.Duration
	AudioEnabled               bool
	TemplatesFile              string
	WatchTemplates             bool

	VoiceProvider string
	CallerVoiceID string
	AIVoiceID     string

	ElevenLabsAPIKey          string
	ElevenLabsWSBaseURL       string
	ElevenLabsTTSModel        string
	ElevenLabsTTSOutputFormat string

	PollyRegion      string
	PollyEngine      string
	PollyCallerVoice string
	PollyAIVoice     string

	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	defaults := simulator.DefaultConfig()
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "callsim"),
		AllowAnyOrigin:      false,
		ShutdownTimeout:     15 * time.Second,
		SessionRetention:    10 * time.Minute,
		ConfidenceThreshold: defaults.ConfidenceThreshold,
		MemberCallerShare:   defaults.Scenario.MemberCallerShare,
		RetrySuccessRate:    defaults.RetrySuccessRate,
		AmbiguityRate:       defaults.Escalation.AmbiguityRate,
		// Applies below AmbiguityCutoff.
		LowConfidenceAmbiguityRate: defaults.Escalation.LowConfidenceAmbiguityRate,
		AmbiguityCutoff:            defaults.Escalation.AmbiguityCutoff,
		Cooldown:                   defaults.Cooldown,
		AudioEnabled:               defaults.AudioEnabled,
		TemplatesFile:              stringsTrimSpace("SIM_TEMPLATES_FILE"),
		VoiceProvider:              strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		CallerVoiceID:              envOrDefault("CALLER_VOICE_ID", simulator.CallerVoiceID),
		AIVoiceID:                  envOrDefault("AI_VOICE_ID", simulator.AIVoiceID),
		ElevenLabsAPIKey:           stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL:        envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSModel:         envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_turbo_v2_5"),
		// PCM lets playback length be computed from the byte count.
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "pcm_16000"),
		PollyRegion:               envOrDefault("POLLY_REGION", "us-east-1"),
		PollyEngine:               envOrDefault("POLLY_ENGINE", "neural"),
		PollyCallerVoice:          envOrDefault("POLLY_CALLER_VOICE", "Joanna"),
		PollyAIVoice:              envOrDefault("POLLY_AI_VOICE", "Matthew"),
		DatabaseURL:               stringsTrimSpace("DATABASE_URL"),
		NATSURL:                   stringsTrimSpace("NATS_URL"),
		NATSSubjectPrefix:         envOrDefault("NATS_SUBJECT_PREFIX", "callsim"),
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetention, err = durationFromEnv("APP_SESSION_RETENTION", cfg.SessionRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceThreshold, err = floatFromEnv("SIM_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MemberCallerShare, err = floatFromEnv("SIM_MEMBER_CALLER_SHARE", cfg.MemberCallerShare)
	if err != nil {
		return Config{}, err
	}
	cfg.RetrySuccessRate, err = floatFromEnv("SIM_RETRY_SUCCESS_RATE", cfg.RetrySuccessRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AmbiguityRate, err = floatFromEnv("SIM_AMBIGUITY_RATE", cfg.AmbiguityRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LowConfidenceAmbiguityRate, err = floatFromEnv("SIM_LOW_CONFIDENCE_AMBIGUITY_RATE", cfg.LowConfidenceAmbiguityRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AmbiguityCutoff, err = intFromEnv("SIM_AMBIGUITY_CUTOFF", cfg.AmbiguityCutoff)
	if err != nil {
		return Config{}, err
	}
	cfg.Seed, err = uintFromEnv("SIM_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoRepeat, err = boolFromEnv("SIM_AUTO_REPEAT", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Cooldown, err = durationFromEnv("SIM_COOLDOWN", cfg.Cooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioEnabled, err = boolFromEnv("SIM_AUDIO_ENABLED", cfg.AudioEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.WatchTemplates, err = boolFromEnv("SIM_WATCH_TEMPLATES", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionRetention < time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_RETENTION must be at least 1s")
	}
	if !voiceProviders[cfg.VoiceProvider] {
		return Config{}, fmt.Errorf("VOICE_PROVIDER must be one of auto, elevenlabs, polly, mock")
	}
	if cfg.WatchTemplates && cfg.TemplatesFile == "" {
		return Config{}, fmt.Errorf("SIM_WATCH_TEMPLATES requires SIM_TEMPLATES_FILE")
	}
	if err := cfg.Simulator().Validate(); err != nil {
		return Config{}, fmt.Errorf("simulator settings: %w", err)
	}

	return cfg, nil
}

// Simulator returns the simulator configuration derived from cfg.
func (c Config) Simulator() simulator.Config {
	sc := simulator.DefaultConfig()
	sc.ConfidenceThreshold = c.ConfidenceThreshold
	sc.RetrySuccessRate = c.RetrySuccessRate
	sc.Scenario.MemberCallerShare = c.MemberCallerShare
	sc.Escalation.AmbiguityRate = c.AmbiguityRate
	sc.Escalation.LowConfidenceAmbiguityRate = c.LowConfidenceAmbiguityRate
	sc.Escalation.AmbiguityCutoff = c.AmbiguityCutoff
	sc.Cooldown = c.Cooldown
	sc.AudioEnabled = c.AudioEnabled
	sc.CallerVoice.ID = c.CallerVoiceID
	sc.AIVoice.ID = c.AIVoiceID
	return sc
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s parse error: expected a finite number", key)
	}
	return f, nil
}

func uintFromEnv(key string, fallback uint64) (uint64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
