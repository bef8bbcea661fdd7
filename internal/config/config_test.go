package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ConfidenceThreshold != 85 {
		t.Fatalf("ConfidenceThreshold = %v, want 85", cfg.ConfidenceThreshold)
	}
	if cfg.VoiceProvider != "auto" {
		t.Fatalf("VoiceProvider = %q, want auto", cfg.VoiceProvider)
	}
	if cfg.Cooldown != 1500*time.Millisecond {
		t.Fatalf("Cooldown = %v, want 1.5s", cfg.Cooldown)
	}
	if cfg.SessionRetention != 10*time.Minute {
		t.Fatalf("SessionRetention = %v, want 10m", cfg.SessionRetention)
	}
	if cfg.DatabaseURL != "" || cfg.NATSURL != "" {
		t.Fatalf("optional backends should default to empty: %+v", cfg)
	}
	if !cfg.AudioEnabled {
		t.Fatalf("AudioEnabled = false, want true")
	}
}

func TestLoadOverridesSimulatorPolicy(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SIM_CONFIDENCE_THRESHOLD", "72.5")
	t.Setenv("SIM_RETRY_SUCCESS_RATE", "1")
	t.Setenv("SIM_MEMBER_CALLER_SHARE", "0.5")
	t.Setenv("SIM_AMBIGUITY_CUTOFF", "90")
	t.Setenv("SIM_SEED", "42")
	t.Setenv("SIM_COOLDOWN", "3s")
	t.Setenv("SIM_AUDIO_ENABLED", "off")
	t.Setenv("VOICE_PROVIDER", "Polly")
	t.Setenv("AI_VOICE_ID", "ai-voice")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Seed != 42 || cfg.VoiceProvider != "polly" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	sc := cfg.Simulator()
	if sc.ConfidenceThreshold != 72.5 {
		t.Fatalf("ConfidenceThreshold = %v, want 72.5", sc.ConfidenceThreshold)
	}
	if sc.RetrySuccessRate != 1 || sc.Scenario.MemberCallerShare != 0.5 {
		t.Fatalf("policy not applied: %+v", sc)
	}
	if sc.Escalation.AmbiguityCutoff != 90 {
		t.Fatalf("AmbiguityCutoff = %d, want 90", sc.Escalation.AmbiguityCutoff)
	}
	if sc.Cooldown != 3*time.Second || sc.AudioEnabled {
		t.Fatalf("pacing not applied: cooldown=%v audio=%v", sc.Cooldown, sc.AudioEnabled)
	}
	if sc.AIVoice.ID != "ai-voice" {
		t.Fatalf("AIVoice.ID = %q, want ai-voice", sc.AIVoice.ID)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"threshold above range": {"SIM_CONFIDENCE_THRESHOLD", "101", "confidence threshold"},
		"threshold not number":  {"SIM_CONFIDENCE_THRESHOLD", "high", "SIM_CONFIDENCE_THRESHOLD parse error"},
		"threshold NaN":         {"SIM_CONFIDENCE_THRESHOLD", "NaN", "SIM_CONFIDENCE_THRESHOLD parse error"},
		"threshold infinite":    {"SIM_CONFIDENCE_THRESHOLD", "-Inf", "SIM_CONFIDENCE_THRESHOLD parse error"},
		"retry rate":            {"SIM_RETRY_SUCCESS_RATE", "1.5", "retry success rate"},
		"retry rate NaN":        {"SIM_RETRY_SUCCESS_RATE", "nan", "SIM_RETRY_SUCCESS_RATE parse error"},
		"ambiguity rate NaN":    {"SIM_AMBIGUITY_RATE", "NaN", "SIM_AMBIGUITY_RATE parse error"},
		"member share":          {"SIM_MEMBER_CALLER_SHARE", "-0.1", "member caller share"},
		"provider":              {"VOICE_PROVIDER", "kokoro", "VOICE_PROVIDER"},
		"retention":             {"APP_SESSION_RETENTION", "10ms", "APP_SESSION_RETENTION"},
		"bool":                  {"SIM_AUTO_REPEAT", "maybe", "expected bool"},
		"watch without file":    {"SIM_WATCH_TEMPLATES", "true", "SIM_TEMPLATES_FILE"},
		"seed":                  {"SIM_SEED", "-1", "SIM_SEED parse error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_SESSION_RETENTION",
		"SIM_CONFIDENCE_THRESHOLD",
		"SIM_MEMBER_CALLER_SHARE",
		"SIM_RETRY_SUCCESS_RATE",
		"SIM_AMBIGUITY_RATE",
		"SIM_LOW_CONFIDENCE_AMBIGUITY_RATE",
		"SIM_AMBIGUITY_CUTOFF",
		"SIM_SEED",
		"SIM_AUTO_REPEAT",
		"SIM_COOLDOWN",
		"SIM_AUDIO_ENABLED",
		"SIM_TEMPLATES_FILE",
		"SIM_WATCH_TEMPLATES",
		"VOICE_PROVIDER",
		"CALLER_VOICE_ID",
		"AI_VOICE_ID",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"POLLY_REGION",
		"POLLY_ENGINE",
		"POLLY_CALLER_VOICE",
		"POLLY_AI_VOICE",
		"DATABASE_URL",
		"NATS_URL",
		"NATS_SUBJECT_PREFIX",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
