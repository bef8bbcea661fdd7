package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/reflecthealth/callsim/internal/audio"
	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	ModelID      string
	OutputFormat string
	Stability    float64
	Similarity   float64
}

// ElevenLabsProvider synthesizes lines over the stream-input websocket and
// collects the full clip before handing it to the sink.
type ElevenLabsProvider struct {
	cfg   ElevenLabsConfig
	sched clock.Scheduler
	sink  AudioSink
	// estimatePerRune sizes playback for compressed formats whose duration
	// cannot be read from the byte count.
	estimatePerRune time.Duration
}

func NewElevenLabsProvider(cfg ElevenLabsConfig, sched clock.Scheduler, sink AudioSink) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.Stability <= 0 || cfg.Stability > 1 {
		cfg.Stability = 0.42
	}
	if cfg.Similarity <= 0 || cfg.Similarity > 1 {
		cfg.Similarity = 0.85
	}
	if sched == nil {
		sched = clock.Real()
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	return &ElevenLabsProvider{cfg: cfg, sched: sched, sink: sink, estimatePerRune: 60 * time.Millisecond}
}

// ProviderError is an error event reported by a speech vendor.
type ProviderError struct {
	Provider  string
	Code      string
	Detail    string
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Code, e.Detail)
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req SynthesisRequest) (Playback, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, fmt.Errorf("voice_id is required")
	}
	stream, err := p.startStream(ctx, req.VoiceID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.writeJSON(map[string]any{"text": speakableText(req.Text) + " ", "try_trigger_generation": true}); err != nil {
		return nil, fmt.Errorf("send tts text: %w", err)
	}
	if err := stream.writeJSON(map[string]any{"text": ""}); err != nil {
		return nil, fmt.Errorf("close tts input: %w", err)
	}

	var pcm []byte
collect:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-stream.events:
			if !ok {
				break collect
			}
			switch ev.kind {
			case "audio":
				chunk, err := base64.StdEncoding.DecodeString(ev.audio)
				if err != nil {
					return nil, fmt.Errorf("decode tts audio: %w", err)
				}
				pcm = append(pcm, chunk...)
			case "final":
				break collect
			case "error":
				return nil, &ProviderError{
					Provider:  "elevenlabs",
					Code:      ev.code,
					Detail:    ev.detail,
					Retryable: reliability.IsRetryableProviderCode(ev.code),
				}
			}
		}
	}
	if len(pcm) == 0 {
		return nil, &ProviderError{Provider: "elevenlabs", Code: "empty_audio", Detail: "no audio received", Retryable: true}
	}

	clip := Clip{VoiceID: req.VoiceID, Text: req.Text, Volume: req.Volume, Format: p.cfg.OutputFormat, Data: pcm}
	if rate, ok := pcmSampleRate(p.cfg.OutputFormat); ok {
		wav, err := audio.EncodeWAV(pcm, rate)
		if err != nil {
			return nil, fmt.Errorf("wrap tts audio: %w", err)
		}
		clip.Format = "audio/wav"
		clip.SampleRate = rate
		clip.Data = wav
		clip.Duration = audio.Duration(len(pcm), rate)
	} else {
		clip.Duration = time.Duration(utf8.RuneCountInString(req.Text)) * p.estimatePerRune
	}
	if err := p.sink.Play(ctx, clip); err != nil {
		return nil, fmt.Errorf("play tts audio: %w", err)
	}
	return startTimed(p.sched, scaleByRate(clip.Duration, req.Rate)), nil
}

func (p *ElevenLabsProvider) startStream(ctx context.Context, voiceID string) (*elevenTTSStream, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.ModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &elevenTTSStream{conn: conn, events: make(chan ttsEvent, 512), closed: make(chan struct{})}
	go s.readLoop()
	// Prime the stream as documented for TTS websocket flows.
	if err := s.writeJSON(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        p.cfg.Stability,
			"similarity_boost": p.cfg.Similarity,
		},
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prime tts stream: %w", err)
	}
	return s, nil
}

type ttsEvent struct {
	kind   string
	audio  string
	code   string
	detail string
}

type elevenTTSStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan ttsEvent
	closed    chan struct{}
}

func (s *elevenTTSStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *elevenTTSStream) emit(ev ttsEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	}
}

func (s *elevenTTSStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenTTSStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}

		if a := asString(raw["audio"]); a != "" {
			if !s.emit(ttsEvent{kind: "audio", audio: a}) {
				return
			}
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			if !s.emit(ttsEvent{kind: "final"}) {
				return
			}
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			if !s.emit(ttsEvent{kind: "error", code: asString(raw["message_type"]), detail: errMsg}) {
				return
			}
		}
	}
}

// pcmSampleRate parses output formats such as "pcm_16000".
func pcmSampleRate(format string) (int, bool) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
