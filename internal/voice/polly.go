package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/reflecthealth/callsim/internal/audio"
	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/reliability"
)

const pollySampleRate = 16000

type pollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

type PollyConfig struct {
	Region string
	Engine string
	// Voices maps simulator voice ids to Polly voice names.
	Voices       map[string]string
	DefaultVoice string
	Timeout      time.Duration
}

// PollyProvider synthesizes lines with Amazon Polly as 16 kHz PCM and hands
// them to the sink as WAV.
type PollyProvider struct {
	mu     sync.Mutex
	client pollyClient
	cfg    PollyConfig
	sched  clock.Scheduler
	sink   AudioSink
}

func NewPollyProvider(cfg PollyConfig, sched clock.Scheduler, sink AudioSink) *PollyProvider {
	return newPollyProviderWithClient(cfg, nil, sched, sink)
}

func newPollyProviderWithClient(cfg PollyConfig, client pollyClient, sched clock.Scheduler, sink AudioSink) *PollyProvider {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	if strings.TrimSpace(cfg.DefaultVoice) == "" {
		cfg.DefaultVoice = "Joanna"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if sched == nil {
		sched = clock.Real()
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	return &PollyProvider{client: client, cfg: cfg, sched: sched, sink: sink}
}

func (p *PollyProvider) Synthesize(ctx context.Context, req SynthesisRequest) (Playback, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voice := p.cfg.DefaultVoice
	if mapped, ok := p.cfg.Voices[req.VoiceID]; ok && mapped != "" {
		voice = mapped
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out, err := client.SynthesizeSpeech(callCtx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(pollySampleRate)),
		Text:         aws.String(speakableText(req.Text)),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		return nil, normalizePollyError(err)
	}
	if out == nil || out.AudioStream == nil {
		return nil, &ProviderError{Provider: "polly", Code: "empty_audio", Detail: "no audio stream", Retryable: true}
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, &ProviderError{Provider: "polly", Code: "transport", Detail: err.Error(), Retryable: true}
	}
	wav, err := audio.EncodeWAV(pcm, pollySampleRate)
	if err != nil {
		return nil, fmt.Errorf("wrap polly audio: %w", err)
	}
	clip := Clip{
		VoiceID:    req.VoiceID,
		Text:       req.Text,
		Volume:     req.Volume,
		Format:     "audio/wav",
		SampleRate: pollySampleRate,
		Data:       wav,
		Duration:   audio.Duration(len(pcm), pollySampleRate),
	}
	if err := p.sink.Play(ctx, clip); err != nil {
		return nil, fmt.Errorf("play polly audio: %w", err)
	}
	return startTimed(p.sched, scaleByRate(clip.Duration, req.Rate)), nil
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: "polly", Code: "timeout", Detail: err.Error(), Retryable: true}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:  "polly",
			Code:      apiErr.ErrorCode(),
			Detail:    apiErr.ErrorMessage(),
			Retryable: reliability.IsRetryableProviderCode(apiErr.ErrorCode()),
		}
	}
	return &ProviderError{Provider: "polly", Code: "transport", Detail: err.Error(), Retryable: true}
}

func (p *PollyProvider) resolveClient(ctx context.Context) (pollyClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
