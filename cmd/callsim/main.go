package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reflecthealth/callsim/internal/calllog"
	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/config"
	"github.com/reflecthealth/callsim/internal/events"
	"github.com/reflecthealth/callsim/internal/httpapi"
	"github.com/reflecthealth/callsim/internal/observability"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/script"
	"github.com/reflecthealth/callsim/internal/session"
	"github.com/reflecthealth/callsim/internal/simulator"
	"github.com/reflecthealth/callsim/internal/voice"
)

// mockPerRune paces mock playback roughly like spoken audio.
const mockPerRune = 55 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sched := clock.Real()

	ctx := context.Background()
	callStore, err := calllog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("call log init failed: %v", err)
	}
	defer callStore.Close()

	synth, resolved := selectSynthesizer(cfg, sched)
	// Report the resolved backend rather than "auto".
	cfg.VoiceProvider = resolved

	lib := script.NewLibrary(logger)
	if cfg.TemplatesFile != "" {
		if err := lib.LoadFile(cfg.TemplatesFile); err != nil {
			log.Fatalf("template load failed: %v", err)
		}
		log.Printf("templates loaded from %s: %d", cfg.TemplatesFile, len(lib.Names()))
	}

	var src random.Source
	if cfg.Seed != 0 {
		src = random.New(cfg.Seed)
		log.Printf("deterministic playback, seed %d", cfg.Seed)
	} else {
		src = random.NewTimeSeeded()
	}

	sessions := session.NewManager(cfg.SessionRetention)
	recorder := calllog.NewRecorder(callStore, logger)
	observers := []simulator.Observer{recorder}

	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, "callsim")
		if err != nil {
			log.Fatalf("nats connect failed: %v", err)
		}
		defer nc.Drain()
		observers = append(observers, events.NewPublisher(nc, cfg.NATSSubjectPrefix, logger))
		log.Printf("publishing call events to %s", cfg.NATSURL)
	}

	sim, err := simulator.New(cfg.Simulator(), simulator.Options{
		Synthesizer: synth,
		Scheduler:   sched,
		Source:      src,
		Library:     lib,
		Sessions:    sessions,
		Metrics:     metrics,
		Logger:      logger,
		Observers:   observers,
	})
	if err != nil {
		log.Fatalf("simulator init failed: %v", err)
	}

	api := httpapi.New(cfg, sim, callStore, metrics)
	api.SetConversationFactory(func(c simulator.ConversationConfig) (*simulator.Conversation, error) {
		return simulator.NewConversation(c, simulator.ConversationOptions{Logger: logger})
	})
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	if cfg.WatchTemplates {
		go func() {
			if err := lib.Watch(runCtx, cfg.TemplatesFile, 250*time.Millisecond); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("template watch stopped: %v", err)
			}
		}()
	}

	if cfg.AutoRepeat {
		sim.SetAutoRepeat(true)
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	sim.Close()
	api.Close()
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	recorder.Wait()

	log.Printf("shutdown complete")
}

// selectSynthesizer resolves VOICE_PROVIDER to a synthesizer. In auto mode
// ElevenLabs is preferred with Polly as failover when both are configured.
func selectSynthesizer(cfg config.Config, sched clock.Scheduler) (voice.Synthesizer, string) {
	pollyVoices := map[string]string{
		cfg.CallerVoiceID: cfg.PollyCallerVoice,
		cfg.AIVoiceID:     cfg.PollyAIVoice,
	}
	newElevenLabs := func() voice.Synthesizer {
		return voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			WSBaseURL:    cfg.ElevenLabsWSBaseURL,
			ModelID:      cfg.ElevenLabsTTSModel,
			OutputFormat: cfg.ElevenLabsTTSOutputFormat,
		}, sched, nil)
	}
	newPolly := func() voice.Synthesizer {
		return voice.NewPollyProvider(voice.PollyConfig{
			Region:       cfg.PollyRegion,
			Engine:       cfg.PollyEngine,
			Voices:       pollyVoices,
			DefaultVoice: cfg.PollyAIVoice,
		}, sched, nil)
	}
	hasKey := strings.TrimSpace(cfg.ElevenLabsAPIKey) != ""

	switch cfg.VoiceProvider {
	case "elevenlabs":
		if !hasKey {
			log.Fatalf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		log.Printf("voice provider: elevenlabs")
		return newElevenLabs(), "elevenlabs"
	case "polly":
		log.Printf("voice provider: polly (%s)", cfg.PollyRegion)
		return newPolly(), "polly"
	case "mock":
		log.Printf("voice provider: mock")
		return voice.NewMockProvider(sched, mockPerRune), "mock"
	default:
		if hasKey && cfg.PollyRegion != "" {
			log.Printf("voice provider: elevenlabs with polly failover")
			return voice.NewFailoverSynthesizer(newElevenLabs(), newPolly(), pollyVoices), "elevenlabs+polly"
		}
		if hasKey {
			log.Printf("voice provider: elevenlabs")
			return newElevenLabs(), "elevenlabs"
		}
		log.Printf("voice provider: mock (no elevenlabs key)")
		return voice.NewMockProvider(sched, mockPerRune), "mock"
	}
}
