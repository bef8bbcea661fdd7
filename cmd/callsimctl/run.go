package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/script"
	"github.com/reflecthealth/callsim/internal/simulator"
	"github.com/reflecthealth/callsim/internal/voice"
)

const mockPerRune = 55 * time.Millisecond

type runOptions struct {
	seed      uint64
	threshold float64
	count     int
	audioDir  string
	templates string
	realtime  bool
	asJSON    bool
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play calls locally with the mock voice and print their outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalls(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed; 0 seeds from the clock")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", simulator.DefaultConfig().ConfidenceThreshold, "Confidence threshold for escalation")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of calls to play")
	cmd.Flags().StringVar(&opts.audioDir, "audio-dir", "", "Write each synthesized line as a WAV file into this directory")
	cmd.Flags().StringVar(&opts.templates, "templates", "", "Extra YAML template file")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Pace playback on the wall clock")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print each outcome as JSON")
	return cmd
}

func runCalls(ctx context.Context, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.count <= 0 {
		return fmt.Errorf("count must be positive")
	}

	var sched clock.Scheduler = clock.Real()
	if !opts.realtime {
		rec := clock.NewRecorder()
		sched = rec
		stop := pumpTimers(rec)
		defer stop()
	}

	mock := voice.NewMockProvider(sched, mockPerRune)
	if opts.audioDir != "" {
		sink, err := voice.NewFileSink(opts.audioDir)
		if err != nil {
			return err
		}
		mock.WithSink(sink)
	}

	lib := script.NewLibrary(slog.Default())
	if opts.templates != "" {
		if err := lib.LoadFile(opts.templates); err != nil {
			return err
		}
	}

	src := random.NewTimeSeeded()
	if opts.seed != 0 {
		src = random.New(opts.seed)
	}

	cfg := simulator.DefaultConfig()
	cfg.ConfidenceThreshold = opts.threshold
	sim, err := simulator.New(cfg, simulator.Options{
		Synthesizer: mock,
		Scheduler:   sched,
		Source:      src,
		Library:     lib,
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	enc := json.NewEncoder(out)
	for i := 0; i < opts.count; i++ {
		outcome, ok := sim.RunCall(ctx)
		if !ok {
			return fmt.Errorf("call %d did not start", i+1)
		}
		if opts.asJSON {
			if err := enc.Encode(outcome); err != nil {
				return err
			}
		} else {
			printOutcome(out, outcome)
		}
		if outcome.Status == simulator.OutcomeCancelled {
			return ctx.Err()
		}
	}

	if !opts.asJSON {
		t := sim.Metrics()
		fmt.Fprintf(out, "\ncalls=%d deflected=%d escalated=%d deflection=%.0f%% cost_avoided=$%.2f minutes_saved=%d\n",
			t.Calls(), t.Deflected, t.Escalated, t.DeflectionRate()*100, t.CostAvoided, t.MinutesSaved)
	}
	return nil
}

// pumpTimers fires recorded timers as soon as they are armed, so playback
// waits resolve immediately while clip durations stay realistic.
func pumpTimers(rec *clock.Recorder) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rec.Fire()
			}
		}
	}()
	return func() { close(done) }
}

func printOutcome(w io.Writer, o simulator.Outcome) {
	result := "deflected"
	if o.Escalated {
		result = "escalated (" + o.Reason + ")"
	}
	if o.Status != simulator.OutcomeCompleted {
		result = string(o.Status)
		if o.Error != "" {
			result += ": " + o.Error
		}
	}
	fmt.Fprintf(w, "%-22s %-34s edge=%-18s conf=%3d%%  %s\n",
		o.SessionID, o.TemplateName, o.EdgeCase, o.Confidence, result)
}
