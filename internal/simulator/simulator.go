// Package simulator plays scripted calls: it sequences template lines,
// drives the phase machine, waits on speech playback and publishes the live
// session to observers.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/reflecthealth/callsim/internal/aggregate"
	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/escalation"
	"github.com/reflecthealth/callsim/internal/observability"
	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/script"
	"github.com/reflecthealth/callsim/internal/session"
	"github.com/reflecthealth/callsim/internal/voice"
)

type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome summarizes one run.
type Outcome struct {
	Status       OutcomeStatus     `json:"status"`
	SessionID    string            `json:"session_id"`
	TemplateName string            `json:"template_name"`
	Intent       string            `json:"intent"`
	EdgeCase     scenario.EdgeCase `json:"edge_case"`
	Branch       script.Branch     `json:"branch"`
	Confidence   int               `json:"confidence"`
	Escalated    bool              `json:"escalated"`
	Reason       string            `json:"escalation_reason"`
	Phases       []phase.Phase     `json:"phases"`
	CostAvoided  float64           `json:"cost_avoided"`
	MinutesSaved int               `json:"minutes_saved"`
	TTSFallbacks int               `json:"tts_fallbacks"`
	Duration     time.Duration     `json:"duration"`
	Totals       aggregate.Totals  `json:"totals"`
	Session      *session.Session  `json:"session,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Snapshot is the read-only state published to observers. Session is the
// live session, or the last finished one until the next call starts.
type Snapshot struct {
	Seq          uint64           `json:"seq"`
	At           time.Time        `json:"at"`
	Phase        phase.Phase      `json:"phase"`
	Running      bool             `json:"running"`
	AutoRepeat   bool             `json:"auto_repeat"`
	AudioEnabled bool             `json:"audio_enabled"`
	Threshold    float64          `json:"confidence_threshold"`
	Session      *session.Session `json:"session,omitempty"`
	Metrics      aggregate.Totals `json:"metrics"`
}

// Observer receives every published snapshot and every completed call.
// Callbacks run on the simulator's goroutine and must not block.
type Observer interface {
	OnSnapshot(Snapshot)
	OnCallCompleted(Outcome)
}

// ObserverFuncs adapts functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Snapshot  func(Snapshot)
	Completed func(Outcome)
}

func (f ObserverFuncs) OnSnapshot(s Snapshot) {
	if f.Snapshot != nil {
		f.Snapshot(s)
	}
}

func (f ObserverFuncs) OnCallCompleted(o Outcome) {
	if f.Completed != nil {
		f.Completed(o)
	}
}

type Options struct {
	// Synthesizer speaks each line. Nil behaves like disabled audio.
	Synthesizer voice.Synthesizer
	Scheduler   clock.Scheduler
	Source      random.Source
	Library     *script.Library
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Observers   []Observer
}

// Simulator is the playback orchestrator. At most one call is live at a
// time; all methods are safe for concurrent use.
type Simulator struct {
	cfg      Config
	planner  *Planner
	src      random.Source
	synth    voice.Synthesizer
	sched    clock.Scheduler
	sessions *session.Manager
	machine  *phase.Machine
	agg      *aggregate.Aggregator
	metrics  *observability.Metrics
	logger   *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// runMu serializes run-state mutations against Cancel so nothing from
	// a cancelled run lands after Cancel returns.
	runMu sync.Mutex

	mu           sync.Mutex
	active       *activeRun
	playback     voice.Playback
	threshold    float64
	audioEnabled bool
	auto         bool
	autoTimer    clock.Timer
	closed       bool
	lastDone     *session.Session
	observers    []Observer
	subs         map[int]chan Snapshot
	nextSub      int
	seq          uint64
	phaseSince   time.Time
}

func New(cfg Config, opts Options) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real()
	}
	if opts.Source == nil {
		opts.Source = random.NewTimeSeeded()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Library == nil {
		opts.Library = script.NewLibrary(opts.Logger)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	planner, err := NewPlanner(opts.Source, opts.Library, opts.Scheduler, cfg)
	if err != nil {
		return nil, err
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Simulator{
		cfg:          cfg,
		planner:      planner,
		src:          opts.Source,
		synth:        opts.Synthesizer,
		sched:        opts.Scheduler,
		sessions:     opts.Sessions,
		machine:      phase.NewMachine(),
		agg:          aggregate.New(cfg.Rates),
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		threshold:    cfg.ConfidenceThreshold,
		audioEnabled: cfg.AudioEnabled,
		observers:    append([]Observer(nil), opts.Observers...),
		subs:         make(map[int]chan Snapshot),
		phaseSince:   opts.Scheduler.Now(),
	}
	s.machine.OnTransition(s.onTransition)
	return s, nil
}

// activeRun is the guard held by the live call. Cancel detaches it, after
// which the cancelled goroutine may still be unwinding but no longer owns
// the machine or the session.
type activeRun struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// AddObserver registers o for future snapshots and completions.
func (s *Simulator) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// RunCall plans and plays one call. It reports false without doing anything
// when a call is already live or the simulator is closed.
func (s *Simulator) RunCall(ctx context.Context) (Outcome, bool) {
	r, ok := s.acquire(ctx)
	if !ok {
		return Outcome{}, false
	}
	return s.planAndRun(r), true
}

// Start plans and plays one call in the background, bound to the
// simulator's lifetime. It reports whether a call was started.
func (s *Simulator) Start() bool {
	r, ok := s.acquire(s.baseCtx)
	if !ok {
		return false
	}
	go s.planAndRun(r)
	return true
}

func (s *Simulator) planAndRun(r *activeRun) Outcome {
	plan, err := s.planner.Plan(s.Threshold())
	if err != nil {
		s.logger.Error("plan call failed", "error", err)
		s.release(r)
		s.scheduleNext(s.cfg.Cooldown)
		return Outcome{Status: OutcomeFailed, Error: err.Error()}
	}
	return s.run(r, plan)
}

// Play plays a prepared plan under the same guard as RunCall.
func (s *Simulator) Play(ctx context.Context, plan CallPlan) (Outcome, bool) {
	r, ok := s.acquire(ctx)
	if !ok {
		return Outcome{}, false
	}
	return s.run(r, plan), true
}

// Planner exposes the planner so callers can prepare plans for Play.
func (s *Simulator) Planner() *Planner { return s.planner }

func (s *Simulator) acquire(ctx context.Context) (*activeRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.active != nil {
		return nil, false
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &activeRun{ctx: runCtx, cancel: cancel}
	s.active = r
	s.lastDone = nil
	return r, true
}

// release drops the guard if r still holds it.
func (s *Simulator) release(r *activeRun) {
	r.cancel()
	s.mu.Lock()
	if s.active == r {
		s.active = nil
	}
	s.mu.Unlock()
}

// owns reports whether the run bound to ctx still holds the guard.
func (s *Simulator) owns(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.ctx == ctx
}

func (s *Simulator) run(r *activeRun, plan CallPlan) Outcome {
	out := s.play(r.ctx, plan)
	s.release(r)
	s.publish()
	if out.Status == OutcomeCompleted {
		s.notifyCompleted(out)
	}
	if out.Status != OutcomeCancelled {
		s.scheduleNext(s.cfg.Cooldown)
	}
	return out
}

func (s *Simulator) play(ctx context.Context, plan CallPlan) Outcome {
	started := s.sched.Now()
	tpl := plan.Selection.Template
	d := plan.Decision
	out := Outcome{
		SessionID:    plan.SessionID,
		TemplateName: tpl.Name,
		Intent:       tpl.Intent,
		EdgeCase:     plan.Scenario.EdgeCase,
		Branch:       tpl.Branch,
		Confidence:   d.Confidence,
	}

	s.metrics.CallStarted()
	err := s.step(ctx, func() error {
		s.machine.Reset()
		if _, err := s.sessions.Begin(plan.Session()); err != nil {
			return err
		}
		return s.enter(plan, phase.Awaiting)
	})
	if err != nil {
		return s.abort(ctx, out, err)
	}
	s.logger.Info("call started",
		"session_id", plan.SessionID,
		"template", tpl.Name,
		"edge_case", plan.Scenario.EdgeCase,
		"branch", tpl.Branch,
	)
	s.publish()

	if err := s.sched.Sleep(ctx, s.cfg.Ring); err != nil {
		return s.abort(ctx, out, err)
	}

	apply := func(p phase.Phase) error {
		err := s.step(ctx, func() error { return s.enter(plan, p) })
		if errors.Is(err, phase.ErrInvalidTransition) && ctx.Err() == nil {
			s.logger.Warn("skipping rejected phase transition", "session_id", plan.SessionID, "error", err)
			return nil
		}
		if err == nil {
			s.publish()
		}
		return err
	}

	clean := plan.Scenario.EdgeCase == scenario.EdgeNone || plan.Scenario.EdgeCase == ""
	for i, line := range tpl.Lines {
		if err := ctx.Err(); err != nil {
			return s.abort(ctx, out, err)
		}
		if line.Phase != "" {
			steps := phase.Expand(s.cfg.Timings, line.Phase, tpl.NextPhase(i), clean)
			if err := phase.Walk(ctx, s.sched, steps, apply); err != nil {
				return s.abort(ctx, out, err)
			}
		}

		var tl session.TranscriptLine
		if err := s.step(ctx, func() error {
			var err error
			tl, err = s.sessions.AppendLine(line.Speaker, line.Text, line.Phase)
			return err
		}); err != nil {
			return s.abort(ctx, out, err)
		}
		s.publish()

		fellBack, err := s.speak(ctx, line)
		if fellBack {
			out.TTSFallbacks++
		}
		if err != nil {
			return s.abort(ctx, out, err)
		}

		if err := s.step(ctx, func() error { return s.sessions.CompleteLine(tl.ID) }); err != nil {
			return s.abort(ctx, out, err)
		}
		s.publish()

		if err := s.sched.Sleep(ctx, s.cfg.LineBuffer); err != nil {
			return s.abort(ctx, out, err)
		}
	}

	if s.machine.Current() != phase.Escalation {
		if err := s.step(ctx, func() error { return s.enter(plan, phase.ConfidenceCheck) }); err != nil {
			return s.abort(ctx, out, err)
		}
		s.publish()
		if err := s.sched.Sleep(ctx, s.cfg.CompletionSettle); err != nil {
			return s.abort(ctx, out, err)
		}
	}

	terminal := phase.Resolved
	if d.Escalated {
		terminal = phase.Escalation
	}
	var finished *session.Session
	err = s.step(ctx, func() error {
		if err := s.enter(plan, terminal); err != nil {
			return err
		}
		var err error
		finished, err = s.sessions.Finish(d.Escalated, d.Reason)
		if err != nil {
			return err
		}
		out.Totals = s.agg.Record(d.Escalated)
		s.mu.Lock()
		s.lastDone = finished
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		return s.abort(ctx, out, err)
	}

	rates := s.agg.Rates()
	out.Status = OutcomeCompleted
	out.Escalated = d.Escalated
	out.Reason = d.Reason
	out.Phases = s.machine.History()
	out.Session = finished
	out.Duration = s.sched.Now().Sub(started)
	if d.Escalated {
		out.MinutesSaved = rates.MinutesPerEscalation
		s.metrics.ObserveEscalation(d.Reason)
	} else {
		out.MinutesSaved = rates.MinutesPerDeflection
		out.CostAvoided = rates.CostPerDeflection
	}
	s.metrics.CallEnded(string(finished.Status), out.Duration)

	s.logger.Info("call completed",
		"session_id", plan.SessionID,
		"escalated", d.Escalated,
		"reason", d.Reason,
		"confidence", d.Confidence,
		"tts_fallbacks", out.TTSFallbacks,
	)
	return out
}

// abort ends a run early. Cancellation leaves the simulator idle with the
// session cleared; any other error is reported as a failed run and also
// resets. A run detached by Cancel leaves the state alone, since Cancel
// already reset it and a new call may own it by now.
func (s *Simulator) abort(ctx context.Context, out Outcome, err error) Outcome {
	s.runMu.Lock()
	if s.owns(ctx) {
		s.machine.Reset()
		s.sessions.Clear()
	}
	s.runMu.Unlock()

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		out.Status = OutcomeCancelled
		s.metrics.CallEnded("cancelled", 0)
		s.logger.Info("call cancelled", "session_id", out.SessionID)
		return out
	}
	out.Status = OutcomeFailed
	out.Error = err.Error()
	s.metrics.CallEnded("failed", 0)
	s.logger.Error("call failed", "session_id", out.SessionID, "error", err)
	return out
}

func (s *Simulator) step(ctx context.Context, fn func() error) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// enter applies a transition and mirrors it on the live session. Entering
// data-timeout marks the session escalated; recovering through data-retry
// appends the successful retry and clears the flag. The final flag is
// settled from the decision at the terminal phase.
func (s *Simulator) enter(plan CallPlan, p phase.Phase) error {
	from := s.machine.Current()
	if err := s.machine.Advance(p); err != nil {
		return err
	}
	_, err := s.sessions.Update(func(sess *session.Session) {
		sess.Phase = p
		switch {
		case p == phase.DataTimeout:
			sess.Escalated = true
			sess.EscalationReason = escalation.ReasonSystemTimeout
		case p == phase.DataRetrieved && from == phase.DataRetry:
			if plan.Retry != nil {
				sess.APICalls = append(sess.APICalls, *plan.Retry)
			}
			sess.Escalated = false
			sess.EscalationReason = ""
		}
	})
	return err
}

func (s *Simulator) onTransition(from, to phase.Phase) {
	now := s.sched.Now()
	s.mu.Lock()
	dwell := now.Sub(s.phaseSince)
	s.phaseSince = now
	s.mu.Unlock()

	prev := string(from)
	if from == phase.Idle {
		prev = ""
	}
	s.metrics.ObservePhase(string(to), prev, dwell)
}

// speak plays one line and waits for it to finish. It reports whether the
// fixed-delay stand-in replaced a failed synthesis. The only error it
// returns is cancellation.
func (s *Simulator) speak(ctx context.Context, line script.Line) (bool, error) {
	profile := s.cfg.AIVoice
	if line.Speaker == script.SpeakerCaller {
		profile = s.cfg.CallerVoice
	}

	s.mu.Lock()
	audio := s.audioEnabled && s.synth != nil
	s.mu.Unlock()
	if !audio {
		s.metrics.ObserveTTSFallback("muted")
		return false, s.sched.Sleep(ctx, s.cfg.MutedDelay)
	}

	pb, err := s.synth.Synthesize(ctx, voice.SynthesisRequest{
		Text:    line.Text,
		VoiceID: profile.ID,
		Volume:  profile.Volume,
		Rate:    s.cfg.PlaybackRate,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, s.fallback(ctx, line.Text, "synthesize", err)
	}

	// Registering under runMu means either Cancel sees pb and stops it, or
	// the run sees the cancelled context here.
	if err := s.step(ctx, func() error {
		s.mu.Lock()
		s.playback = pb
		s.mu.Unlock()
		return nil
	}); err != nil {
		pb.Stop()
		return false, err
	}
	defer func() {
		s.mu.Lock()
		if s.playback == pb {
			s.playback = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		pb.Stop()
		return false, ctx.Err()
	case <-pb.Done():
	}
	if err := pb.Err(); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, voice.ErrPlaybackStopped) {
			return false, nil
		}
		return true, s.fallback(ctx, line.Text, "playback", err)
	}
	return false, nil
}

func (s *Simulator) fallback(ctx context.Context, text, reason string, cause error) error {
	var perr *voice.ProviderError
	if errors.As(cause, &perr) {
		s.metrics.ObserveProviderError(perr.Provider, perr.Code)
	}
	s.metrics.ObserveTTSFallback(reason)
	d := time.Duration(utf8.RuneCountInString(text)) * s.cfg.FallbackPerRune
	if d < s.cfg.FallbackMin {
		d = s.cfg.FallbackMin
	}
	s.logger.Warn("speech unavailable, holding line for fixed delay", "reason", reason, "delay", d, "error", cause)
	return s.sched.Sleep(ctx, d)
}

// Cancel aborts the live call, stops in-flight audio, disables auto-repeat
// and returns to idle. When it returns the simulator is idle and a new call
// may start. It reports whether there was anything to cancel.
func (s *Simulator) Cancel() bool {
	s.mu.Lock()
	timer := s.autoTimer
	s.autoTimer = nil
	wasAuto := s.auto
	s.auto = false
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	s.runMu.Lock()
	s.mu.Lock()
	r := s.active
	s.active = nil
	pb := s.playback
	s.playback = nil
	hadDone := s.lastDone != nil
	s.lastDone = nil
	s.mu.Unlock()
	if r != nil {
		r.cancel()
	}
	if pb != nil {
		pb.Stop()
	}
	wasIdle := s.machine.Current() == phase.Idle
	s.machine.Reset()
	cleared := s.sessions.Clear()
	s.runMu.Unlock()

	changed := r != nil || timer != nil || wasAuto || hadDone || !wasIdle || cleared
	if changed {
		s.logger.Info("simulator cancelled")
		s.publish()
	}
	return changed
}

// IsRunning reports whether a call is live.
func (s *Simulator) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// SetAutoRepeat toggles the auto-repeat loop. Enabling it while idle starts
// the first call after the idle delay.
func (s *Simulator) SetAutoRepeat(on bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.auto = on
	var stop clock.Timer
	if !on {
		stop = s.autoTimer
		s.autoTimer = nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop.Stop()
	}
	if on && !s.IsRunning() {
		s.scheduleNext(s.cfg.IdleStart)
	}
	s.publish()
}

func (s *Simulator) AutoRepeat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto
}

func (s *Simulator) scheduleNext(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.auto || s.closed || s.autoTimer != nil {
		return
	}
	var t clock.Timer
	t = s.sched.AfterFunc(d, func() {
		s.mu.Lock()
		if s.autoTimer != t {
			s.mu.Unlock()
			return
		}
		s.autoTimer = nil
		ctx := s.baseCtx
		s.mu.Unlock()
		s.RunCall(ctx)
	})
	s.autoTimer = t
}

// SetConfidenceThreshold changes the threshold used for the next planned
// call. Values outside [0,100] are rejected.
func (s *Simulator) SetConfidenceThreshold(v float64) error {
	if err := escalation.ValidateThreshold(v); err != nil {
		return err
	}
	s.mu.Lock()
	s.threshold = v
	s.mu.Unlock()
	s.publish()
	return nil
}

func (s *Simulator) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// SetAudioEnabled switches between real playback and the fixed muted delay.
func (s *Simulator) SetAudioEnabled(on bool) {
	s.mu.Lock()
	s.audioEnabled = on
	s.mu.Unlock()
	s.publish()
}

func (s *Simulator) Metrics() aggregate.Totals { return s.agg.Totals() }

// ResetMetrics zeroes the savings counters. Stopping or cancelling never
// does this.
func (s *Simulator) ResetMetrics() {
	s.agg.Reset()
	s.publish()
}

// Sessions returns the manager holding live and finished sessions.
func (s *Simulator) Sessions() *session.Manager { return s.sessions }

// Templates returns the template library.
func (s *Simulator) Templates() *script.Library { return s.planner.lib }

// Close cancels any live call, stops auto-repeat and closes subscriber
// channels. The simulator cannot be restarted after Close.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Cancel()
	s.baseCancel()

	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Simulator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Seq:          s.seq,
		At:           s.sched.Now(),
		Phase:        s.machine.Current(),
		Running:      s.active != nil,
		AutoRepeat:   s.auto,
		AudioEnabled: s.audioEnabled,
		Threshold:    s.threshold,
		Metrics:      s.agg.Totals(),
	}
	if live, ok := s.sessions.Live(); ok {
		snap.Session = live
	} else if s.lastDone != nil {
		done := *s.lastDone
		snap.Session = &done
	}
	return snap
}

// Subscribe returns a channel of snapshots and a function that ends the
// subscription. Slow subscribers miss snapshots rather than stall playback.
func (s *Simulator) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 32)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Simulator) publish() {
	s.mu.Lock()
	s.seq++
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.OnSnapshot(snap)
	}
}

func (s *Simulator) notifyCompleted(out Outcome) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()
	for _, o := range observers {
		o.OnCallCompleted(out)
	}
}
