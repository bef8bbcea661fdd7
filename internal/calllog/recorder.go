package calllog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reflecthealth/callsim/internal/policy"
	"github.com/reflecthealth/callsim/internal/reliability"
	"github.com/reflecthealth/callsim/internal/simulator"
)

const (
	saveTimeout  = 5 * time.Second
	saveAttempts = 3
)

// FromOutcome converts a completed run into a redacted record.
func FromOutcome(out simulator.Outcome) Record {
	r := Record{
		SessionID:        out.SessionID,
		TemplateName:     out.TemplateName,
		Intent:           out.Intent,
		EdgeCase:         string(out.EdgeCase),
		Branch:           string(out.Branch),
		Confidence:       out.Confidence,
		Escalated:        out.Escalated,
		EscalationReason: out.Reason,
		CostAvoided:      out.CostAvoided,
		MinutesSaved:     out.MinutesSaved,
		TTSFallbacks:     out.TTSFallbacks,
		DurationMS:       out.Duration.Milliseconds(),
	}
	sess := out.Session
	if sess == nil {
		return r
	}
	r.CallerType = string(sess.CallerType)
	r.NPI = policy.MaskID(sess.NPI)
	r.MemberID = policy.MaskID(sess.MemberID)
	r.PHIRedacted = sess.NPI != "" || sess.MemberID != ""
	if sess.EndedAt != nil {
		r.CreatedAt = *sess.EndedAt
	}
	r.Transcript = make([]Line, 0, len(sess.Transcript))
	for _, tl := range sess.Transcript {
		text, changed := policy.RedactPHI(tl.Text)
		r.PHIRedacted = r.PHIRedacted || changed
		r.Transcript = append(r.Transcript, Line{Speaker: string(tl.Speaker), Text: text, Phase: string(tl.Phase)})
	}
	return r
}

// Recorder is a simulator observer that persists every completed call.
// Saves run in the background so playback never waits on the store.
type Recorder struct {
	store  Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

func (r *Recorder) OnSnapshot(simulator.Snapshot) {}

func (r *Recorder) OnCallCompleted(out simulator.Outcome) {
	record := FromOutcome(out)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.save(ctx, record); err != nil {
			r.logger.Warn("call log save failed", "session_id", record.SessionID, "error", err)
		}
	}()
}

func (r *Recorder) save(ctx context.Context, record Record) error {
	var err error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		if err = r.store.Save(ctx, record); err == nil {
			return nil
		}
		if attempt == saveAttempts-1 {
			break
		}
		t := time.NewTimer(reliability.Backoff(attempt, 100*time.Millisecond, time.Second))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

// Wait blocks until pending saves finish.
func (r *Recorder) Wait() { r.wg.Wait() }
