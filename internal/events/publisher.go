// Package events mirrors simulator activity onto NATS subjects for
// downstream dashboards.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/reflecthealth/callsim/internal/aggregate"
	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/simulator"
)

const DefaultPrefix = "callsim"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// PhaseEvent is published on <prefix>.phase whenever the live phase changes.
type PhaseEvent struct {
	SessionID  string      `json:"session_id,omitempty"`
	Phase      phase.Phase `json:"phase"`
	Previous   phase.Phase `json:"previous"`
	Escalated  bool        `json:"escalated"`
	Reason     string      `json:"escalation_reason,omitempty"`
	Confidence int         `json:"confidence,omitempty"`
	At         time.Time   `json:"at"`
}

// CallEvent is published on <prefix>.calls.completed. It carries no
// identifiers beyond the session id.
type CallEvent struct {
	SessionID    string           `json:"session_id"`
	TemplateName string           `json:"template_name"`
	Intent       string           `json:"intent"`
	EdgeCase     string           `json:"edge_case"`
	Branch       string           `json:"branch"`
	Confidence   int              `json:"confidence"`
	Escalated    bool             `json:"escalated"`
	Reason       string           `json:"escalation_reason,omitempty"`
	CostAvoided  float64          `json:"cost_avoided"`
	MinutesSaved int              `json:"minutes_saved"`
	TTSFallbacks int              `json:"tts_fallbacks"`
	DurationMS   int64            `json:"duration_ms"`
	Totals       aggregate.Totals `json:"totals"`
}

// Publisher is a simulator observer that publishes phase changes and
// completed calls.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	last    phase.Phase
	lastSeq uint64
}

func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger, last: phase.Idle}
}

// Connect dials NATS with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (p *Publisher) PhaseSubject() string { return p.prefix + ".phase" }

func (p *Publisher) CompletedSubject() string { return p.prefix + ".calls.completed" }

// OnSnapshot publishes a phase event when the phase differs from the last
// one seen. Snapshots can arrive out of order from different goroutines, so
// any with a sequence number at or below the newest seen are dropped.
func (p *Publisher) OnSnapshot(s simulator.Snapshot) {
	p.mu.Lock()
	if s.Seq <= p.lastSeq {
		p.mu.Unlock()
		return
	}
	p.lastSeq = s.Seq
	prev := p.last
	if s.Phase == prev {
		p.mu.Unlock()
		return
	}
	p.last = s.Phase
	p.mu.Unlock()

	ev := PhaseEvent{Phase: s.Phase, Previous: prev, At: s.At}
	if s.Session != nil {
		ev.SessionID = s.Session.ID
		ev.Escalated = s.Session.Escalated
		ev.Reason = s.Session.EscalationReason
		ev.Confidence = s.Session.ConfidenceScore
	}
	p.publish(p.PhaseSubject(), ev)
}

func (p *Publisher) OnCallCompleted(out simulator.Outcome) {
	p.publish(p.CompletedSubject(), CallEvent{
		SessionID:    out.SessionID,
		TemplateName: out.TemplateName,
		Intent:       out.Intent,
		EdgeCase:     string(out.EdgeCase),
		Branch:       string(out.Branch),
		Confidence:   out.Confidence,
		Escalated:    out.Escalated,
		Reason:       out.Reason,
		CostAvoided:  out.CostAvoided,
		MinutesSaved: out.MinutesSaved,
		TTSFallbacks: out.TTSFallbacks,
		DurationMS:   out.Duration.Milliseconds(),
		Totals:       out.Totals,
	})
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("encode event failed", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}
