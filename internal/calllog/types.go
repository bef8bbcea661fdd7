package calllog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("call record not found")

// Line is one redacted transcript line.
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Phase   string `json:"phase,omitempty"`
}

// Record stores one completed call. Identifiers are masked and transcript
// text is PHI-redacted before it reaches a store.
type Record struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	TemplateName     string    `json:"template_name"`
	Intent           string    `json:"intent"`
	CallerType       string    `json:"caller_type"`
	EdgeCase         string    `json:"edge_case"`
	Branch           string    `json:"branch"`
	NPI              string    `json:"npi"`
	MemberID         string    `json:"member_id"`
	Confidence       int       `json:"confidence"`
	Escalated        bool      `json:"escalated"`
	EscalationReason string    `json:"escalation_reason,omitempty"`
	CostAvoided      float64   `json:"cost_avoided"`
	MinutesSaved     int       `json:"minutes_saved"`
	TTSFallbacks     int       `json:"tts_fallbacks"`
	DurationMS       int64     `json:"duration_ms"`
	Transcript       []Line    `json:"transcript"`
	PHIRedacted      bool      `json:"phi_redacted"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store persists and retrieves completed calls.
type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
