package session

import (
	"time"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/retrieval"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/script"
)

type Status string

const (
	StatusLive      Status = "live"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// TranscriptLine is one spoken line as shown to observers.
type TranscriptLine struct {
	ID       string         `json:"id"`
	Index    int            `json:"index"`
	Speaker  script.Speaker `json:"speaker"`
	Text     string         `json:"text"`
	Phase    phase.Phase    `json:"phase,omitempty"`
	Complete bool           `json:"complete"`
	At       time.Time      `json:"at"`
}

// Session is the observable state of one simulated call.
type Session struct {
	ID           string              `json:"session_id"`
	Status       Status              `json:"status"`
	CallerType   scenario.CallerType `json:"caller_type"`
	NPI          string              `json:"npi"`
	ProviderName string              `json:"provider_name"`
	MemberID     string              `json:"member_id"`
	DOB          string              `json:"dob"`
	PlanLabel    string              `json:"plan_label"`
	ClaimID      string              `json:"claim_id,omitempty"`
	EdgeCaseType scenario.EdgeCase   `json:"edge_case_type"`

	TemplateName       string                        `json:"template_name"`
	Intent             string                        `json:"intent"`
	ConfidenceScore    int                           `json:"confidence_score"`
	APICalls           []retrieval.Call              `json:"api_calls"`
	StructuredResponse *retrieval.StructuredResponse `json:"structured_response,omitempty"`

	Escalated          bool   `json:"escalated"`
	EscalationReason   string `json:"escalation_reason"`
	ProviderVerified   bool   `json:"provider_verified"`
	MemberVerified     bool   `json:"member_verified"`
	ProviderConfidence int    `json:"provider_confidence"`
	MemberConfidence   int    `json:"member_confidence"`

	Phase      phase.Phase      `json:"phase"`
	Transcript []TranscriptLine `json:"transcript"`

	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// Final reports whether the escalation outcome is settled.
func (s *Session) Final() bool { return s.Phase.IsTerminal() }
