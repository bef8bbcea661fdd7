// Package script holds the dialogue templates played by the simulator and
// the rules for picking one to match a scenario.
package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/scenario"
)

type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAI     Speaker = "ai"
)

// Branch records which narrative a template follows.
type Branch string

const (
	BranchHappy      Branch = "happy"
	BranchRecovered  Branch = "recovered"
	BranchUnresolved Branch = "unresolved"
)

var ErrUnknownEdgeCase = errors.New("unknown edge case")

type Line struct {
	Speaker Speaker     `json:"speaker" yaml:"speaker"`
	Text    string      `json:"text" yaml:"text"`
	Phase   phase.Phase `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// ConfidenceRange is an inclusive score range.
type ConfidenceRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r ConfidenceRange) Contains(v int) bool { return v >= r.Min && v <= r.Max }

type Template struct {
	Name       string              `json:"name"`
	Intent     string              `json:"intent"`
	CallerType scenario.CallerType `json:"caller_type"`
	Confidence ConfidenceRange     `json:"confidence_range"`
	Lines      []Line              `json:"lines"`
	Branch     Branch              `json:"branch"`
	EdgeCase   scenario.EdgeCase   `json:"edge_case"`
}

// HasPhase reports whether any line is tagged with p.
func (t Template) HasPhase(p phase.Phase) bool {
	for _, l := range t.Lines {
		if l.Phase == p {
			return true
		}
	}
	return false
}

// HasEscalation reports whether the narrative itself hands off to a human.
func (t Template) HasEscalation() bool { return t.HasPhase(phase.Escalation) }

// NextPhase returns the tag of the line after index i, or "".
func (t Template) NextPhase(i int) phase.Phase {
	if i+1 >= len(t.Lines) {
		return ""
	}
	return t.Lines[i+1].Phase
}

// Phases expands the template into the full phase walk it produces.
func (t Template) Phases() []phase.Phase {
	var out []phase.Phase
	clean := t.EdgeCase == "" || t.EdgeCase == scenario.EdgeNone
	for i, l := range t.Lines {
		if l.Phase == "" {
			continue
		}
		for _, s := range phase.Expand(phase.DefaultTimings(), l.Phase, t.NextPhase(i), clean) {
			if s.Phase != "" {
				out = append(out, s.Phase)
			}
		}
	}
	return out
}

// Validate dry-runs the template through a phase machine and checks that it
// can be completed.
func Validate(t Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(t.Intent) == "" {
		return fmt.Errorf("template %q: intent is required", t.Name)
	}
	if t.CallerType != scenario.CallerProvider && t.CallerType != scenario.CallerMember {
		return fmt.Errorf("template %q: caller type %q is invalid", t.Name, t.CallerType)
	}
	if t.Confidence.Min < 0 || t.Confidence.Max > 100 || t.Confidence.Min > t.Confidence.Max {
		return fmt.Errorf("template %q: confidence range [%d,%d] is invalid", t.Name, t.Confidence.Min, t.Confidence.Max)
	}
	if len(t.Lines) == 0 {
		return fmt.Errorf("template %q: no lines", t.Name)
	}
	for i, l := range t.Lines {
		if l.Speaker != SpeakerCaller && l.Speaker != SpeakerAI {
			return fmt.Errorf("template %q line %d: speaker %q is invalid", t.Name, i, l.Speaker)
		}
		if strings.TrimSpace(l.Text) == "" {
			return fmt.Errorf("template %q line %d: text is empty", t.Name, i)
		}
		if l.Phase == phase.Idle || l.Phase == phase.Resolved || l.Phase == phase.ConfidenceCheck {
			return fmt.Errorf("template %q line %d: phase %q cannot be scripted", t.Name, i, l.Phase)
		}
	}

	m := phase.NewMachine()
	for _, p := range t.Phases() {
		if err := m.Advance(p); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}
	if m.Current() != phase.Escalation && !m.CanAdvance(phase.ConfidenceCheck) {
		return fmt.Errorf("template %q: ends in %s and cannot reach %s", t.Name, m.Current(), phase.ConfidenceCheck)
	}
	return nil
}

// Blueprint is a happy-path template with identity placeholders. Supported
// placeholders: {provider_name} {npi} {member_id} {dob} {plan} {claim_id}
// {pa_id}.
type Blueprint struct {
	Name       string              `json:"name" yaml:"name"`
	Intent     string              `json:"intent" yaml:"intent"`
	CallerType scenario.CallerType `json:"caller_type" yaml:"caller_type"`
	Confidence ConfidenceRange     `json:"confidence" yaml:"confidence"`
	Lines      []Line              `json:"lines" yaml:"lines"`
}

// Render fills the placeholders from sc.
func (b Blueprint) Render(sc scenario.Scenario) Template {
	r := strings.NewReplacer(
		"{provider_name}", sc.ProviderName,
		"{npi}", sc.NPI,
		"{member_id}", sc.MemberID,
		"{dob}", sc.DOB,
		"{plan}", sc.PlanLabel,
		"{claim_id}", sc.ClaimID,
		"{pa_id}", sc.PriorAuthID,
	)
	lines := make([]Line, len(b.Lines))
	for i, l := range b.Lines {
		lines[i] = Line{Speaker: l.Speaker, Text: r.Replace(l.Text), Phase: l.Phase}
	}
	return Template{
		Name:       b.Name,
		Intent:     b.Intent,
		CallerType: b.CallerType,
		Confidence: b.Confidence,
		Lines:      lines,
		Branch:     BranchHappy,
		EdgeCase:   scenario.EdgeNone,
	}
}
