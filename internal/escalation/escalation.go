// Package escalation scores a call and decides whether it is handed to a
// human agent.
package escalation

import (
	"fmt"

	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/script"
)

const (
	ReasonProviderVerification = "Provider Verification Failed"
	ReasonMemberVerification   = "Member Verification Failed"
	ReasonDOBVerification      = "DOB Verification Failed"
	ReasonClaimNotFound        = "Claim Not Found"
	ReasonSystemTimeout        = "System Timeout"
	ReasonAmbiguity            = "Ambiguity Detected"
	ReasonLowConfidence        = "Confidence Below Threshold"
)

// ScriptReason maps an edge case to the reason its failure narrative gives.
// Clean calls that still script an escalation fall back to the
// low-confidence reason.
func ScriptReason(edge scenario.EdgeCase) string {
	switch edge {
	case scenario.EdgeWrongNPI:
		return ReasonProviderVerification
	case scenario.EdgeInvalidMemberID:
		return ReasonMemberVerification
	case scenario.EdgeDOBMismatch:
		return ReasonDOBVerification
	case scenario.EdgeClaimNotFound:
		return ReasonClaimNotFound
	case scenario.EdgeAPITimeout:
		return ReasonSystemTimeout
	default:
		return ReasonLowConfidence
	}
}

// Policy holds the ambiguity injection tuning.
type Policy struct {
	// AmbiguityRate is the chance a clean call is routed to a human anyway.
	AmbiguityRate float64
	// LowConfidenceAmbiguityRate replaces AmbiguityRate when the score is
	// below AmbiguityCutoff.
	LowConfidenceAmbiguityRate float64
	AmbiguityCutoff            int
}

func DefaultPolicy() Policy {
	return Policy{
		AmbiguityRate:              0.12,
		LowConfidenceAmbiguityRate: 0.25,
		AmbiguityCutoff:            88,
	}
}

func (p Policy) Validate() error {
	if !within(p.AmbiguityRate, 0, 1) {
		return fmt.Errorf("ambiguity rate %v outside [0,1]", p.AmbiguityRate)
	}
	if !within(p.LowConfidenceAmbiguityRate, 0, 1) {
		return fmt.Errorf("low confidence ambiguity rate %v outside [0,1]", p.LowConfidenceAmbiguityRate)
	}
	if p.AmbiguityCutoff < 0 || p.AmbiguityCutoff > 100 {
		return fmt.Errorf("ambiguity cutoff %d outside [0,100]", p.AmbiguityCutoff)
	}
	return nil
}

// ValidateThreshold rejects confidence thresholds outside [0,100], NaN
// included.
func ValidateThreshold(threshold float64) error {
	if !within(threshold, 0, 100) {
		return fmt.Errorf("confidence threshold %v outside [0,100]", threshold)
	}
	return nil
}

// within is false for NaN, which fails every comparison.
func within(v, lo, hi float64) bool { return v >= lo && v <= hi }

// Decision is the scored outcome of one call.
type Decision struct {
	Confidence int    `json:"confidence"`
	Escalated  bool   `json:"escalated"`
	Reason     string `json:"reason"`
	// Forced marks an ambiguity escalation injected on a clean script.
	Forced bool `json:"forced"`
	// InScript marks a template whose narrative already escalates.
	InScript bool `json:"in_script"`
	// BelowThreshold marks a score under the configured threshold.
	BelowThreshold bool `json:"below_threshold"`
}

type Engine struct {
	src    random.Source
	policy Policy
}

func NewEngine(src random.Source, policy Policy) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{src: src, policy: policy}, nil
}

// Score draws a confidence uniformly from r, inclusive on both ends.
func (e *Engine) Score(r script.ConfidenceRange) int {
	return random.IntRange(e.src, r.Min, r.Max)
}

// Decide scores tpl and applies the escalation rule: the script escalates,
// or an ambiguity draw fires on a clean call, or the score is below
// threshold. Draw order is score first, then the ambiguity draw.
func (e *Engine) Decide(tpl script.Template, edge scenario.EdgeCase, threshold float64) Decision {
	d := Decision{
		Confidence: e.Score(tpl.Confidence),
		InScript:   tpl.HasEscalation(),
	}
	if edge == scenario.EdgeNone && !d.InScript {
		rate := e.policy.AmbiguityRate
		if d.Confidence < e.policy.AmbiguityCutoff {
			rate = e.policy.LowConfidenceAmbiguityRate
		}
		d.Forced = random.Chance(e.src, rate)
	}
	d.BelowThreshold = float64(d.Confidence) < threshold
	d.Escalated = d.InScript || d.Forced || d.BelowThreshold

	switch {
	case d.InScript:
		d.Reason = ScriptReason(edge)
	case d.Forced:
		d.Reason = ReasonAmbiguity
	case d.BelowThreshold:
		d.Reason = ReasonLowConfidence
	}
	return d
}
