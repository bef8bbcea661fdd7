// Package phase models the call-processing pipeline as an explicit state
// machine with ordered stages and bounded retry sub-paths.
package phase

import "fmt"

type Phase string

const (
	Idle               Phase = "idle"
	Awaiting           Phase = "awaiting"
	ProviderVerifying  Phase = "provider-verifying"
	ProviderFailed     Phase = "provider-failed"
	ProviderRetry      Phase = "provider-retry"
	ProviderVerified   Phase = "provider-verified"
	MemberVerifying    Phase = "member-verifying"
	MemberFailed       Phase = "member-failed"
	DOBMismatch        Phase = "dob-mismatch"
	MemberRetry        Phase = "member-retry"
	MemberVerified     Phase = "member-verified"
	IntentClassifying  Phase = "intent-classifying"
	IntentClassified   Phase = "intent-classified"
	DataRetrieving     Phase = "data-retrieving"
	DataTimeout        Phase = "data-timeout"
	DataRetry          Phase = "data-retry"
	DataRetrieved      Phase = "data-retrieved"
	ResponseGenerating Phase = "response-generating"
	ResponseReady      Phase = "response-ready"
	ConfidenceCheck    Phase = "confidence-check"
	Resolved           Phase = "resolved"
	Escalation         Phase = "escalation"
)

// rank orders the pipeline. Failure branches sit between the verifying and
// verified stages they belong to, so every legal walk is non-decreasing.
// Alternatives share a rank and exclude each other.
var rank = map[Phase]int{
	Idle:               0,
	Awaiting:           1,
	ProviderVerifying:  2,
	ProviderFailed:     3,
	ProviderRetry:      4,
	ProviderVerified:   5,
	MemberVerifying:    6,
	MemberFailed:       7,
	DOBMismatch:        7,
	MemberRetry:        8,
	MemberVerified:     9,
	IntentClassifying:  10,
	IntentClassified:   11,
	DataRetrieving:     12,
	DataTimeout:        13,
	DataRetry:          14,
	DataRetrieved:      15,
	ResponseGenerating: 16,
	ResponseReady:      17,
	ConfidenceCheck:    18,
	Resolved:           19,
	Escalation:         19,
}

// predecessors pins phases that may only follow specific phases.
var predecessors = map[Phase][]Phase{
	ProviderFailed: {ProviderVerifying},
	ProviderRetry:  {ProviderFailed},
	MemberFailed:   {MemberVerifying},
	DOBMismatch:    {MemberVerifying},
	MemberRetry:    {MemberFailed, DOBMismatch},
	DataTimeout:    {DataRetrieving},
	DataRetry:      {DataTimeout},
	Resolved:       {ConfidenceCheck},
	// Escalation comes after confidence-check or from a verification,
	// failure, retry or data stage that gave up.
	Escalation: {
		ProviderVerifying, ProviderFailed, ProviderRetry,
		MemberVerifying, MemberFailed, DOBMismatch, MemberRetry,
		DataRetrieving, DataTimeout, DataRetry,
		ConfidenceCheck,
	},
}

// All returns every phase in pipeline order, idle first.
func All() []Phase {
	return []Phase{
		Idle, Awaiting,
		ProviderVerifying, ProviderFailed, ProviderRetry, ProviderVerified,
		MemberVerifying, MemberFailed, DOBMismatch, MemberRetry, MemberVerified,
		IntentClassifying, IntentClassified,
		DataRetrieving, DataTimeout, DataRetry, DataRetrieved,
		ResponseGenerating, ResponseReady, ConfidenceCheck,
		Resolved, Escalation,
	}
}

// Parse converts a wire name into a Phase.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if _, ok := rank[p]; !ok {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Rank returns the pipeline position of p, or -1 for unknown phases.
func (p Phase) Rank() int {
	r, ok := rank[p]
	if !ok {
		return -1
	}
	return r
}

func (p Phase) IsTerminal() bool { return p == Resolved || p == Escalation }

// IsRetry reports whether p is one of the retry stages.
func (p Phase) IsRetry() bool {
	return p == ProviderRetry || p == MemberRetry || p == DataRetry
}

// IsFailure reports whether p is a failure branch entry.
func (p Phase) IsFailure() bool {
	return p == ProviderFailed || p == MemberFailed || p == DOBMismatch || p == DataTimeout
}
