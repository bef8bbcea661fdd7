// Package scenario generates the randomized identity and edge-case input for
// one simulated call.
package scenario

import (
	"fmt"
	"math"
	"strconv"

	"github.com/reflecthealth/callsim/internal/random"
)

type CallerType string

const (
	CallerProvider CallerType = "Provider"
	CallerMember   CallerType = "Member"
)

type EdgeCase string

const (
	EdgeNone            EdgeCase = "none"
	EdgeWrongNPI        EdgeCase = "wrong_npi"
	EdgeInvalidMemberID EdgeCase = "invalid_member_id"
	EdgeDOBMismatch     EdgeCase = "dob_mismatch"
	EdgeClaimNotFound   EdgeCase = "claim_not_found"
	EdgeAPITimeout      EdgeCase = "api_timeout"
)

// EdgeCases lists every edge case in table order.
var EdgeCases = []EdgeCase{
	EdgeNone,
	EdgeWrongNPI,
	EdgeInvalidMemberID,
	EdgeDOBMismatch,
	EdgeClaimNotFound,
	EdgeAPITimeout,
}

// Valid reports whether e is a known edge case.
func (e EdgeCase) Valid() bool {
	for _, known := range EdgeCases {
		if e == known {
			return true
		}
	}
	return false
}

// Scenario is the immutable input of one call.
type Scenario struct {
	CallerType   CallerType `json:"caller_type"`
	NPI          string     `json:"npi"`
	ProviderName string     `json:"provider_name"`
	MemberID     string     `json:"member_id"`
	DOB          string     `json:"dob"`
	PlanLabel    string     `json:"plan_label"`
	ClaimID      string     `json:"claim_id"`
	PriorAuthID  string     `json:"prior_auth_id"`
	EdgeCase     EdgeCase   `json:"edge_case"`
}

var (
	providerNames = []string{
		"Northgate Orthopedic",
		"Lakeside Medical Group",
		"Summit Health Partners",
		"Valley Cardiology Associates",
		"Coastal Family Medicine",
		"Heritage Internal Medicine",
	}
	npis           = []string{"1456789123", "1982345671", "1334567890", "1567890234", "1890123456", "1223456789"}
	memberPrefixes = []string{"BCX", "MBR", "HLT", "CRX", "PLN"}
	dobs           = []string{"01/14/1986", "03/22/1974", "07/08/1992", "11/30/1968", "05/15/1983", "09/02/1995"}
	planLabels     = []string{
		"UHC Choice Plus PPO",
		"Blue Cross PPO Gold",
		"Aetna HMO Select",
		"Cigna OAP Advantage",
		"Anthem EPO Standard",
	}
)

// PlanLabels returns the plan label pool.
func PlanLabels() []string { return append([]string(nil), planLabels...) }

// EdgeWeight is one row of the cumulative edge-case table.
type EdgeWeight struct {
	EdgeCase EdgeCase `json:"edge_case"`
	Weight   float64  `json:"weight"`
}

// Policy holds the tunable draw parameters.
type Policy struct {
	EdgeCaseWeights []EdgeWeight
	// MemberCallerShare is the probability that a clean call is placed by a
	// member rather than a provider.
	MemberCallerShare float64
}

// DefaultPolicy returns the demo's stock tuning.
func DefaultPolicy() Policy {
	return Policy{
		EdgeCaseWeights: []EdgeWeight{
			{EdgeCase: EdgeNone, Weight: 0.70},
			{EdgeCase: EdgeWrongNPI, Weight: 0.08},
			{EdgeCase: EdgeInvalidMemberID, Weight: 0.08},
			{EdgeCase: EdgeDOBMismatch, Weight: 0.05},
			{EdgeCase: EdgeClaimNotFound, Weight: 0.05},
			{EdgeCase: EdgeAPITimeout, Weight: 0.04},
		},
		MemberCallerShare: 0.25,
	}
}

// Validate checks the policy once, at configuration time.
func (p Policy) Validate() error {
	if !(p.MemberCallerShare >= 0 && p.MemberCallerShare <= 1) {
		return fmt.Errorf("member caller share %v outside [0,1]", p.MemberCallerShare)
	}
	if len(p.EdgeCaseWeights) == 0 {
		return fmt.Errorf("edge case weights are empty")
	}
	total := 0.0
	seen := make(map[EdgeCase]bool, len(p.EdgeCaseWeights))
	for _, w := range p.EdgeCaseWeights {
		if !w.EdgeCase.Valid() {
			return fmt.Errorf("unknown edge case %q", w.EdgeCase)
		}
		if seen[w.EdgeCase] {
			return fmt.Errorf("duplicate weight for edge case %q", w.EdgeCase)
		}
		seen[w.EdgeCase] = true
		if !(w.Weight >= 0) || math.IsInf(w.Weight, 1) {
			return fmt.Errorf("invalid weight %v for edge case %q", w.Weight, w.EdgeCase)
		}
		total += w.Weight
	}
	if total <= 0 {
		return fmt.Errorf("edge case weights sum to zero")
	}
	return nil
}

// Generator draws scenarios from a random source.
type Generator struct {
	src    random.Source
	policy Policy
}

// NewGenerator returns a Generator. The policy is validated here so that
// Generate itself stays total.
func NewGenerator(src random.Source, policy Policy) (*Generator, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	policy.EdgeCaseWeights = append([]EdgeWeight(nil), policy.EdgeCaseWeights...)
	return &Generator{src: src, policy: policy}, nil
}

// Generate draws a complete Scenario. Draw order: identity fields, edge
// case, caller type.
func (g *Generator) Generate() Scenario {
	sc := Scenario{
		NPI:          random.Pick(g.src, npis),
		ProviderName: random.Pick(g.src, providerNames),
		MemberID:     MemberID(g.src),
		DOB:          random.Pick(g.src, dobs),
		PlanLabel:    random.Pick(g.src, planLabels),
		ClaimID:      ClaimID(g.src),
		PriorAuthID:  PriorAuthID(g.src),
	}
	sc.EdgeCase = g.SelectEdgeCase()
	sc.CallerType = CallerProvider
	if sc.EdgeCase == EdgeNone && random.Chance(g.src, g.policy.MemberCallerShare) {
		sc.CallerType = CallerMember
	}
	return sc
}

// SelectEdgeCase walks the cumulative weight table with one uniform draw.
func (g *Generator) SelectEdgeCase() EdgeCase {
	total := 0.0
	for _, w := range g.policy.EdgeCaseWeights {
		total += w.Weight
	}
	r := g.src.Float64() * total
	acc := 0.0
	for _, w := range g.policy.EdgeCaseWeights {
		acc += w.Weight
		if r < acc {
			return w.EdgeCase
		}
	}
	return g.policy.EdgeCaseWeights[len(g.policy.EdgeCaseWeights)-1].EdgeCase
}

// MemberID draws a member identifier such as "BCX-4821937".
func MemberID(src random.Source) string {
	return random.Pick(src, memberPrefixes) + "-" + strconv.Itoa(random.IntRange(src, 1000000, 9999999))
}

// ClaimID draws a claim identifier such as "CLM-48213".
func ClaimID(src random.Source) string {
	return "CLM-" + strconv.Itoa(random.IntRange(src, 10000, 99999))
}

// PriorAuthID draws a prior authorization identifier such as "PA-482139".
func PriorAuthID(src random.Source) string {
	return "PA-" + strconv.Itoa(random.IntRange(src, 100000, 999999))
}
