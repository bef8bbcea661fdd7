package escalation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/script"
)

func cleanTemplate(lo, hi int) script.Template {
	return script.Template{
		Name:       "Eligibility Verification",
		Intent:     "Eligibility Verification",
		CallerType: scenario.CallerProvider,
		Confidence: script.ConfidenceRange{Min: lo, Max: hi},
		Lines: []script.Line{
			{Speaker: script.SpeakerCaller, Text: "Hi.", Phase: phase.Awaiting},
			{Speaker: script.SpeakerAI, Text: "Coverage is active.", Phase: phase.ResponseReady},
		},
	}
}

func escalatingTemplate() script.Template {
	tpl := cleanTemplate(68, 76)
	tpl.Lines = append(tpl.Lines, script.Line{Speaker: script.SpeakerAI, Text: "Transferring.", Phase: phase.Escalation})
	return tpl
}

func newEngine(t *testing.T, src random.Source) *Engine {
	t.Helper()
	e, err := NewEngine(src, DefaultPolicy())
	require.NoError(t, err)
	return e
}

func TestScoreWithinRangeInclusive(t *testing.T) {
	e := newEngine(t, random.New(11))
	r := script.ConfidenceRange{Min: 85, Max: 91}
	seen := map[int]bool{}
	for i := 0; i < 3000; i++ {
		v := e.Score(r)
		require.True(t, r.Contains(v), "score %d outside %v", v, r)
		seen[v] = true
	}
	assert.True(t, seen[85])
	assert.True(t, seen[91])
}

func TestDecideCleanCallResolves(t *testing.T) {
	// score 90+3=93, ambiguity draw 0.5 >= 0.12
	src := random.NewScripted(nil, 0.5).WithInts(3)
	d := newEngine(t, src).Decide(cleanTemplate(90, 95), scenario.EdgeNone, 85)

	assert.Equal(t, 93, d.Confidence)
	assert.False(t, d.Escalated)
	assert.Empty(t, d.Reason)
}

func TestDecideBelowThreshold(t *testing.T) {
	src := random.NewScripted(nil, 0.99).WithInts(0)
	d := newEngine(t, src).Decide(cleanTemplate(90, 95), scenario.EdgeNone, 92)

	assert.Equal(t, 90, d.Confidence)
	assert.True(t, d.Escalated)
	assert.True(t, d.BelowThreshold)
	assert.Equal(t, ReasonLowConfidence, d.Reason)
}

func TestDecideForcedAmbiguityRates(t *testing.T) {
	// High score uses the base rate.
	d := newEngine(t, random.NewScripted(nil, 0.11).WithInts(0)).Decide(cleanTemplate(90, 96), scenario.EdgeNone, 0)
	assert.True(t, d.Forced)
	assert.Equal(t, ReasonAmbiguity, d.Reason)

	d = newEngine(t, random.NewScripted(nil, 0.13).WithInts(0)).Decide(cleanTemplate(90, 96), scenario.EdgeNone, 0)
	assert.False(t, d.Escalated)

	// Under the cutoff the higher rate applies.
	d = newEngine(t, random.NewScripted(nil, 0.24).WithInts(0)).Decide(cleanTemplate(85, 91), scenario.EdgeNone, 0)
	assert.Equal(t, 85, d.Confidence)
	assert.True(t, d.Forced)
}

func TestDecideAmbiguityOutranksThreshold(t *testing.T) {
	d := newEngine(t, random.NewScripted(nil, 0.0).WithInts(0)).Decide(cleanTemplate(85, 91), scenario.EdgeNone, 99)
	assert.True(t, d.Forced)
	assert.True(t, d.BelowThreshold)
	assert.Equal(t, ReasonAmbiguity, d.Reason)
}

func TestDecideScriptReasonWins(t *testing.T) {
	cases := map[scenario.EdgeCase]string{
		scenario.EdgeWrongNPI:        ReasonProviderVerification,
		scenario.EdgeInvalidMemberID: ReasonMemberVerification,
		scenario.EdgeDOBMismatch:     ReasonDOBVerification,
		scenario.EdgeClaimNotFound:   ReasonClaimNotFound,
		scenario.EdgeAPITimeout:      ReasonSystemTimeout,
	}
	for edge, want := range cases {
		d := newEngine(t, random.NewScripted(nil).WithInts(0)).Decide(escalatingTemplate(), edge, 100)
		assert.True(t, d.Escalated, edge)
		assert.True(t, d.InScript, edge)
		assert.False(t, d.Forced, "edge cases never draw ambiguity")
		assert.Equal(t, want, d.Reason, edge)
	}
}

func TestDecideEdgeCaseSkipsAmbiguityDraw(t *testing.T) {
	src := random.NewScripted(nil, 0.0).WithInts(0)
	d := newEngine(t, src).Decide(cleanTemplate(82, 88), scenario.EdgeWrongNPI, 50)
	assert.False(t, d.Escalated)
	assert.Equal(t, 0.0, src.Float64(), "the scripted float was not consumed")
}

func TestPolicyAndThresholdValidation(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	bad := DefaultPolicy()
	bad.AmbiguityRate = -0.1
	assert.Error(t, bad.Validate())
	bad = DefaultPolicy()
	bad.AmbiguityCutoff = 101
	assert.Error(t, bad.Validate())

	assert.NoError(t, ValidateThreshold(0))
	assert.NoError(t, ValidateThreshold(100))
	assert.Error(t, ValidateThreshold(-1))
	assert.Error(t, ValidateThreshold(100.5))
	assert.Error(t, ValidateThreshold(math.NaN()))
	assert.Error(t, ValidateThreshold(math.Inf(1)))

	bad = DefaultPolicy()
	bad.LowConfidenceAmbiguityRate = math.NaN()
	assert.Error(t, bad.Validate())

	_, err := NewEngine(nil, DefaultPolicy())
	assert.Error(t, err)
}
