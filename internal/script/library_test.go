package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
)

func testScenario(edge scenario.EdgeCase) scenario.Scenario {
	return scenario.Scenario{
		CallerType:   scenario.CallerProvider,
		NPI:          "1334567890",
		ProviderName: "Summit Health Partners",
		MemberID:     "HLT-4821937",
		DOB:          "07/08/1992",
		PlanLabel:    "Aetna HMO Select",
		ClaimID:      "CLM-48213",
		PriorAuthID:  "PA-482139",
		EdgeCase:     edge,
	}
}

func TestBuiltinTemplatesValidate(t *testing.T) {
	lib := NewLibrary(nil)
	for _, b := range lib.Blueprints() {
		t.Run(b.Name, func(t *testing.T) {
			require.NoError(t, Validate(b.Render(testScenario(scenario.EdgeNone))))
		})
	}
	for _, edge := range scenario.EdgeCases[1:] {
		for _, ok := range []bool{true, false} {
			tpl, err := lib.Build(edge, testScenario(edge), ok)
			require.NoError(t, err)
			require.NoError(t, Validate(tpl), "%s retry=%v", edge, ok)
		}
	}
}

func TestRenderFillsPlaceholders(t *testing.T) {
	lib := NewLibrary(nil)
	tpl, ok := lib.Named("Benefits Verification", testScenario(scenario.EdgeNone))
	require.True(t, ok)

	assert.Equal(t, "This is Summit Health Partners calling to verify benefits.", tpl.Lines[0].Text)
	assert.Contains(t, tpl.Lines[7].Text, "Aetna HMO Select")
	for _, l := range tpl.Lines {
		assert.NotContains(t, l.Text, "{")
	}
	assert.Equal(t, BranchHappy, tpl.Branch)
}

func TestSelectCleanCallUsesCallerPool(t *testing.T) {
	lib := NewLibrary(nil)

	sc := testScenario(scenario.EdgeNone)
	sel, err := lib.Select(sc, random.NewScripted(nil).WithInts(0), 0.6)
	require.NoError(t, err)
	assert.Equal(t, "Benefits Verification", sel.Template.Name)
	assert.False(t, sel.RetrySucceeds)

	sc.CallerType = scenario.CallerMember
	sel, err = lib.Select(sc, random.NewScripted(nil).WithInts(1), 0.6)
	require.NoError(t, err)
	assert.Equal(t, "ID Card Replacement", sel.Template.Name)
	assert.Equal(t, scenario.CallerMember, sel.Template.CallerType)
}

func TestSelectEdgeCaseDrawsRetryBranch(t *testing.T) {
	lib := NewLibrary(nil)
	sc := testScenario(scenario.EdgeWrongNPI)

	sel, err := lib.Select(sc, random.NewScripted(nil, 0.59), 0.6)
	require.NoError(t, err)
	assert.True(t, sel.RetrySucceeds)
	assert.Equal(t, BranchRecovered, sel.Template.Branch)
	assert.False(t, sel.Template.HasEscalation())

	sel, err = lib.Select(sc, random.NewScripted(nil, 0.6), 0.6)
	require.NoError(t, err)
	assert.False(t, sel.RetrySucceeds)
	assert.Equal(t, BranchUnresolved, sel.Template.Branch)
	assert.True(t, sel.Template.HasEscalation())
}

func TestClaimNotFoundAlwaysUnresolved(t *testing.T) {
	lib := NewLibrary(nil)
	sel, err := lib.Select(testScenario(scenario.EdgeClaimNotFound), random.NewScripted(nil, 0.0), 0.6)
	require.NoError(t, err)
	assert.False(t, sel.RetrySucceeds)
	assert.True(t, sel.Template.HasEscalation())
	assert.Contains(t, sel.Template.Lines[5].Text, "CLM-48213")
}

func TestUnresolvedBranchesEscalateAndScoreLower(t *testing.T) {
	lib := NewLibrary(nil)
	for _, edge := range []scenario.EdgeCase{scenario.EdgeWrongNPI, scenario.EdgeInvalidMemberID, scenario.EdgeDOBMismatch, scenario.EdgeAPITimeout} {
		recovered, err := lib.Build(edge, testScenario(edge), true)
		require.NoError(t, err)
		failed, err := lib.Build(edge, testScenario(edge), false)
		require.NoError(t, err)

		assert.True(t, failed.HasEscalation(), edge)
		assert.False(t, recovered.HasEscalation(), edge)
		assert.Greater(t, recovered.Confidence.Min, failed.Confidence.Min, edge)
		assert.Greater(t, recovered.Confidence.Max, failed.Confidence.Max, edge)
	}
}

func TestWrongNPIUnresolvedPhases(t *testing.T) {
	tpl, err := NewLibrary(nil).Build(scenario.EdgeWrongNPI, testScenario(scenario.EdgeWrongNPI), false)
	require.NoError(t, err)
	assert.Equal(t, []phase.Phase{
		phase.Awaiting, phase.ProviderVerifying, phase.ProviderFailed, phase.ProviderRetry, phase.Escalation,
	}, tpl.Phases())
}

func TestAPITimeoutRecoveredPhases(t *testing.T) {
	tpl, err := NewLibrary(nil).Build(scenario.EdgeAPITimeout, testScenario(scenario.EdgeAPITimeout), true)
	require.NoError(t, err)
	assert.Equal(t, []phase.Phase{
		phase.Awaiting, phase.ProviderVerifying, phase.ProviderVerified, phase.MemberVerifying,
		phase.DataRetrieving, phase.DataTimeout, phase.DataRetry, phase.DataRetrieved, phase.ResponseReady,
	}, tpl.Phases())
}

func TestBuildUnknownEdgeCase(t *testing.T) {
	_, err := NewLibrary(nil).Build("gremlins", testScenario(scenario.EdgeNone), true)
	require.ErrorIs(t, err, ErrUnknownEdgeCase)
}

func TestValidateRejectsBrokenTemplates(t *testing.T) {
	base := func() Template {
		tpl, _ := NewLibrary(nil).Named("Claim Status", testScenario(scenario.EdgeNone))
		return tpl
	}

	tpl := base()
	tpl.Lines[2].Phase = phase.ResponseReady
	tpl.Lines[3].Phase = phase.ProviderVerified
	assert.ErrorIs(t, Validate(tpl), phase.ErrInvalidTransition)

	tpl = base()
	tpl.Lines = append(tpl.Lines, ai("Done.", phase.Resolved))
	assert.Error(t, Validate(tpl))

	tpl = base()
	tpl.Confidence = ConfidenceRange{Min: 95, Max: 90}
	assert.Error(t, Validate(tpl))

	tpl = base()
	tpl.Lines[1].Speaker = "narrator"
	assert.Error(t, Validate(tpl))
}

const extraYAML = `
templates:
  - name: Referral Status
    intent: Referral Status
    caller_type: Provider
    confidence: {min: 87, max: 93}
    lines:
      - speaker: caller
        text: "This is {provider_name} following up on a referral."
        phase: awaiting
      - speaker: ai
        text: "May I have your NPI?"
      - speaker: caller
        text: "NPI {npi}."
        phase: provider-verifying
      - speaker: ai
        text: "Provider verified. The referral for {member_id} was approved."
        phase: response-ready
`

func TestParseTemplates(t *testing.T) {
	bps, err := ParseTemplates([]byte(extraYAML))
	require.NoError(t, err)
	require.Len(t, bps, 1)
	assert.Equal(t, "Referral Status", bps[0].Name)
	assert.Equal(t, ConfidenceRange{Min: 87, Max: 93}, bps[0].Confidence)
	assert.Equal(t, phase.ProviderVerifying, bps[0].Lines[2].Phase)
}

func TestParseTemplatesRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"unknown phase":  "templates:\n  - {name: a, intent: a, caller_type: Provider, confidence: {min: 1, max: 2}, lines: [{speaker: ai, text: hi, phase: warming}]}\n",
		"bad caller":     "templates:\n  - {name: a, intent: a, caller_type: Robot, confidence: {min: 1, max: 2}, lines: [{speaker: ai, text: hi}]}\n",
		"missing lines":  "templates:\n  - {name: a, intent: a, caller_type: Member, confidence: {min: 1, max: 2}}\n",
		"range too high": "templates:\n  - {name: a, intent: a, caller_type: Member, confidence: {min: 1, max: 101}, lines: [{speaker: ai, text: hi}]}\n",
		"not yaml":       "templates: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTemplates([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSetExtrasExtendsPoolAndRejectsDuplicates(t *testing.T) {
	lib := NewLibrary(nil)
	bps, err := ParseTemplates([]byte(extraYAML))
	require.NoError(t, err)
	require.NoError(t, lib.SetExtras(bps))
	assert.Contains(t, lib.Names(), "Referral Status")

	sc := testScenario(scenario.EdgeNone)
	sel, err := lib.Select(sc, random.NewScripted(nil).WithInts(4), 0.6)
	require.NoError(t, err)
	assert.Equal(t, "Referral Status", sel.Template.Name)

	dup := bps[0]
	dup.Name = "Claim Status"
	assert.Error(t, lib.SetExtras([]Blueprint{dup}))
	assert.Contains(t, lib.Names(), "Referral Status", "failed install keeps the previous extras")
}

func TestWatchReloadsTemplateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates: []\n"), 0o644))

	lib := NewLibrary(nil)
	require.NoError(t, lib.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx, path, 20*time.Millisecond))

	require.NoError(t, os.WriteFile(path, []byte(extraYAML), 0o644))
	require.Eventually(t, func() bool {
		for _, n := range lib.Names() {
			if n == "Referral Status" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}
