package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
)

func sc(edge scenario.EdgeCase) scenario.Scenario {
	return scenario.Scenario{
		CallerType:  scenario.CallerProvider,
		MemberID:    "MBR-1234567",
		PlanLabel:   "Cigna OAP Advantage",
		ClaimID:     "CLM-55555",
		PriorAuthID: "PA-777777",
		EdgeCase:    edge,
	}
}

func TestPlanPerIntent(t *testing.T) {
	src := random.New(5)
	cases := map[string][]string{
		"Benefits Verification":      {SourceDataLake, SourceClaims},
		"Eligibility Verification":   {SourceDataLake, SourceProviderDir},
		"Claim Status":               {SourceClaims, SourceDataLake},
		"Claims Status":              {SourceClaims, SourceDataLake},
		"Prior Authorization Status": {SourcePriorAuth, SourceDataLake},
		"ID Card Replacement":        {SourceDataLake},
		"Deductible / OOP Inquiry":   {SourceDataLake, SourceClaims},
		"Something Else":             {SourceDataLake},
	}
	for intent, sources := range cases {
		calls := Plan(intent, sc(scenario.EdgeNone), src)
		require.Len(t, calls, len(sources), intent)
		for i, c := range calls {
			assert.Equal(t, sources[i], c.Source, intent)
			assert.Equal(t, 200, c.StatusCode)
			assert.Positive(t, c.LatencyMS)
			assert.False(t, c.Retryable())
		}
	}
}

func TestPlanEdgeCases(t *testing.T) {
	src := random.New(5)

	calls := Plan("Claim Status", sc(scenario.EdgeClaimNotFound), src)
	require.Len(t, calls, 1)
	assert.Equal(t, 404, calls[0].StatusCode)
	assert.Contains(t, calls[0].Endpoint, "CLM-55555")
	assert.False(t, calls[0].Retryable())

	calls = Plan("Eligibility Verification", sc(scenario.EdgeAPITimeout), src)
	require.Len(t, calls, 1)
	assert.Equal(t, Call{
		Endpoint:   "GET /eligibility?member_id=MBR-1234567",
		Source:     SourceDataLake,
		LatencyMS:  600,
		StatusCode: 504,
		IsTimeout:  true,
	}, calls[0])
	assert.True(t, calls[0].Retryable())
}

func TestRetryOf(t *testing.T) {
	failed := Plan("Eligibility Verification", sc(scenario.EdgeAPITimeout), random.New(1))[0]
	got, ok := FirstRetryable([]Call{{StatusCode: 200}, failed})
	require.True(t, ok)

	retry := RetryOf(got, random.New(1))
	assert.Equal(t, failed.Endpoint, retry.Endpoint)
	assert.Equal(t, failed.Source, retry.Source)
	assert.Equal(t, 200, retry.StatusCode)
	assert.True(t, retry.IsRetry)
	assert.False(t, retry.IsTimeout)
	assert.GreaterOrEqual(t, retry.LatencyMS, 200)
	assert.LessOrEqual(t, retry.LatencyMS, 350)

	_, ok = FirstRetryable([]Call{{StatusCode: 200}, {StatusCode: 404}})
	assert.False(t, ok)
}

func TestRespond(t *testing.T) {
	src := random.New(9)
	assert.Nil(t, Respond("Eligibility Verification", sc(scenario.EdgeAPITimeout), src))

	nf := Respond("Claim Status", sc(scenario.EdgeClaimNotFound), src)
	require.NotNil(t, nf)
	assert.Equal(t, "Not Located", nf.Fields[0].Value)

	for _, intent := range []string{
		"Benefits Verification", "Eligibility Verification", "Claim Status", "Claims Status",
		"Prior Authorization Status", "ID Card Replacement", "Deductible / OOP Inquiry", "Other",
	} {
		resp := Respond(intent, sc(scenario.EdgeNone), src)
		require.NotNil(t, resp, intent)
		assert.NotEmpty(t, resp.Fields, intent)
		assert.NotEmpty(t, resp.Summary, intent)
	}

	elig := Respond("Eligibility Verification", sc(scenario.EdgeNone), src)
	assert.True(t, strings.Contains(elig.Summary, "Cigna OAP Advantage"))
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$0", Dollars(0))
	assert.Equal(t, "$999", Dollars(999))
	assert.Equal(t, "$1,000", Dollars(1000))
	assert.Equal(t, "$2,000", Dollars(2000))
	assert.Equal(t, "$1,234,567", Dollars(1234567))
	assert.Equal(t, "-$4,200", Dollars(-4200))
}
