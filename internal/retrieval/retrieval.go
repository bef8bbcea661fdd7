// Package retrieval fabricates the backend calls and structured answers a
// simulated call displays.
package retrieval

import (
	"fmt"
	"strconv"

	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/reliability"
	"github.com/reflecthealth/callsim/internal/scenario"
)

const (
	SourceDataLake       = "Azure Data Lake"
	SourceClaims         = "Core Claims System"
	SourceProviderDir    = "Provider Directory Database"
	SourcePriorAuth      = "Prior Authorization System"
	timeoutLatencyMS     = 600
	retryLatencyMinMS    = 200
	retryLatencyMaxMS    = 350
	statusOK             = 200
	statusNotFound       = 404
	statusGatewayTimeout = 504
)

// Call is one simulated backend request.
type Call struct {
	Endpoint   string `json:"endpoint"`
	Source     string `json:"source"`
	LatencyMS  int    `json:"latency_ms"`
	StatusCode int    `json:"status_code"`
	IsTimeout  bool   `json:"is_timeout,omitempty"`
	IsRetry    bool   `json:"is_retry,omitempty"`
}

// Retryable reports whether the call failed in a way a retry can fix.
func (c Call) Retryable() bool {
	return c.IsTimeout || reliability.IsRetryableHTTPStatus(c.StatusCode)
}

// Plan builds the backend calls for intent before playback begins.
func Plan(intent string, sc scenario.Scenario, src random.Source) []Call {
	eligibility := func() Call {
		return Call{Endpoint: "GET /eligibility?member_id=" + sc.MemberID, Source: SourceDataLake, LatencyMS: random.IntRange(src, 200, 350), StatusCode: statusOK}
	}
	claimStatus := func(status int) Call {
		return Call{Endpoint: "GET /claim-status?claim_id=" + sc.ClaimID, Source: SourceClaims, LatencyMS: random.IntRange(src, 150, 300), StatusCode: status}
	}

	switch sc.EdgeCase {
	case scenario.EdgeClaimNotFound:
		return []Call{claimStatus(statusNotFound)}
	case scenario.EdgeAPITimeout:
		return []Call{{
			Endpoint:   "GET /eligibility?member_id=" + sc.MemberID,
			Source:     SourceDataLake,
			LatencyMS:  timeoutLatencyMS,
			StatusCode: statusGatewayTimeout,
			IsTimeout:  true,
		}}
	}

	switch intent {
	case "Claim Status", "Claims Status":
		return []Call{claimStatus(statusOK), eligibility()}
	case "Eligibility Verification":
		return []Call{
			eligibility(),
			{Endpoint: "GET /provider-verify", Source: SourceProviderDir, LatencyMS: random.IntRange(src, 80, 150), StatusCode: statusOK},
		}
	case "Prior Authorization Status":
		return []Call{
			{Endpoint: "GET /prior-auth-status?auth_id=" + sc.PriorAuthID, Source: SourcePriorAuth, LatencyMS: random.IntRange(src, 250, 400), StatusCode: statusOK},
			eligibility(),
		}
	case "Benefits Verification":
		return []Call{
			eligibility(),
			{Endpoint: "GET /benefits-schedule", Source: SourceClaims, LatencyMS: random.IntRange(src, 120, 200), StatusCode: statusOK},
		}
	case "ID Card Replacement":
		return []Call{
			{Endpoint: "GET /member-profile?member_id=" + sc.MemberID, Source: SourceDataLake, LatencyMS: random.IntRange(src, 150, 250), StatusCode: statusOK},
		}
	case "Deductible / OOP Inquiry":
		return []Call{
			{Endpoint: "GET /accumulator?member_id=" + sc.MemberID, Source: SourceDataLake, LatencyMS: random.IntRange(src, 180, 300), StatusCode: statusOK},
			{Endpoint: "GET /benefits-schedule?member_id=" + sc.MemberID, Source: SourceClaims, LatencyMS: random.IntRange(src, 120, 200), StatusCode: statusOK},
		}
	default:
		return []Call{eligibility()}
	}
}

// RetryOf returns the successful retry of failed.
func RetryOf(failed Call, src random.Source) Call {
	return Call{
		Endpoint:   failed.Endpoint,
		Source:     failed.Source,
		LatencyMS:  random.IntRange(src, retryLatencyMinMS, retryLatencyMaxMS),
		StatusCode: statusOK,
		IsRetry:    true,
	}
}

// FirstRetryable returns the first call a retry can recover.
func FirstRetryable(calls []Call) (Call, bool) {
	for _, c := range calls {
		if c.Retryable() {
			return c, true
		}
	}
	return Call{}, false
}

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// StructuredResponse is the answer panel shown alongside a call.
type StructuredResponse struct {
	Fields  []Field `json:"fields"`
	Summary string  `json:"summary"`
}

// Respond builds the structured answer for intent. Timeouts have none.
func Respond(intent string, sc scenario.Scenario, src random.Source) *StructuredResponse {
	switch sc.EdgeCase {
	case scenario.EdgeClaimNotFound:
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Claim", Value: "Not Located"},
				{Label: "Status", Value: "404 Not Found"},
			},
			Summary: "Unable to locate the specified claim in the system. Routing to agent.",
		}
	case scenario.EdgeAPITimeout:
		return nil
	}

	switch intent {
	case "Claim Status", "Claims Status":
		days := random.IntRange(src, 3, 7)
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Claim", Value: "#" + sc.ClaimID},
				{Label: "Status", Value: "Processing"},
				{Label: "Expected Completion", Value: strconv.Itoa(days) + " Business Days"},
			},
			Summary: fmt.Sprintf("Claim %s was received and is currently processing. Determination expected within five business days.", sc.ClaimID),
		}
	case "Eligibility Verification":
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Plan", Value: sc.PlanLabel},
				{Label: "Status", Value: "Active"},
				{Label: "Effective", Value: "01/01/2026"},
			},
			Summary: fmt.Sprintf("Eligibility confirmed. Coverage is active under the employer-sponsored %s. No lapse in coverage detected.", sc.PlanLabel),
		}
	case "Prior Authorization Status":
		return &StructuredResponse{
			Fields: []Field{
				{Label: "PA Request", Value: "#" + sc.PriorAuthID},
				{Label: "Status", Value: "Under Clinical Review"},
				{Label: "ETA", Value: "48 Hours"},
			},
			Summary: "PA request is under clinical review. All required clinical documentation has been received. Estimated determination within 48 hours.",
		}
	case "Benefits Verification":
		pct := random.IntRange(src, 50, 89)
		met := random.IntRange(src, 800, 1599)
		total := met * 100 / pct
		copay := random.IntRange(src, 20, 49)
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Plan", Value: sc.PlanLabel},
				{Label: "Copay", Value: fmt.Sprintf("$%d (Specialist)", copay)},
				{Label: "Deductible Met", Value: fmt.Sprintf("%d%% (%s / %s)", pct, Dollars(met), Dollars(total))},
			},
			Summary: fmt.Sprintf("Member is active. In-network specialist copay confirmed. Deductible: %d%% met. Coverage confirmed through 12/31/2026.", pct),
		}
	case "ID Card Replacement":
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Member", Value: sc.MemberID},
				{Label: "Card Status", Value: "Requested"},
				{Label: "Delivery", Value: "7-10 Business Days"},
			},
			Summary: "New ID card has been requested. Digital copy sent to email on file.",
		}
	case "Deductible / OOP Inquiry":
		met := random.IntRange(src, 600, 1799)
		const total = 2000
		remaining := random.IntRange(src, 2000, 4999)
		return &StructuredResponse{
			Fields: []Field{
				{Label: "Deductible Met", Value: Dollars(met) + " / " + Dollars(total)},
				{Label: "OOP Remaining", Value: Dollars(remaining)},
				{Label: "Plan Year", Value: "2026"},
			},
			Summary: fmt.Sprintf("Individual deductible: %s of %s met. Out-of-pocket maximum remaining: %s.", Dollars(met), Dollars(total), Dollars(remaining)),
		}
	default:
		return &StructuredResponse{
			Fields:  []Field{{Label: "Status", Value: "Processed"}},
			Summary: "Request has been processed successfully.",
		}
	}
}

// Dollars formats whole dollars with thousands separators, e.g. "$1,250".
func Dollars(n int) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + "$" + s
}
