package script

import (
	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/scenario"
)

func caller(text string, p phase.Phase) Line {
	return Line{Speaker: SpeakerCaller, Text: text, Phase: p}
}
func ai(text string, p phase.Phase) Line { return Line{Speaker: SpeakerAI, Text: text, Phase: p} }

const (
	wrongNPI      = "1999999999"
	wrongMemberID = "XXX-0000000"
	wrongDOB      = "06/15/1990"
)

func providerBlueprints() []Blueprint {
	return []Blueprint{
		{
			Name:       "Benefits Verification",
			Intent:     "Benefits Verification",
			CallerType: scenario.CallerProvider,
			Confidence: ConfidenceRange{Min: 90, Max: 96},
			Lines: []Line{
				caller("This is {provider_name} calling to verify benefits.", phase.Awaiting),
				ai("Thank you. Can I have your NPI number please?", ""),
				caller("NPI {npi}.", phase.ProviderVerifying),
				ai("Provider verified. {provider_name}, NPI {npi}. Please provide the member ID.", phase.ProviderVerified),
				caller("Member ID {member_id}, date of birth {dob}.", phase.MemberVerifying),
				ai("Member verified. To confirm, you are calling from {provider_name}, NPI {npi}, regarding member {member_id}. Is that correct?", phase.MemberVerified),
				caller("That's correct.", phase.IntentClassifying),
				ai("Coverage is active under {plan}. Specialist visits are covered with a thirty-dollar copay. Deductible is seventy-four percent met. No prior authorization required for in-network providers.", phase.ResponseReady),
				ai("Is there anything else I can help with today?", ""),
				caller("No, that's all. Thank you.", ""),
				ai("Thank you for calling. This verification has been completed and logged.", ""),
			},
		},
		{
			Name:       "Eligibility Verification",
			Intent:     "Eligibility Verification",
			CallerType: scenario.CallerProvider,
			Confidence: ConfidenceRange{Min: 90, Max: 95},
			Lines: []Line{
				caller("Calling to confirm eligibility for a patient.", phase.Awaiting),
				ai("I'd be happy to help. May I have your NPI number?", ""),
				caller("NPI {npi}.", phase.ProviderVerifying),
				ai("Provider verified. Please provide the member ID.", phase.ProviderVerified),
				caller("Member {member_id}.", phase.MemberVerifying),
				ai("Member verified. Eligibility confirmed. Coverage is active under the employer-sponsored {plan} effective January 1st, 2026. No lapse detected.", phase.ResponseReady),
			},
		},
		{
			Name:       "Claim Status",
			Intent:     "Claim Status",
			CallerType: scenario.CallerProvider,
			Confidence: ConfidenceRange{Min: 88, Max: 93},
			Lines: []Line{
				caller("I'm calling to check on a claim.", phase.Awaiting),
				ai("Of course. May I have your NPI?", ""),
				caller("NPI {npi}.", phase.ProviderVerifying),
				ai("Provider verified. Which claim are you inquiring about?", phase.ProviderVerified),
				caller("Claim number {claim_id}, submitted February 3rd, for member {member_id}.", phase.MemberVerifying),
				ai("Member verified. The claim was received February 3rd and is currently processing. Determination expected within five business days. No additional documentation required.", phase.ResponseReady),
			},
		},
		{
			Name:       "Prior Authorization Status",
			Intent:     "Prior Authorization Status",
			CallerType: scenario.CallerProvider,
			Confidence: ConfidenceRange{Min: 85, Max: 91},
			Lines: []Line{
				caller("Checking on a prior authorization request.", phase.Awaiting),
				ai("May I have your NPI number?", ""),
				caller("NPI {npi}.", phase.ProviderVerifying),
				ai("Provider verified. Please provide the member ID or PA reference number.", phase.ProviderVerified),
				caller("Member {member_id}.", phase.MemberVerifying),
				ai("Member verified. The PA request is under clinical review. All required documentation has been received. Estimated determination within forty-eight hours.", phase.ResponseReady),
			},
		},
	}
}

func memberBlueprints() []Blueprint {
	return []Blueprint{
		{
			Name:       "Claims Status",
			Intent:     "Claims Status",
			CallerType: scenario.CallerMember,
			Confidence: ConfidenceRange{Min: 90, Max: 96},
			Lines: []Line{
				caller("I'd like to check the status of a recent claim.", phase.Awaiting),
				ai("Please provide your member ID.", phase.MemberVerifying),
				caller("It's {member_id}.", ""),
				ai("Your claim was processed and approved. Payment was issued on February 15th.", phase.ResponseReady),
			},
		},
		{
			Name:       "ID Card Replacement",
			Intent:     "ID Card Replacement",
			CallerType: scenario.CallerMember,
			Confidence: ConfidenceRange{Min: 92, Max: 98},
			Lines: []Line{
				caller("I need a replacement ID card.", phase.Awaiting),
				ai("A new ID card has been requested. It will arrive within seven to ten business days. A digital copy has also been sent to the email on file.", phase.ResponseReady),
			},
		},
		{
			Name:       "Deductible / OOP Inquiry",
			Intent:     "Deductible / OOP Inquiry",
			CallerType: scenario.CallerMember,
			Confidence: ConfidenceRange{Min: 90, Max: 96},
			Lines: []Line{
				caller("Can you tell me how much of my deductible I've met so far?", phase.Awaiting),
				ai("Please provide your member ID.", phase.MemberVerifying),
				caller("Member {member_id}.", ""),
				ai("You have met twelve hundred of your two-thousand-dollar individual deductible. Your out-of-pocket maximum balance remaining is four thousand two hundred dollars.", phase.ResponseReady),
			},
		},
	}
}

// edgeBuilder scripts one failure mode. retrySucceeds selects the branch.
type edgeBuilder func(sc scenario.Scenario, retrySucceeds bool) Template

var edgeBuilders = map[scenario.EdgeCase]edgeBuilder{
	scenario.EdgeWrongNPI:        buildWrongNPI,
	scenario.EdgeInvalidMemberID: buildInvalidMember,
	scenario.EdgeDOBMismatch:     buildDOBMismatch,
	scenario.EdgeClaimNotFound:   buildClaimNotFound,
	scenario.EdgeAPITimeout:      buildAPITimeout,
}

func branch(retrySucceeds bool) Branch {
	if retrySucceeds {
		return BranchRecovered
	}
	return BranchUnresolved
}

func buildWrongNPI(sc scenario.Scenario, retrySucceeds bool) Template {
	lines := []Line{
		caller("This is "+sc.ProviderName+" calling to verify benefits.", phase.Awaiting),
		ai("Thank you. Can I have your NPI number please?", ""),
		caller("NPI "+wrongNPI+".", phase.ProviderVerifying),
		ai("I'm unable to verify that NPI. Could you please repeat or confirm the number?", phase.ProviderFailed),
	}
	conf := ConfidenceRange{Min: 68, Max: 76}
	if retrySucceeds {
		conf = ConfidenceRange{Min: 82, Max: 88}
		lines = append(lines,
			caller("Sorry, it's "+sc.NPI+".", phase.ProviderRetry),
			ai("Provider verified. "+sc.ProviderName+", NPI "+sc.NPI+". Please provide the member ID.", phase.ProviderVerified),
			caller("Member ID "+sc.MemberID+", date of birth "+sc.DOB+".", phase.MemberVerifying),
			ai("Member verified. Coverage is active. No issues found.", phase.ResponseReady),
		)
	} else {
		lines = append(lines,
			caller("I think it's "+wrongNPI+".", phase.ProviderRetry),
			ai("I'm still unable to verify that NPI. I'll connect you to a representative for assistance.", phase.Escalation),
		)
	}
	return Template{
		Name:       "Wrong NPI",
		Intent:     "Benefits Verification",
		CallerType: scenario.CallerProvider,
		Confidence: conf,
		Lines:      lines,
		Branch:     branch(retrySucceeds),
		EdgeCase:   scenario.EdgeWrongNPI,
	}
}

func buildInvalidMember(sc scenario.Scenario, retrySucceeds bool) Template {
	lines := []Line{
		caller("This is "+sc.ProviderName+" calling about a patient.", phase.Awaiting),
		ai("May I have your NPI number?", ""),
		caller("NPI "+sc.NPI+".", phase.ProviderVerifying),
		ai("Provider verified. Please provide the member ID.", phase.ProviderVerified),
		caller("Member "+wrongMemberID+".", phase.MemberVerifying),
		ai("I'm unable to locate that member record. Could you confirm the ID?", phase.MemberFailed),
	}
	conf := ConfidenceRange{Min: 65, Max: 74}
	if retrySucceeds {
		conf = ConfidenceRange{Min: 80, Max: 86}
		lines = append(lines,
			caller("Let me check. It should be "+sc.MemberID+".", phase.MemberRetry),
			ai("Member verified. Eligibility confirmed.", phase.ResponseReady),
		)
	} else {
		lines = append(lines,
			caller("I'm not sure of the correct ID.", phase.MemberRetry),
			ai("I'm unable to verify the member. I'll transfer you to an agent who can assist.", phase.Escalation),
		)
	}
	return Template{
		Name:       "Invalid Member ID",
		Intent:     "Eligibility Verification",
		CallerType: scenario.CallerProvider,
		Confidence: conf,
		Lines:      lines,
		Branch:     branch(retrySucceeds),
		EdgeCase:   scenario.EdgeInvalidMemberID,
	}
}

func buildDOBMismatch(sc scenario.Scenario, retrySucceeds bool) Template {
	lines := []Line{
		caller("Calling to verify benefits for a patient.", phase.Awaiting),
		ai("May I have your NPI?", ""),
		caller("NPI "+sc.NPI+".", phase.ProviderVerifying),
		ai("Provider verified. Please provide the member ID.", phase.ProviderVerified),
		caller("Member "+sc.MemberID+", date of birth "+wrongDOB+".", phase.MemberVerifying),
		ai("The date of birth provided does not match our records. Please re-confirm.", phase.DOBMismatch),
	}
	conf := ConfidenceRange{Min: 70, Max: 78}
	if retrySucceeds {
		conf = ConfidenceRange{Min: 82, Max: 87}
		lines = append(lines,
			caller("Sorry, the correct date of birth is "+sc.DOB+".", phase.MemberRetry),
			ai("Date of birth confirmed. Member verified. Coverage is active.", phase.ResponseReady),
		)
	} else {
		lines = append(lines,
			caller("I have "+wrongDOB+" in my records.", phase.MemberRetry),
			ai("The date of birth still does not match. For security, I'll transfer you to verify identity.", phase.Escalation),
		)
	}
	return Template{
		Name:       "DOB Mismatch",
		Intent:     "Benefits Verification",
		CallerType: scenario.CallerProvider,
		Confidence: conf,
		Lines:      lines,
		Branch:     branch(retrySucceeds),
		EdgeCase:   scenario.EdgeDOBMismatch,
	}
}

// buildClaimNotFound has no retry; the claim is never located.
func buildClaimNotFound(sc scenario.Scenario, _ bool) Template {
	return Template{
		Name:       "Claim Not Found",
		Intent:     "Claim Status",
		CallerType: scenario.CallerProvider,
		Confidence: ConfidenceRange{Min: 72, Max: 80},
		Lines: []Line{
			caller("Calling to check on a claim status.", phase.Awaiting),
			ai("May I have your NPI?", ""),
			caller("NPI "+sc.NPI+".", phase.ProviderVerifying),
			ai("Provider verified. Which claim are you inquiring about?", phase.ProviderVerified),
			caller("Claim "+sc.ClaimID+" for member "+sc.MemberID+".", phase.MemberVerifying),
			ai("Member verified. However, I'm unable to locate claim "+sc.ClaimID+" in the system. Let me transfer you to a representative who can assist.", phase.Escalation),
		},
		Branch:   BranchUnresolved,
		EdgeCase: scenario.EdgeClaimNotFound,
	}
}

func buildAPITimeout(sc scenario.Scenario, retrySucceeds bool) Template {
	lines := []Line{
		caller("This is "+sc.ProviderName+" calling to check eligibility.", phase.Awaiting),
		ai("May I have your NPI?", ""),
		caller("NPI "+sc.NPI+".", phase.ProviderVerifying),
		ai("Provider verified. Please provide the member ID.", phase.ProviderVerified),
		caller("Member "+sc.MemberID+".", phase.MemberVerifying),
		ai("Member verified. Let me retrieve the eligibility details.", phase.DataTimeout),
	}
	conf := ConfidenceRange{Min: 68, Max: 75}
	if retrySucceeds {
		conf = ConfidenceRange{Min: 80, Max: 86}
		lines = append(lines, ai("System is back online. Eligibility confirmed. Coverage is active.", phase.ResponseReady))
	} else {
		lines = append(lines, ai("We're experiencing a temporary system delay. I'll connect you to a specialist who can assist.", phase.Escalation))
	}
	return Template{
		Name:       "API Timeout",
		Intent:     "Eligibility Verification",
		CallerType: scenario.CallerProvider,
		Confidence: conf,
		Lines:      lines,
		Branch:     branch(retrySucceeds),
		EdgeCase:   scenario.EdgeAPITimeout,
	}
}
