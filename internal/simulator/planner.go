package simulator

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/reflecthealth/callsim/internal/clock"
	"github.com/reflecthealth/callsim/internal/escalation"
	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/retrieval"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/script"
	"github.com/reflecthealth/callsim/internal/session"
)

const sessionIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CallPlan is everything decided about a call before playback begins.
type CallPlan struct {
	SessionID string                        `json:"session_id"`
	Scenario  scenario.Scenario             `json:"scenario"`
	Selection script.Selection              `json:"selection"`
	Decision  escalation.Decision           `json:"decision"`
	Calls     []retrieval.Call              `json:"calls"`
	Response  *retrieval.StructuredResponse `json:"response,omitempty"`
	// Retry is appended to the session's calls when a timed-out fetch
	// recovers during playback.
	Retry              *retrieval.Call `json:"retry,omitempty"`
	ProviderConfidence int             `json:"provider_confidence"`
	MemberConfidence   int             `json:"member_confidence"`
}

// ProviderVerified reports whether the provider ends up verified: only a
// wrong NPI that is never corrected leaves it unverified.
func (p CallPlan) ProviderVerified() bool {
	return p.Scenario.EdgeCase != scenario.EdgeWrongNPI || p.Selection.Template.HasPhase(phase.ProviderVerified)
}

// MemberVerified reports whether the member ends up verified.
func (p CallPlan) MemberVerified() bool {
	switch p.Scenario.EdgeCase {
	case scenario.EdgeInvalidMemberID, scenario.EdgeDOBMismatch:
		tpl := p.Selection.Template
		return tpl.HasPhase(phase.MemberVerified) || tpl.HasPhase(phase.ResponseReady)
	default:
		return true
	}
}

// Session returns the initial live session for the plan. The escalation
// fields carry the provisional decision.
func (p CallPlan) Session() session.Session {
	sc := p.Scenario
	tpl := p.Selection.Template
	return session.Session{
		ID:                 p.SessionID,
		CallerType:         tpl.CallerType,
		NPI:                sc.NPI,
		ProviderName:       sc.ProviderName,
		MemberID:           sc.MemberID,
		DOB:                sc.DOB,
		PlanLabel:          sc.PlanLabel,
		ClaimID:            sc.ClaimID,
		EdgeCaseType:       sc.EdgeCase,
		TemplateName:       tpl.Name,
		Intent:             tpl.Intent,
		ConfidenceScore:    p.Decision.Confidence,
		APICalls:           append([]retrieval.Call(nil), p.Calls...),
		StructuredResponse: p.Response,
		Escalated:          p.Decision.Escalated,
		EscalationReason:   p.Decision.Reason,
		ProviderVerified:   p.ProviderVerified(),
		MemberVerified:     p.MemberVerified(),
		ProviderConfidence: p.ProviderConfidence,
		MemberConfidence:   p.MemberConfidence,
	}
}

// Planner draws call plans. It is not safe for concurrent use; the
// simulator only plans while holding its run guard.
type Planner struct {
	src       random.Source
	gen       *scenario.Generator
	lib       *script.Library
	engine    *escalation.Engine
	retryRate float64
	sched     clock.Scheduler
}

func NewPlanner(src random.Source, lib *script.Library, sched clock.Scheduler, cfg Config) (*Planner, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if lib == nil {
		return nil, fmt.Errorf("template library is required")
	}
	if sched == nil {
		sched = clock.Real()
	}
	gen, err := scenario.NewGenerator(src, cfg.Scenario)
	if err != nil {
		return nil, err
	}
	engine, err := escalation.NewEngine(src, cfg.Escalation)
	if err != nil {
		return nil, err
	}
	return &Planner{
		src:       src,
		gen:       gen,
		lib:       lib,
		engine:    engine,
		retryRate: cfg.RetrySuccessRate,
		sched:     sched,
	}, nil
}

// Plan draws a scenario, selects its template and completes the plan.
func (p *Planner) Plan(threshold float64) (CallPlan, error) {
	sc := p.gen.Generate()
	sel, err := p.lib.Select(sc, p.src, p.retryRate)
	if err != nil {
		return CallPlan{}, fmt.Errorf("select template: %w", err)
	}
	return p.Complete(sc, sel, threshold), nil
}

// Complete scores an already selected template and fabricates its backend
// calls. Draw order: confidence, ambiguity, verification confidences,
// backend calls, structured response, retry latency, session id suffix.
func (p *Planner) Complete(sc scenario.Scenario, sel script.Selection, threshold float64) CallPlan {
	tpl := sel.Template
	plan := CallPlan{
		Scenario:  sc,
		Selection: sel,
		Decision:  p.engine.Decide(tpl, sc.EdgeCase, threshold),
	}
	plan.ProviderConfidence = random.IntRange(p.src, 96, 99)
	plan.MemberConfidence = random.IntRange(p.src, 94, 99)
	plan.Calls = retrieval.Plan(tpl.Intent, sc, p.src)
	plan.Response = retrieval.Respond(tpl.Intent, sc, p.src)
	if slices.Contains(tpl.Phases(), phase.DataRetry) {
		if failed, ok := retrieval.FirstRetryable(plan.Calls); ok {
			retry := retrieval.RetryOf(failed, p.src)
			plan.Retry = &retry
		}
	}
	plan.SessionID = p.sessionID()
	return plan
}

func (p *Planner) sessionID() string {
	var b strings.Builder
	b.WriteString("F9-")
	b.WriteString(strings.ToUpper(strconv.FormatInt(p.sched.Now().UnixMilli(), 36)))
	b.WriteByte('-')
	for i := 0; i < 4; i++ {
		b.WriteByte(sessionIDAlphabet[p.src.IntN(len(sessionIDAlphabet))])
	}
	return b.String()
}
