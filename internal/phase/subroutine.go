package phase

import (
	"context"
	"time"

	"github.com/reflecthealth/callsim/internal/clock"
)

// Timings are the fixed settle delays of the synthetic sub-sequences.
type Timings struct {
	IntentClassify time.Duration `json:"intent_classify"`
	IntentRoute    time.Duration `json:"intent_route"`
	DataFetch      time.Duration `json:"data_fetch"`
	ResponseDraft  time.Duration `json:"response_draft"`

	TimeoutLead time.Duration `json:"timeout_lead"`
	TimeoutHold time.Duration `json:"timeout_hold"`
	RetryHold   time.Duration `json:"retry_hold"`

	VerifiedSettle time.Duration `json:"verified_settle"`
}

func DefaultTimings() Timings {
	return Timings{
		IntentClassify: 400 * time.Millisecond,
		IntentRoute:    300 * time.Millisecond,
		DataFetch:      600 * time.Millisecond,
		ResponseDraft:  200 * time.Millisecond,
		TimeoutLead:    400 * time.Millisecond,
		TimeoutHold:    1200 * time.Millisecond,
		RetryHold:      600 * time.Millisecond,
		VerifiedSettle: 400 * time.Millisecond,
	}
}

// Step waits Delay and then enters Phase. A step with an empty Phase is a
// pure settle.
type Step struct {
	Delay time.Duration
	Phase Phase
}

// IntentFastPath walks the intent and data stages a template does not
// script itself. It starts after IntentClassifying has been entered and
// ends in ResponseGenerating.
func IntentFastPath(t Timings) []Step {
	return []Step{
		{Delay: t.IntentClassify, Phase: IntentClassified},
		{Delay: t.IntentRoute, Phase: DataRetrieving},
		{Delay: t.DataFetch, Phase: DataRetrieved},
		{Delay: t.ResponseDraft, Phase: ResponseGenerating},
	}
}

// DataTimeoutPath plays a backend timeout. When recovered is true the retry
// succeeds and the path ends in DataRetrieved; otherwise it holds in
// DataTimeout so the script can escalate.
func DataTimeoutPath(t Timings, recovered bool) []Step {
	steps := []Step{
		{Phase: DataRetrieving},
		{Delay: t.TimeoutLead, Phase: DataTimeout},
	}
	if !recovered {
		return append(steps, Step{Delay: t.TimeoutHold})
	}
	return append(steps,
		Step{Delay: t.TimeoutHold, Phase: DataRetry},
		Step{Delay: t.RetryHold, Phase: DataRetrieved},
	)
}

// Duration sums the delays of steps.
func Duration(steps []Step) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Delay
	}
	return total
}

// Walk executes steps in order on sched, calling apply for every step that
// names a phase. It stops at the first error, including cancellation.
func Walk(ctx context.Context, sched clock.Scheduler, steps []Step, apply func(Phase) error) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Delay > 0 {
			if err := sched.Sleep(ctx, s.Delay); err != nil {
				return err
			}
		}
		if s.Phase == "" {
			continue
		}
		if err := apply(s.Phase); err != nil {
			return err
		}
	}
	return nil
}

// Expand returns the steps produced by a script line tagged with tagged.
// next is the tag of the immediately following line, or "" when that line
// is untagged or absent. clean is true for calls without an injected edge
// case.
func Expand(t Timings, tagged, next Phase, clean bool) []Step {
	switch {
	case tagged == IntentClassifying:
		return append([]Step{{Phase: IntentClassifying}}, IntentFastPath(t)...)
	case tagged == DataTimeout:
		return DataTimeoutPath(t, next == ResponseReady)
	case tagged == MemberVerified && clean:
		return []Step{{Phase: MemberVerified}, {Delay: t.VerifiedSettle}}
	default:
		return []Step{{Phase: tagged}}
	}
}
