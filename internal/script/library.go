package script

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/reflecthealth/callsim/internal/random"
	"github.com/reflecthealth/callsim/internal/scenario"
)

// Selection is the outcome of matching a template to a scenario.
type Selection struct {
	Template      Template `json:"template"`
	RetrySucceeds bool     `json:"retry_succeeds"`
}

// Library serves the built-in happy-path pool, any blueprints loaded from
// a template file, and the edge-case builders.
type Library struct {
	mu       sync.RWMutex
	builtins []Blueprint
	extras   []Blueprint
	logger   *slog.Logger
}

// NewLibrary returns a library holding the built-in templates.
func NewLibrary(logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	builtins := append(providerBlueprints(), memberBlueprints()...)
	return &Library{builtins: builtins, logger: logger}
}

// Select picks a template for sc. Clean calls draw uniformly from the pool
// for the scenario's caller type. Edge cases first draw whether the retry
// succeeds, then call the dedicated builder.
func (l *Library) Select(sc scenario.Scenario, src random.Source, retrySuccessRate float64) (Selection, error) {
	if sc.EdgeCase == scenario.EdgeNone || sc.EdgeCase == "" {
		pool := l.pool(sc.CallerType)
		if len(pool) == 0 {
			return Selection{}, fmt.Errorf("no templates for caller type %q", sc.CallerType)
		}
		return Selection{Template: random.Pick(src, pool).Render(sc)}, nil
	}

	retrySucceeds := random.Chance(src, retrySuccessRate)
	tpl, err := l.Build(sc.EdgeCase, sc, retrySucceeds)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Template: tpl, RetrySucceeds: tpl.Branch == BranchRecovered}, nil
}

// Build runs the dedicated builder for edge.
func (l *Library) Build(edge scenario.EdgeCase, sc scenario.Scenario, retrySucceeds bool) (Template, error) {
	b, ok := edgeBuilders[edge]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownEdgeCase, edge)
	}
	return b(sc, retrySucceeds), nil
}

// Named renders the happy-path template called name.
func (l *Library) Named(name string, sc scenario.Scenario) (Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, set := range [][]Blueprint{l.builtins, l.extras} {
		for _, b := range set {
			if b.Name == name {
				return b.Render(sc), true
			}
		}
	}
	return Template{}, false
}

// Blueprints returns every happy-path blueprint, built-ins first.
func (l *Library) Blueprints() []Blueprint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Blueprint, 0, len(l.builtins)+len(l.extras))
	out = append(out, l.builtins...)
	return append(out, l.extras...)
}

// Names lists happy-path template names in sorted order.
func (l *Library) Names() []string {
	var names []string
	for _, b := range l.Blueprints() {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names
}

// SetExtras validates and installs blueprints loaded from outside the
// binary. On error the previous set stays active.
func (l *Library) SetExtras(extras []Blueprint) error {
	seen := map[string]bool{}
	for _, b := range l.builtinsCopy() {
		seen[b.Name] = true
	}
	probe := scenario.Scenario{
		NPI:          "1456789123",
		ProviderName: "Northgate Orthopedic",
		MemberID:     "BCX-1000000",
		DOB:          "01/14/1986",
		PlanLabel:    "UHC Choice Plus PPO",
		ClaimID:      "CLM-10000",
		PriorAuthID:  "PA-100000",
		EdgeCase:     scenario.EdgeNone,
	}
	for _, b := range extras {
		if seen[b.Name] {
			return fmt.Errorf("template %q is already defined", b.Name)
		}
		seen[b.Name] = true
		if err := Validate(b.Render(probe)); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.extras = append([]Blueprint(nil), extras...)
	l.mu.Unlock()
	l.logger.Info("template extras installed", "count", len(extras))
	return nil
}

func (l *Library) builtinsCopy() []Blueprint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Blueprint(nil), l.builtins...)
}

func (l *Library) pool(ct scenario.CallerType) []Blueprint {
	if ct == "" {
		ct = scenario.CallerProvider
	}
	var out []Blueprint
	for _, b := range l.Blueprints() {
		if b.CallerType == ct {
			out = append(out, b)
		}
	}
	return out
}
