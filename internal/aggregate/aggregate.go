// Package aggregate accumulates per-run savings counters across simulated
// calls.
package aggregate

import "sync"

// Rates are the fixed per-call savings constants.
type Rates struct {
	CostPerDeflection    float64 `json:"cost_per_deflection"`
	MinutesPerDeflection int     `json:"minutes_per_deflection"`
	MinutesPerEscalation int     `json:"minutes_per_escalation"`
}

func DefaultRates() Rates {
	return Rates{
		CostPerDeflection:    4.32,
		MinutesPerDeflection: 6,
		MinutesPerEscalation: 1,
	}
}

// Totals is a snapshot of the counters.
type Totals struct {
	Deflected    int     `json:"deflected"`
	Escalated    int     `json:"escalated"`
	MinutesSaved int     `json:"minutes_saved"`
	CostAvoided  float64 `json:"cost_avoided"`
}

// Calls returns the number of completed calls counted.
func (t Totals) Calls() int { return t.Deflected + t.Escalated }

// DeflectionRate returns the share of calls resolved without a human.
func (t Totals) DeflectionRate() float64 {
	if t.Calls() == 0 {
		return 0
	}
	return float64(t.Deflected) / float64(t.Calls())
}

// Aggregator is safe for concurrent use. Cost is kept in cents so repeated
// additions do not drift.
type Aggregator struct {
	mu           sync.Mutex
	rates        Rates
	costPerCents int64
	deflected    int
	escalated    int
	minutes      int
	costCents    int64
}

func New(rates Rates) *Aggregator {
	return &Aggregator{
		rates:        rates,
		costPerCents: int64(rates.CostPerDeflection*100 + 0.5),
	}
}

func (a *Aggregator) Rates() Rates { return a.rates }

// Record counts one completed call and returns the updated totals.
func (a *Aggregator) Record(escalated bool) Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	if escalated {
		a.escalated++
		a.minutes += a.rates.MinutesPerEscalation
	} else {
		a.deflected++
		a.minutes += a.rates.MinutesPerDeflection
		a.costCents += a.costPerCents
	}
	return a.totalsLocked()
}

func (a *Aggregator) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalsLocked()
}

// Reset zeroes every counter. It is only called on an explicit user request.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deflected, a.escalated, a.minutes, a.costCents = 0, 0, 0, 0
}

func (a *Aggregator) totalsLocked() Totals {
	return Totals{
		Deflected:    a.deflected,
		Escalated:    a.escalated,
		MinutesSaved: a.minutes,
		CostAvoided:  float64(a.costCents) / 100,
	}
}
