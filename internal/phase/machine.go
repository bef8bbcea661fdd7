package phase

import (
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// Machine tracks the current phase of one call and rejects any transition
// that would move backwards along the pipeline.
type Machine struct {
	mu           sync.RWMutex
	current      Phase
	history      []Phase
	onTransition func(from, to Phase)
}

// NewMachine returns a machine parked in Idle.
func NewMachine() *Machine {
	return &Machine{current: Idle}
}

// OnTransition installs a hook called after every applied transition,
// including resets. The hook runs outside the machine lock.
func (m *Machine) OnTransition(hook func(from, to Phase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = hook
}

func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns the phases entered since the last reset.
func (m *Machine) History() []Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Phase(nil), m.history...)
}

// Advance moves the machine to next. Re-entering the current phase is a
// no-op. Escalation may be entered from any live phase because a scripted
// failure branch ends the pipeline early; Resolved requires ConfidenceCheck.
func (m *Machine) Advance(next Phase) error {
	m.mu.Lock()
	from := m.current
	if err := check(from, next); err != nil {
		m.mu.Unlock()
		return err
	}
	if from == next {
		m.mu.Unlock()
		return nil
	}
	m.current = next
	m.history = append(m.history, next)
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil {
		hook(from, next)
	}
	return nil
}

// CanAdvance reports whether Advance(next) would succeed without applying it.
func (m *Machine) CanAdvance(next Phase) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return check(m.current, next) == nil
}

// Reset returns the machine to Idle and clears history.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.current
	m.current = Idle
	m.history = nil
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil && from != Idle {
		hook(from, Idle)
	}
}

func check(from, to Phase) error {
	if from == to {
		return nil
	}
	if to.Rank() < 0 {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidTransition, to)
	}
	if to == Idle {
		return fmt.Errorf("%w: use Reset to return to idle", ErrInvalidTransition)
	}
	if from == Idle {
		if to != Awaiting {
			return fmt.Errorf("%w: %s -> %s, calls start at %s", ErrInvalidTransition, from, to, Awaiting)
		}
		return nil
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to.Rank() <= from.Rank() {
		return fmt.Errorf("%w: %s -> %s moves backwards", ErrInvalidTransition, from, to)
	}
	if allowed, ok := predecessors[to]; ok {
		for _, p := range allowed {
			if p == from {
				return nil
			}
		}
		return fmt.Errorf("%w: %s must follow one of %v, not %s", ErrInvalidTransition, to, allowed, from)
	}
	return nil
}
