// Package random provides the injectable randomness used by the simulator.
// Nothing in the simulation core touches the global RNG.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the minimal random surface the simulator draws from.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). n must be positive.
	IntN(n int) int
}

type pcgSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a deterministic source seeded with seed.
func New(seed uint64) Source {
	return &pcgSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded returns a source seeded from the wall clock.
func NewTimeSeeded() Source {
	return New(uint64(time.Now().UnixNano()))
}

func (s *pcgSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *pcgSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Scripted replays a fixed sequence of draws before deferring to a fallback.
// Float64 consumes from floats; IntN consumes from ints. Tests use it to force
// exact branch selection.
type Scripted struct {
	mu       sync.Mutex
	floats   []float64
	ints     []int
	fallback Source
}

// NewScripted returns a Scripted source that yields floats first. A nil
// fallback yields zero values once the script is exhausted.
func NewScripted(fallback Source, floats ...float64) *Scripted {
	return &Scripted{floats: append([]float64(nil), floats...), fallback: fallback}
}

// WithInts queues integer draws returned by IntN.
func (s *Scripted) WithInts(ints ...int) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ints = append(s.ints, ints...)
	return s
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	if len(s.floats) > 0 {
		v := s.floats[0]
		s.floats = s.floats[1:]
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()
	if s.fallback == nil {
		return 0
	}
	return s.fallback.Float64()
}

func (s *Scripted) IntN(n int) int {
	s.mu.Lock()
	if len(s.ints) > 0 {
		v := s.ints[0]
		s.ints = s.ints[1:]
		s.mu.Unlock()
		if v < 0 || v >= n {
			return ((v % n) + n) % n
		}
		return v
	}
	s.mu.Unlock()
	if s.fallback == nil {
		return 0
	}
	return s.fallback.IntN(n)
}

// IntRange returns a uniform integer in [lo, hi], both inclusive.
func IntRange(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Chance reports whether a draw falls under probability p.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	return src.Float64() < p
}

// Pick returns a uniformly chosen element of items. It panics on an empty slice.
func Pick[T any](src Source, items []T) T {
	return items[src.IntN(len(items))]
}
