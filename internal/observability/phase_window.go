package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type PhaseDwellStats struct {
	Phase       string  `json:"phase"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type PhaseIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type PhaseDwellSnapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	WindowSize  int               `json:"window_size"`
	Phases      []PhaseDwellStats `json:"phases"`
	Indicators  []PhaseIndicator  `json:"indicators,omitempty"`
}

type phaseDwellWindow struct {
	mu         sync.RWMutex
	maxSamples int
	phases     map[string]*dwellBuffer
	indicators map[string]int
}

// dwellBuffer is a ring of the most recent samples.
type dwellBuffer struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newPhaseDwellWindow(maxSamples int) *phaseDwellWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &phaseDwellWindow{
		maxSamples: maxSamples,
		phases:     make(map[string]*dwellBuffer),
		indicators: make(map[string]int),
	}
}

func (w *phaseDwellWindow) Observe(phase string, ms float64) {
	if phase == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, ok := w.phases[phase]
	if !ok {
		buf = &dwellBuffer{values: make([]float64, w.maxSamples)}
		w.phases[phase] = buf
	}
	buf.values[buf.next] = ms
	buf.last = ms
	buf.next++
	if buf.next >= len(buf.values) {
		buf.next = 0
		buf.filled = true
	}
}

func (w *phaseDwellWindow) Snapshot() PhaseDwellSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.phases))
	for p := range w.phases {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	stats := make([]PhaseDwellStats, 0, len(keys))
	for _, p := range keys {
		buf := w.phases[p]
		n := buf.next
		if buf.filled {
			n = len(buf.values)
		}
		if n <= 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, buf.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		stats = append(stats, PhaseDwellStats{
			Phase:       p,
			Samples:     n,
			LastMS:      round2(buf.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: phaseTargetP95MS(p),
		})
	}

	names := make([]string, 0, len(w.indicators))
	for name, count := range w.indicators {
		if count > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	indicators := make([]PhaseIndicator, 0, len(names))
	for _, name := range names {
		indicators = append(indicators, PhaseIndicator{Name: name, Count: w.indicators[name]})
	}

	return PhaseDwellSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Phases:      stats,
		Indicators:  indicators,
	}
}

func (w *phaseDwellWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *phaseDwellWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phases = make(map[string]*dwellBuffer)
	w.indicators = make(map[string]int)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// phaseTargetP95MS is the dwell budget of the synthetic phases.
func phaseTargetP95MS(phase string) float64 {
	switch phase {
	case "awaiting":
		return 1000
	case "intent-classifying":
		return 500
	case "intent-classified":
		return 400
	case "data-retrieving":
		return 800
	case "data-timeout":
		return 1400
	case "data-retry":
		return 800
	case "response-generating":
		return 6000
	case "confidence-check":
		return 1000
	default:
		return 0
	}
}
