package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gathered returns the value of the first sample of family name whose labels
// include want.
func gathered(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metrics:
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestPhaseDwellWindowSnapshot(t *testing.T) {
	w := newPhaseDwellWindow(8)
	w.Observe("data-retrieving", 500)
	w.Observe("data-retrieving", 700)
	w.Observe("data-retrieving", 900)
	w.ObserveIndicator("tts_fallback_error")
	w.ObserveIndicator("tts_fallback_error")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Phases) != 1 {
		t.Fatalf("len(Phases) = %d, want 1", len(snap.Phases))
	}
	s := snap.Phases[0]
	if s.Phase != "data-retrieving" {
		t.Fatalf("Phase = %q, want %q", s.Phase, "data-retrieving")
	}
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 800 {
		t.Fatalf("TargetP95MS = %.2f, want 800", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestPhaseDwellWindowWrapsAndResets(t *testing.T) {
	w := newPhaseDwellWindow(2)
	w.Observe("awaiting", 1)
	w.Observe("awaiting", 2)
	w.Observe("awaiting", 3)
	w.Observe("", 4)
	w.Observe("awaiting", -1)

	snap := w.Snapshot()
	if snap.Phases[0].Samples != 2 || snap.Phases[0].AvgMS != 2.5 {
		t.Fatalf("unexpected stats after wrap: %+v", snap.Phases[0])
	}
	w.Reset()
	if got := w.Snapshot(); len(got.Phases) != 0 {
		t.Fatalf("Phases after Reset = %+v", got.Phases)
	}
}

func TestMetricsRecordCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith("test", reg)
	m.CallStarted()
	m.ObservePhase("awaiting", "", 0)
	m.ObservePhase("provider-verifying", "awaiting", 800*time.Millisecond)
	m.CallEnded("resolved", 20*time.Second)
	m.ObserveEscalation("System Timeout")

	if got := gathered(t, reg, "test_active_calls", nil); got != 0 {
		t.Fatalf("active calls = %v, want 0", got)
	}
	if got := gathered(t, reg, "test_calls_total", map[string]string{"outcome": "resolved"}); got != 1 {
		t.Fatalf("calls_total{resolved} = %v, want 1", got)
	}
	if got := gathered(t, reg, "test_phase_transitions_total", map[string]string{"phase": "provider-verifying"}); got != 1 {
		t.Fatalf("phase transitions = %v, want 1", got)
	}
	snap := m.PhaseSnapshot()
	if len(snap.Phases) != 1 || snap.Phases[0].Phase != "awaiting" || snap.Phases[0].LastMS != 800 {
		t.Fatalf("phase snapshot = %+v", snap.Phases)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.CallStarted()
	m.ObservePhase("awaiting", "", 0)
	m.ObserveTTSFallback("error")
	m.CallEnded("cancelled", 0)
	if snap := m.PhaseSnapshot(); len(snap.Phases) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}
