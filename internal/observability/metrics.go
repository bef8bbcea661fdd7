package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveCalls      prometheus.Gauge
	Calls            *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	TTSFallbacks     *prometheus.CounterVec
	Escalations      *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	CallDuration     prometheus.Histogram

	phases *phaseDwellWindow
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of simulated calls currently playing.",
		}),
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Simulated calls by outcome.",
		}, []string{"outcome"}),
		PhaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Pipeline phase transitions by destination phase.",
		}, []string{"phase"}),
		TTSFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_fallbacks_total",
			Help:      "Lines played with the fixed-delay stand-in, by reason.",
		}, []string{"reason"}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalated calls by reason.",
		}, []string{"reason"}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Speech provider errors by provider and code.",
		}, []string{"provider", "code"}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Wall time of completed simulated calls.",
			Buckets:   []float64{5, 10, 15, 20, 30, 45, 60, 90},
		}),
		phases: newPhaseDwellWindow(256),
	}
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

// CallEnded records a finished call. outcome is resolved, escalated or
// cancelled; d is only observed for calls that ran to completion.
func (m *Metrics) CallEnded(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
	m.Calls.WithLabelValues(outcome).Inc()
	if outcome != "cancelled" {
		m.CallDuration.Observe(d.Seconds())
	}
}

// ObservePhase counts a transition into phase and records how long the
// previous phase was held.
func (m *Metrics) ObservePhase(phase, previous string, dwell time.Duration) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(phase).Inc()
	if previous != "" {
		m.phases.Observe(previous, float64(dwell.Microseconds())/1000)
	}
}

func (m *Metrics) ObserveTTSFallback(reason string) {
	if m == nil {
		return
	}
	m.TTSFallbacks.WithLabelValues(reason).Inc()
	m.phases.ObserveIndicator("tts_fallback_" + reason)
}

func (m *Metrics) ObserveEscalation(reason string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

// PhaseSnapshot reports rolling dwell statistics per phase.
func (m *Metrics) PhaseSnapshot() PhaseDwellSnapshot {
	if m == nil {
		return PhaseDwellSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.phases.Snapshot()
}

func (m *Metrics) ResetPhaseWindow() {
	if m == nil {
		return
	}
	m.phases.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
