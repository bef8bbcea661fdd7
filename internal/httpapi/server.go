package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/reflecthealth/callsim/internal/aggregate"
	"github.com/reflecthealth/callsim/internal/calllog"
	"github.com/reflecthealth/callsim/internal/config"
	"github.com/reflecthealth/callsim/internal/observability"
	"github.com/reflecthealth/callsim/internal/script"
	"github.com/reflecthealth/callsim/internal/simulator"
)

// Simulator is the playback surface the API drives.
type Simulator interface {
	Start() bool
	Cancel() bool
	IsRunning() bool
	SetAutoRepeat(on bool)
	AutoRepeat() bool
	SetAudioEnabled(on bool)
	SetConfidenceThreshold(v float64) error
	Snapshot() simulator.Snapshot
	Metrics() aggregate.Totals
	ResetMetrics()
	Templates() *script.Library
	AddObserver(o simulator.Observer)
}

// ConversationFactory builds a free-form conversation for one request.
type ConversationFactory func(cfg simulator.ConversationConfig) (*simulator.Conversation, error)

type Server struct {
	cfg           config.Config
	sim           Simulator
	calls         calllog.Store
	conversations ConversationFactory
	metrics       *observability.Metrics
	hub           *hub
	upgrader      websocket.Upgrader
}

func New(cfg config.Config, sim Simulator, calls calllog.Store, metrics *observability.Metrics) *Server {
	if calls == nil {
		calls = calllog.NewInMemoryStore(0)
	}
	s := &Server{
		cfg:     cfg,
		sim:     sim,
		calls:   calls,
		metrics: metrics,
		hub:     newHub(metrics),
		conversations: func(c simulator.ConversationConfig) (*simulator.Conversation, error) {
			return simulator.NewConversation(c, simulator.ConversationOptions{})
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the simulator unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sim.AddObserver(s.hub)
	return s
}

// SetConversationFactory replaces how POST /v1/conversations builds runs.
func (s *Server) SetConversationFactory(f ConversationFactory) {
	if f != nil {
		s.conversations = f
	}
}

// Close disconnects websocket clients.
func (s *Server) Close() { s.hub.closeAll() }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1/sim", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/calls", s.handleStartCall)
		r.Post("/cancel", s.handleCancel)
		r.Put("/auto", s.handleAutoRepeat)
		r.Put("/audio", s.handleAudio)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/metrics/reset", s.handleResetMetrics)
		r.Put("/threshold", s.handleThreshold)
		r.Get("/templates", s.handleTemplates)
		r.Get("/ws", s.handleSimWS)
	})
	r.Get("/v1/calls", s.handleListCalls)
	r.Get("/v1/calls/{id}", s.handleGetCall)
	r.Post("/v1/conversations", s.handleConversation)
	r.Get("/v1/perf/phases", s.handlePerfPhases)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"voice_provider": s.cfg.VoiceProvider,
		"call_log_mode":  s.callLogMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"running": s.sim.IsRunning(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sim.Snapshot())
}

func (s *Server) handleStartCall(w http.ResponseWriter, _ *http.Request) {
	if !s.sim.Start() {
		respondJSON(w, http.StatusOK, map[string]any{"started": false, "reason": "call already live"})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"cancelled": s.sim.Cancel()})
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", `body must be {"enabled": true|false}`)
		return false, false
	}
	return *req.Enabled, true
}

func (s *Server) handleAutoRepeat(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	s.sim.SetAutoRepeat(on)
	respondJSON(w, http.StatusOK, map[string]any{"auto_repeat": s.sim.AutoRepeat()})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	on, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	s.sim.SetAudioEnabled(on)
	respondJSON(w, http.StatusOK, map[string]any{"audio_enabled": on})
}

type metricsResponse struct {
	aggregate.Totals
	Calls          int     `json:"calls"`
	DeflectionRate float64 `json:"deflection_rate"`
}

func newMetricsResponse(t aggregate.Totals) metricsResponse {
	return metricsResponse{Totals: t, Calls: t.Calls(), DeflectionRate: t.DeflectionRate()}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, newMetricsResponse(s.sim.Metrics()))
}

func (s *Server) handleResetMetrics(w http.ResponseWriter, _ *http.Request) {
	s.sim.ResetMetrics()
	respondJSON(w, http.StatusOK, newMetricsResponse(s.sim.Metrics()))
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Threshold == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", `body must be {"threshold": number}`)
		return
	}
	if err := s.sim.SetConfidenceThreshold(*req.Threshold); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_threshold", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"confidence_threshold": *req.Threshold})
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	lib := s.sim.Templates()
	respondJSON(w, http.StatusOK, map[string]any{
		"names":     lib.Names(),
		"templates": lib.Blueprints(),
	})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	records, err := s.calls.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "call_log_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []calllog.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": records})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}
	record, err := s.calls.Get(r.Context(), id)
	if errors.Is(err, calllog.ErrNotFound) {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "call_log_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, record)
}

type conversationRequest struct {
	Scenario   simulator.ConversationScenario `json:"scenario"`
	StressMode bool                           `json:"stress_mode"`
	Utterances []string                       `json:"utterances"`
	MaxTurns   int                            `json:"max_turns"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Utterances) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "utterances are required")
		return
	}
	conv, err := s.conversations(simulator.ConversationConfig{
		Scenario:   req.Scenario,
		StressMode: req.StressMode,
		Utterances: req.Utterances,
		MaxTurns:   req.MaxTurns,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_scenario", err.Error())
		return
	}
	res, err := conv.Run(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		respondError(w, http.StatusInternalServerError, "conversation_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handlePerfPhases(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"phases":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.PhaseSnapshot())
}

func (s *Server) callLogMode() string {
	switch s.calls.(type) {
	case *calllog.PostgresStore:
		return "postgres"
	case *calllog.InMemoryStore:
		return "in-memory"
	default:
		return "custom"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
