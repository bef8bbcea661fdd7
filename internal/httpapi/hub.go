package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reflecthealth/callsim/internal/observability"
	"github.com/reflecthealth/callsim/internal/protocol"
	"github.com/reflecthealth/callsim/internal/simulator"
)

// hub fans simulator events out to websocket clients. It is registered as
// a simulator observer, so broadcasts never block playback.
type hub struct {
	metrics *observability.Metrics

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	out    chan any
	cancel context.CancelFunc
}

func newHub(metrics *observability.Metrics) *hub {
	return &hub{metrics: metrics, clients: make(map[*wsClient]struct{})}
}

func (h *hub) OnSnapshot(s simulator.Snapshot) {
	h.broadcast(protocol.NewSessionSnapshot(s))
}

func (h *hub) OnCallCompleted(o simulator.Outcome) {
	h.broadcast(protocol.NewCallCompleted(o))
}

func (h *hub) broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- msg:
		default:
			// Slow clients miss intermediate snapshots; the next one carries full state.
			h.metrics.ObserveWSMessage("dropped", messageTypeOf(msg))
		}
	}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.cancel()
	}
}

func (s *Server) handleSimWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &wsClient{out: make(chan any, 256), cancel: cancel}
	client.out <- protocol.NewSessionSnapshot(s.sim.Snapshot())
	s.hub.add(client)
	defer s.hub.remove(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case msg := <-client.out:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				s.metrics.ObserveWSMessage("outbound", messageTypeOf(msg))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(client, protocol.NewErrorEvent("invalid_client_message", "gateway", err.Error(), false))
			continue
		}
		ctrl, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.ObserveWSMessage("inbound", string(ctrl.Type))
		if err := s.applyControl(ctrl); err != nil {
			s.enqueue(client, protocol.NewErrorEvent("control_rejected", "simulator", err.Error(), false))
		}
	}

	cancel()
	<-writerDone
}

// enqueue keeps websocket writes single-threaded; drops if the queue is full.
func (s *Server) enqueue(c *wsClient, msg any) {
	select {
	case c.out <- msg:
	default:
		s.metrics.ObserveWSMessage("dropped", messageTypeOf(msg))
	}
}

func (s *Server) applyControl(ctrl protocol.ClientControl) error {
	switch ctrl.Action {
	case protocol.ActionStart:
		s.sim.Start()
	case protocol.ActionCancel:
		s.sim.Cancel()
	case protocol.ActionAutoOn:
		s.sim.SetAutoRepeat(true)
	case protocol.ActionAutoOff:
		s.sim.SetAutoRepeat(false)
	case protocol.ActionResetMetrics:
		s.sim.ResetMetrics()
	case protocol.ActionThreshold:
		return s.sim.SetConfidenceThreshold(*ctrl.Threshold)
	case protocol.ActionAudioOn:
		s.sim.SetAudioEnabled(true)
	case protocol.ActionAudioOff:
		s.sim.SetAudioEnabled(false)
	}
	return nil
}

func messageTypeOf(v any) string {
	switch m := v.(type) {
	case protocol.ClientControl:
		return string(m.Type)
	case protocol.SessionSnapshot:
		return string(m.Type)
	case protocol.CallCompleted:
		return string(m.Type)
	case protocol.SystemEvent:
		return string(m.Type)
	case protocol.ErrorEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}
