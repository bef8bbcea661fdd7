package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reflecthealth/callsim/internal/simulator"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeSessionSnapshot MessageType = "session_snapshot"
	TypeCallCompleted   MessageType = "call_completed"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Control actions accepted from clients.
const (
	ActionStart        = "start"
	ActionCancel       = "cancel"
	ActionAutoOn       = "auto_on"
	ActionAutoOff      = "auto_off"
	ActionResetMetrics = "reset_metrics"
	ActionThreshold    = "threshold"
	ActionAudioOn      = "audio_on"
	ActionAudioOff     = "audio_off"
)

var ErrUnsupportedType = errors.New("unsupported message type")

var knownActions = map[string]bool{
	ActionStart:        true,
	ActionCancel:       true,
	ActionAutoOn:       true,
	ActionAutoOff:      true,
	ActionResetMetrics: true,
	ActionThreshold:    true,
	ActionAudioOn:      true,
	ActionAudioOff:     true,
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	// Threshold is required by the threshold action.
	Threshold *float64 `json:"threshold,omitempty"`
	TSMs      int64    `json:"ts_ms,omitempty"`
}

// SessionSnapshot carries the simulator state, flattened next to the type.
type SessionSnapshot struct {
	Type MessageType `json:"type"`
	simulator.Snapshot
}

type CallCompleted struct {
	Type    MessageType       `json:"type"`
	Outcome simulator.Outcome `json:"outcome"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewSessionSnapshot(s simulator.Snapshot) SessionSnapshot {
	return SessionSnapshot{Type: TypeSessionSnapshot, Snapshot: s}
}

func NewCallCompleted(out simulator.Outcome) CallCompleted {
	return CallCompleted{Type: TypeCallCompleted, Outcome: out}
}

func NewErrorEvent(code, source, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Source: source, Detail: detail, Retryable: retryable}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if !knownActions[msg.Action] {
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
		if msg.Action == ActionThreshold && msg.Threshold == nil {
			return nil, errors.New("invalid client_control: threshold action requires threshold")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
