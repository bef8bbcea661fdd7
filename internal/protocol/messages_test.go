package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/simulator"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","action":"cancel","ts_ms":456}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionCancel {
		t.Fatalf("Action = %q, want %q", control.Action, ActionCancel)
	}
	if control.TSMs != 456 {
		t.Fatalf("TSMs = %d, want %d", control.TSMs, 456)
	}
}

func TestParseClientMessageThreshold(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"threshold","threshold":72.5}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control := msg.(ClientControl)
	if control.Threshold == nil || *control.Threshold != 72.5 {
		t.Fatalf("Threshold = %v, want 72.5", control.Threshold)
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"threshold"}`)); err == nil {
		t.Fatalf("expected error for threshold without value")
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_control","action":"approve_task_step"}`))
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Fatalf("error = %v, want unknown action", err)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestSessionSnapshotIsFlattened(t *testing.T) {
	raw, err := json.Marshal(NewSessionSnapshot(simulator.Snapshot{Seq: 7, Phase: phase.DataRetrieving, Threshold: 85}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["type"] != string(TypeSessionSnapshot) || got["phase"] != "data-retrieving" || got["seq"] != float64(7) {
		t.Fatalf("snapshot payload = %s", raw)
	}
}

func BenchmarkParseClientMessageControl(b *testing.B) {
	raw := []byte(`{"type":"client_control","action":"threshold","threshold":80,"ts_ms":123456}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
	}
}
