package events

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/scenario"
	"github.com/reflecthealth/callsim/internal/session"
	"github.com/reflecthealth/callsim/internal/simulator"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, message{subject: subject, data: data})
	return nil
}

func TestPublisherEmitsOnlyPhaseChanges(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "demo.", nil)
	sess := &session.Session{ID: "F9-1", ConfidenceScore: 91}
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	p.OnSnapshot(simulator.Snapshot{Seq: 1, Phase: phase.Awaiting, Session: sess, At: at})
	p.OnSnapshot(simulator.Snapshot{Seq: 2, Phase: phase.Awaiting, Session: sess, At: at})
	p.OnSnapshot(simulator.Snapshot{Seq: 3, Phase: phase.ProviderVerifying, Session: sess, At: at})

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "demo.phase", conn.msgs[0].subject)

	var ev PhaseEvent
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &ev))
	assert.Equal(t, phase.ProviderVerifying, ev.Phase)
	assert.Equal(t, phase.Awaiting, ev.Previous)
	assert.Equal(t, "F9-1", ev.SessionID)
	assert.Equal(t, 91, ev.Confidence)
}

func TestPublisherDropsStaleSnapshots(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil)

	p.OnSnapshot(simulator.Snapshot{Seq: 5, Phase: phase.ProviderVerifying})
	// an older snapshot delivered late must not roll the phase back
	p.OnSnapshot(simulator.Snapshot{Seq: 4, Phase: phase.Awaiting})
	p.OnSnapshot(simulator.Snapshot{Seq: 5, Phase: phase.Idle})
	p.OnSnapshot(simulator.Snapshot{Seq: 6, Phase: phase.ProviderVerified})

	require.Len(t, conn.msgs, 2)
	var ev PhaseEvent
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &ev))
	assert.Equal(t, phase.ProviderVerified, ev.Phase)
	assert.Equal(t, phase.ProviderVerifying, ev.Previous)
}

func TestPublisherCompletedCarriesNoPHI(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "", nil)
	p.OnCallCompleted(simulator.Outcome{
		SessionID: "F9-2",
		EdgeCase:  scenario.EdgeWrongNPI,
		Escalated: true,
		Reason:    "Provider Verification Failed",
		Duration:  1500 * time.Millisecond,
		Session:   &session.Session{NPI: "1999999999", MemberID: "BCX-1234567", DOB: "01/14/1986"},
	})

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "callsim.calls.completed", conn.msgs[0].subject)
	body := string(conn.msgs[0].data)
	for _, secret := range []string{"1999999999", "BCX-1234567", "01/14/1986"} {
		assert.False(t, strings.Contains(body, secret), "payload leaks %s", secret)
	}
	var ev CallEvent
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &ev))
	assert.Equal(t, int64(1500), ev.DurationMS)
	assert.Equal(t, "wrong_npi", ev.EdgeCase)
}

func TestPublisherSurvivesPublishErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "x", nil)
	p.OnSnapshot(simulator.Snapshot{Seq: 1, Phase: phase.Awaiting})
	p.OnCallCompleted(simulator.Outcome{SessionID: "F9-3"})
	assert.Empty(t, conn.msgs)
}
