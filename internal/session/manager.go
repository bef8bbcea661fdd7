package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reflecthealth/callsim/internal/phase"
	"github.com/reflecthealth/callsim/internal/retrieval"
	"github.com/reflecthealth/callsim/internal/script"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned by Begin while another session is live.
	ErrBusy = errors.New("a session is already live")
	// ErrNoLive is returned when an update targets a live session and none exists.
	ErrNoLive = errors.New("no live session")
)

// Manager owns the single live session and keeps finished sessions
// queryable until retention expires.
type Manager struct {
	mu        sync.RWMutex
	live      *Session
	finished  map[string]*Session
	retention time.Duration
	onExpire  func(*Session)
	now       func() time.Time
}

func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Manager{
		finished:  make(map[string]*Session),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Begin makes s the live session.
func (m *Manager) Begin(s Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live != nil {
		return nil, ErrBusy
	}
	now := m.now()
	s.Status = StatusLive
	s.StartedAt = now
	s.LastActivityAt = now
	s.EndedAt = nil
	if s.Phase == "" {
		s.Phase = phase.Idle
	}
	m.live = clone(&s)
	return clone(m.live), nil
}

// Update applies fn to the live session under the manager lock.
func (m *Manager) Update(fn func(*Session)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return nil, ErrNoLive
	}
	fn(m.live)
	m.live.LastActivityAt = m.now()
	return clone(m.live), nil
}

// AppendLine adds an incomplete line to the live transcript.
func (m *Manager) AppendLine(speaker script.Speaker, text string, p phase.Phase) (TranscriptLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return TranscriptLine{}, ErrNoLive
	}
	now := m.now()
	line := TranscriptLine{
		ID:      uuid.NewString(),
		Index:   len(m.live.Transcript),
		Speaker: speaker,
		Text:    text,
		Phase:   p,
		At:      now,
	}
	m.live.Transcript = append(m.live.Transcript, line)
	m.live.LastActivityAt = now
	return line, nil
}

// CompleteLine marks a live transcript line as fully spoken.
func (m *Manager) CompleteLine(lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return ErrNoLive
	}
	for i := range m.live.Transcript {
		if m.live.Transcript[i].ID == lineID {
			m.live.Transcript[i].Complete = true
			m.live.LastActivityAt = m.now()
			return nil
		}
	}
	return ErrNotFound
}

// Live returns a deep copy of the live session.
func (m *Manager) Live() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live == nil {
		return nil, false
	}
	return clone(m.live), true
}

// Finish settles the live session's outcome and moves it to the finished
// set.
func (m *Manager) Finish(escalated bool, reason string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return nil, ErrNoLive
	}
	s := m.live
	now := m.now()
	s.Escalated = escalated
	s.EscalationReason = reason
	s.Status = StatusResolved
	if escalated {
		s.Status = StatusEscalated
	}
	s.EndedAt = &now
	s.LastActivityAt = now
	m.finished[s.ID] = s
	m.live = nil
	return clone(s), nil
}

// Clear discards the live session without recording it. It reports whether
// there was one.
func (m *Manager) Clear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	had := m.live != nil
	m.live = nil
	return had
}

// Get returns the live or a finished session by id.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live != nil && m.live.ID == sessionID {
		return clone(m.live), nil
	}
	s, ok := m.finished[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Recent returns finished sessions, newest first. limit <= 0 returns all.
func (m *Manager) Recent(limit int) []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.finished))
	for _, s := range m.finished {
		out = append(out, clone(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(*out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live != nil {
		return 1
	}
	return 0
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireFinished()
			}
		}
	}()
}

func (m *Manager) expireFinished() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.finished {
		if s.EndedAt == nil || now.Sub(*s.EndedAt) < m.retention {
			continue
		}
		expired = append(expired, s)
		delete(m.finished, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	c.APICalls = append([]retrieval.Call(nil), s.APICalls...)
	c.Transcript = append([]TranscriptLine(nil), s.Transcript...)
	if s.StructuredResponse != nil {
		resp := *s.StructuredResponse
		resp.Fields = append([]retrieval.Field(nil), s.StructuredResponse.Fields...)
		c.StructuredResponse = &resp
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}
