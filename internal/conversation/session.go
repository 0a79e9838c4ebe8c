package conversation

import (
	"sync"
	"time"

	"github.com/eternisai/taskbot/internal/metrics"
)

// Flow names a multi-step command interaction.
type Flow string

const (
	FlowAddTask     Flow = "add_task"
	FlowSetReminder Flow = "set_reminder"
)

// Step is the position inside a flow. Both flows have a single input step.
type Step string

const StepAwaitingInput Step = "awaiting_input"

// Session is the per-chat record of a flow waiting for its next message.
type Session struct {
	ChatID    int64
	Flow      Flow
	Step      Step
	ExpiresAt time.Time
}

// SessionStore holds at most one session per chat. Sessions expire after ttl;
// an expired session is never returned.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]Session
}

// NewSessionStore creates an empty store.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]Session),
	}
}

// Begin starts flow for the chat, replacing any session it already had.
func (s *SessionStore) Begin(chatID int64, flow Flow) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := Session{
		ChatID:    chatID,
		Flow:      flow,
		Step:      StepAwaitingInput,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.sessions[chatID] = session
	s.updateGauge()
	return session
}

// Get returns the chat's live session.
func (s *SessionStore) Get(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(chatID)
}

// Take returns the chat's live session and removes it.
func (s *SessionStore) Take(chatID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.live(chatID)
	if ok {
		delete(s.sessions, chatID)
		s.updateGauge()
	}
	return session, ok
}

// Sweep drops expired sessions and returns how many were dropped.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for chatID, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, chatID)
			removed++
		}
	}
	if removed > 0 {
		s.updateGauge()
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// live must be called with mu held.
func (s *SessionStore) live(chatID int64) (Session, bool) {
	session, ok := s.sessions[chatID]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(session.ExpiresAt) {
		delete(s.sessions, chatID)
		s.updateGauge()
		return Session{}, false
	}
	return session, true
}

func (s *SessionStore) updateGauge() {
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}
