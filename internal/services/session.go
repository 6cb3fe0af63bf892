package services

import (
	"sync"
	"time"

	"github.com/google/logger"

	"github.com/noah-nozomu/gacha-app/internal/models"
)

// ScreenState is the kiosk screen a visit is currently on.
type ScreenState string

const (
	ScreenStart   ScreenState = "start"
	ScreenRolling ScreenState = "rolling"
	ScreenResult  ScreenState = "result"
)

// VisitSession is the transient state of one kiosk visit: which screen
// it is on, the drawn prize cached for the result screen, and whether a
// name was already registered for that result. It is never persisted;
// the stores remain the only state of record.
type VisitSession struct {
	State        ScreenState
	Result       models.PrizeEntry
	HasResult    bool
	Registered   bool
	LastActivity time.Time
}

// SessionService tracks visit sessions by their cookie ID.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*VisitSession
	ttl      time.Duration
}

// NewSessionService creates a session tracker. Sessions idle longer
// than ttl are removed by CleanUpInactiveSessions.
func NewSessionService(ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionService{
		sessions: make(map[string]*VisitSession),
		ttl:      ttl,
	}
}

// Get returns the session for an ID, creating a fresh one on the start
// screen if it does not exist.
func (s *SessionService) Get(sessionID string) *VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		session = &VisitSession{State: ScreenStart}
		s.sessions[sessionID] = session
	}
	session.LastActivity = time.Now()
	return session
}

// BeginRoll moves a session from start to rolling and clears the
// registered flag, which only resets when leaving start.
func (s *SessionService) BeginRoll(sessionID string) *VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		session = &VisitSession{}
		s.sessions[sessionID] = session
	}
	session.State = ScreenRolling
	session.Registered = false
	session.HasResult = false
	session.Result = models.PrizeEntry{}
	session.LastActivity = time.Now()
	return session
}

// HoldResult caches the drawn prize on a rolling session. The screen
// transition to result happens after the fixed reveal delay; the draw
// itself is already committed by then.
func (s *SessionService) HoldResult(sessionID string, prize models.PrizeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.Result = prize
		session.HasResult = true
		session.LastActivity = time.Now()
	}
}

// Reveal moves a rolling session with a cached result to the result
// screen. Without a cached result it falls back to start.
func (s *SessionService) Reveal(sessionID string) *VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		session = &VisitSession{State: ScreenStart}
		s.sessions[sessionID] = session
	}
	if session.HasResult {
		session.State = ScreenResult
	} else {
		session.State = ScreenStart
	}
	session.LastActivity = time.Now()
	return session
}

// MarkRegistered records that this visit already registered a name for
// the current result.
func (s *SessionService) MarkRegistered(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.Registered = true
		session.LastActivity = time.Now()
	}
}

// Restart returns a session to the start screen, dropping the cached
// result.
func (s *SessionService) Restart(sessionID string) *VisitSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		session = &VisitSession{}
		s.sessions[sessionID] = session
	}
	session.State = ScreenStart
	session.HasResult = false
	session.Result = models.PrizeEntry{}
	session.LastActivity = time.Now()
	return session
}

// CleanUpInactiveSessions removes sessions idle past the TTL.
func (s *SessionService) CleanUpInactiveSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, session := range s.sessions {
		if time.Since(session.LastActivity) > s.ttl {
			delete(s.sessions, id)
			logger.Infof("Removed inactive session %s", id)
		}
	}
}
