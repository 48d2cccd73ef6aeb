package session

import (
	"context"
	"errors"
	"sync"

	"github.com/jmallia/go-match-backend/internal/repo"
	"github.com/jmallia/go-match-backend/internal/services"
)

// ErrNoSession is returned when the caller has no active matching session.
var ErrNoSession = errors.New("no active matching session")

// Manager owns the active matching sessions, one per user. Starting is
// idempotent; stopping cancels the session's timers so nothing keeps polling
// or escalating after the user navigates away.
type Manager struct {
	matcher *services.MatchService
	cfg     Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager. Zero cfg fields fall back to the reference
// cadences.
func NewManager(matcher *services.MatchService, cfg Config) *Manager {
	return &Manager{
		matcher:  matcher,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Start begins (or returns the already-running) matching session for userID.
// Preconditions: the profile must exist and be complete, and the user must be
// checked in at a venue. Both are re-verified here rather than trusted from
// the client.
func (m *Manager) Start(ctx context.Context, userID string) (Snapshot, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		snap := s.Snapshot()
		if snap.State != StateStopped {
			m.mu.Unlock()
			return snap, nil
		}
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	p, err := repo.GetProfile(ctx, m.matcher.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Snapshot{}, services.ErrProfileNotFound
		}
		return Snapshot{}, err
	}
	if !p.Complete() {
		return Snapshot{}, services.ErrProfileIncomplete
	}

	rec, err := m.matcher.Presence.Get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if rec == nil {
		return Snapshot{}, services.ErrNotPresent
	}

	s := newSession(userID, rec.VenueID, m.cfg, m.matcher)

	m.mu.Lock()
	// Re-check under the lock; a concurrent Start may have won.
	if existing, ok := m.sessions[userID]; ok && existing.Snapshot().State != StateStopped {
		m.mu.Unlock()
		return existing.Snapshot(), nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	m.sessions[userID] = s
	m.mu.Unlock()

	go s.run(runCtx)
	return s.Snapshot(), nil
}

// Status reports the caller's session state, or ErrNoSession.
func (m *Manager) Status(userID string) (Snapshot, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNoSession
	}
	return s.Snapshot(), nil
}

// Stop cancels the caller's session and forgets it. Stopping a session that
// does not exist is a no-op.
func (m *Manager) Stop(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok && s.cancel != nil {
		s.cancel()
		<-s.Done()
	}
}

// StopAll cancels every active session. Used during server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		if s.cancel != nil {
			s.cancel()
			<-s.Done()
		}
	}
}
