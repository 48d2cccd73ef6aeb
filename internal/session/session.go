// Package session implements the per-user matching session: a cooperative
// set of cancellable timers that polls for eligible candidates, escalates to
// a forced match after a bounded wait, and schedules automated chat replies.
//
// Each session owns its own guards and timers; nothing here is shared across
// sessions. The persistent store remains the source of truth for "does a
// match exist" — every tick re-checks it rather than trusting local state.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmallia/go-match-backend/internal/services"
)

// State is the lifecycle phase of a matching session.
type State string

const (
	// StateWaiting: polling for eligible candidates, deadline armed.
	StateWaiting State = "waiting"
	// StateEscalating: the deadline elapsed and a forced match is being
	// attempted with relaxed filtering.
	StateEscalating State = "escalating"
	// StateMatched: a match exists; timers are stopped.
	StateMatched State = "matched"
	// StateStopped: the session was cancelled before a match formed.
	StateStopped State = "stopped"
)

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	UserID  string `json:"user_id"`
	VenueID string `json:"venue_id"`
	State   State  `json:"state"`
	MatchID string `json:"match_id,omitempty"`
}

// Session runs the matching loop for one user at one venue.
type Session struct {
	userID  string
	venueID string
	cfg     Config
	matcher *services.MatchService
	guards  *Guards

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	matchID   string
	startedAt time.Time
	deadline  time.Time
	escalated bool
}

// newSession builds a session in Waiting state with its forced-match
// deadline drawn uniformly from [ForceAfterMin, ForceAfterMax).
func newSession(userID, venueID string, cfg Config, matcher *services.MatchService) *Session {
	now := time.Now()
	spread := cfg.ForceAfterMax - cfg.ForceAfterMin
	deadline := now.Add(cfg.ForceAfterMin + time.Duration(rand.Int64N(int64(spread))))
	return &Session{
		userID:    userID,
		venueID:   venueID,
		cfg:       cfg,
		matcher:   matcher,
		guards:    NewGuards(),
		done:      make(chan struct{}),
		state:     StateWaiting,
		startedAt: now,
		deadline:  deadline,
	}
}

// Snapshot returns the current externally visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		UserID:  s.userID,
		VenueID: s.venueID,
		State:   s.state,
		MatchID: s.matchID,
	}
}

// Guards exposes the session's guard set.
func (s *Session) Guards() *Guards { return s.guards }

// Done is closed when the session's loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// run drives the poll and escalation tickers until a match forms or the
// context is cancelled. Each tick is independent and idempotent; a tick that
// overlaps a still-settling attempt is skipped by the guard, not queued.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	esc := time.NewTicker(s.cfg.EscalateTick)
	defer esc.Stop()

	// First attempt immediately rather than waiting a full interval.
	if s.poll(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.setStopped()
			return
		case <-poll.C:
			if s.poll(ctx) {
				return
			}
		case <-esc.C:
			if s.checkDeadline(ctx) {
				return
			}
		}
	}
}

// poll runs one normal matching attempt. Returns true when the session has
// reached a terminal state and the loop should exit.
func (s *Session) poll(ctx context.Context) bool {
	if !s.guards.TryBeginMatchAttempt() {
		return false
	}
	defer s.guards.EndMatchAttempt()

	// The store is the source of truth: the counterpart's session may have
	// paired us since the last tick.
	if m, err := s.matcher.LatestMatchSince(ctx, s.userID, s.startedAt); err == nil && m != nil {
		s.setMatched(m.ID)
		return true
	}

	candidates, err := s.matcher.EligibleCandidates(ctx, s.userID, s.venueID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProfileIncomplete), errors.Is(err, services.ErrNotPresent):
			// Blocking preconditions; the session cannot progress.
			log.Warn().Err(err).Str("user_id", s.userID).Msg("matching session blocked")
			s.setStopped()
			return true
		default:
			// Transient; the next tick retries.
			log.Warn().Err(err).Str("user_id", s.userID).Msg("candidate discovery failed")
			return false
		}
	}
	if len(candidates) == 0 {
		return false
	}

	m, _, err := s.matcher.FormMatch(ctx, s.userID, candidates[0].Profile.ID, false)
	if err != nil {
		log.Warn().Err(err).Str("user_id", s.userID).Msg("match formation failed")
		return false
	}
	s.setMatched(m.ID)
	return true
}

// checkDeadline fires the forced-match path once the drawn deadline has
// elapsed. It only proceeds when the session is still Waiting and no other
// attempt holds the guard; a failed escalation re-arms the deadline on the
// poll cadence instead of spinning.
func (s *Session) checkDeadline(ctx context.Context) bool {
	s.mu.Lock()
	due := s.state == StateWaiting && !s.escalated && !time.Now().Before(s.deadline)
	s.mu.Unlock()
	if !due {
		return false
	}

	if !s.guards.TryBeginMatchAttempt() {
		return false
	}
	defer s.guards.EndMatchAttempt()

	// The counterpart's session may have paired us since the last poll tick;
	// adopt that match instead of forcing a redundant one.
	if m, err := s.matcher.LatestMatchSince(ctx, s.userID, s.startedAt); err == nil && m != nil {
		s.setMatched(m.ID)
		return true
	}

	s.setState(StateEscalating)

	candidate, err := s.matcher.RelaxedCandidate(ctx, s.userID, s.venueID)
	if err != nil || candidate == nil {
		if err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("forced-match lookup failed")
		}
		s.rearm()
		return false
	}

	m, _, err := s.matcher.FormMatch(ctx, s.userID, candidate.ID, true)
	if err != nil {
		log.Warn().Err(err).Str("user_id", s.userID).Msg("forced match failed")
		s.rearm()
		return false
	}

	s.mu.Lock()
	s.escalated = true
	s.mu.Unlock()
	s.setMatched(m.ID)
	return true
}

// rearm returns an unsuccessful escalation to Waiting and pushes the
// deadline out one poll interval, so the next re-attempt runs on the poll
// cadence rather than every escalation tick.
func (s *Session) rearm() {
	s.mu.Lock()
	s.state = StateWaiting
	s.deadline = time.Now().Add(s.cfg.PollInterval)
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setMatched(matchID string) {
	s.mu.Lock()
	s.state = StateMatched
	s.matchID = matchID
	s.mu.Unlock()
	log.Info().Str("user_id", s.userID).Str("match_id", matchID).Msg("session matched")
}

func (s *Session) setStopped() {
	s.mu.Lock()
	if s.state != StateMatched {
		s.state = StateStopped
	}
	s.mu.Unlock()
}
