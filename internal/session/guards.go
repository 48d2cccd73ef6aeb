package session

import "sync"

// Guards holds the ephemeral race-prevention flags of one matching session:
// a single match-attempt flag and one reply flag per match. The flags are
// never persisted; they exist to keep overlapping timer callbacks from
// firing the same operation twice within a session.
type Guards struct {
	mu           sync.Mutex
	matchAttempt bool
	replies      map[string]bool
}

// NewGuards returns a cleared guard set.
func NewGuards() *Guards {
	return &Guards{replies: make(map[string]bool)}
}

// TryBeginMatchAttempt claims the match-attempt flag. It returns false when
// another attempt is already in flight.
func (g *Guards) TryBeginMatchAttempt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.matchAttempt {
		return false
	}
	g.matchAttempt = true
	return true
}

// EndMatchAttempt releases the match-attempt flag.
func (g *Guards) EndMatchAttempt() {
	g.mu.Lock()
	g.matchAttempt = false
	g.mu.Unlock()
}

// MatchAttemptInFlight reports whether an attempt currently holds the flag.
func (g *Guards) MatchAttemptInFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.matchAttempt
}

// TryBeginReply claims the reply flag for a match. It returns false when a
// reply for that match is already being generated.
func (g *Guards) TryBeginReply(matchID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.replies[matchID] {
		return false
	}
	g.replies[matchID] = true
	return true
}

// EndReply clears the reply flag for a match. Safe to call when the flag is
// already clear, which is exactly how stale guards from a previous message
// cycle are discarded.
func (g *Guards) EndReply(matchID string) {
	g.mu.Lock()
	delete(g.replies, matchID)
	g.mu.Unlock()
}

// ReplyInFlight reports whether a reply is being generated for the match.
func (g *Guards) ReplyInFlight(matchID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.replies[matchID]
}
