// Handler wiring.
//
// Handlers are transport-thin: they validate input, call application services
// or the session manager, and translate results into HTTP responses. The
// caller is identified by the X-User-ID header; authentication proper is an
// upstream concern.
package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/services"
	"github.com/jmallia/go-match-backend/internal/session"
)

//
// Service contracts (context-aware)
//

// MatchService defines the venue/matching operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type MatchService interface {
	// JoinVenue checks the caller in at a venue with an optional coordinate.
	JoinVenue(ctx context.Context, userID, venueID string, lat, lng *float64) error
	// LeaveVenue removes the caller's presence.
	LeaveVenue(ctx context.Context, userID string) error
	// VenuePeople returns everyone else present at the venue, nearest first.
	VenuePeople(ctx context.Context, requesterID, venueID string) ([]services.Candidate, error)
	// MatchesForUser lists the caller's matches.
	MatchesForUser(ctx context.Context, userID string) ([]domain.Match, error)
	// MatchForUser fetches one match the caller participates in.
	MatchForUser(ctx context.Context, userID, matchID string) (*domain.Match, error)
}

// ReplyService defines the message operations consumed by HTTP handlers.
type ReplyService interface {
	// SendMessage appends a human message to a match.
	SendMessage(ctx context.Context, userID, matchID, content string) (*domain.Message, error)
	// Messages returns a match's conversation, oldest first.
	Messages(ctx context.Context, userID, matchID string, limit int) ([]domain.Message, error)
}

// SessionManager defines the matching-session lifecycle consumed by HTTP
// handlers.
type SessionManager interface {
	// Start begins (or returns) the caller's matching session.
	Start(ctx context.Context, userID string) (session.Snapshot, error)
	// Status reports the caller's session state.
	Status(userID string) (session.Snapshot, error)
	// Stop cancels the caller's session.
	Stop(userID string)
}

// Handlers groups the HTTP endpoints for venues, matching, and messages.
type Handlers struct {
	matchSvc MatchService
	replySvc ReplyService
	sessions SessionManager
}

// New constructs a Handlers instance bound to the given collaborators.
func New(matchSvc MatchService, replySvc ReplyService, sessions SessionManager) *Handlers {
	return &Handlers{matchSvc: matchSvc, replySvc: replySvc, sessions: sessions}
}

// userID extracts the caller's user id from Gin context (set by upstream
// middleware). If absent, it falls back to the "X-User-ID" header, and
// finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}
