// Matching HTTP handlers.
//
// This file exposes REST endpoints for the matching session lifecycle and
// the caller's matches:
//   - POST   /matching/start  (begin a session; idempotent)
//   - GET    /matching/status (session state + match id once formed; polled)
//   - DELETE /matching        (cancel on navigation-away)
//   - GET    /matches         (the caller's matches)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/services"
	"github.com/jmallia/go-match-backend/internal/session"
)

// ListMatchesResponse wraps the caller's matches.
type ListMatchesResponse struct {
	Matches []domain.Match `json:"matches"`
}

// StartMatching begins a matching session for the caller. Starting twice
// returns the running session unchanged. The caller must have a complete
// profile and be present at a venue.
func (h *Handlers) StartMatching(c *gin.Context) {
	snap, err := h.sessions.Start(c.Request.Context(), userID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProfileNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
		case errors.Is(err, services.ErrProfileIncomplete):
			fail(c, http.StatusConflict, ErrCodeProfileIncomplete, "complete your profile before matching")
		case errors.Is(err, services.ErrNotPresent):
			fail(c, http.StatusConflict, ErrCodeNotPresent, "join a venue before matching")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusAccepted, snap)
}

// MatchingStatus reports the caller's session state. Clients poll this until
// the state is "matched" and then navigate to the chat, or until "stopped".
func (h *Handlers) MatchingStatus(c *gin.Context) {
	snap, err := h.sessions.Status(userID(c))
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			fail(c, http.StatusNotFound, ErrCodeNoSession, "no active matching session")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, snap)
}

// StopMatching cancels the caller's session. Cancelling when no session is
// running is a no-op.
func (h *Handlers) StopMatching(c *gin.Context) {
	h.sessions.Stop(userID(c))
	noContent(c)
}

// ListMatches returns the caller's matches, most recent first.
func (h *Handlers) ListMatches(c *gin.Context) {
	matches, err := h.matchSvc.MatchesForUser(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMatchesResponse{Matches: matches})
}
