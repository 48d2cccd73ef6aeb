// Message HTTP handlers.
//
// This file exposes REST endpoints for match conversations:
//   - POST /matches/{id}/messages  (append a human message; the automated
//     counterpart reply follows asynchronously via the orchestrator)
//   - GET  /matches/{id}/messages  (ordered conversation; clients poll this)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, match, key), the handler returns the recorded
// message and sets `Idempotency-Replayed: true`. Safe retries therefore never
// append the same message twice.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/http/middleware"
	"github.com/jmallia/go-match-backend/internal/repo"
	"github.com/jmallia/go-match-backend/internal/services"
	"github.com/jmallia/go-match-backend/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message. Content is
// normalized by the handler before reaching the service layer.
type PostMessageRequest struct {
	// Content is the message body. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a newly appended message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains the conversation for a match, oldest first.
type ListMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete ReplyService for a configured
// length limit. If unavailable, it returns a conservative fallback.
func discoverMaxContentRunes(replySvc ReplyService) int {
	const fallback = 2000
	if rs, ok := replySvc.(*services.ReplyService); ok {
		if rs.MaxContentRunes > 0 {
			return rs.MaxContentRunes
		}
	}
	return fallback
}

//
// Handlers
//

// PostMessage appends a human-authored message to a match the caller
// participates in. Supports idempotent retries via the Idempotency-Key
// header.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	matchID := c.Param("id")

	if _, err := uuid.Parse(matchID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "match id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxContentRunes(h.replySvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	if idemKey != "" {
		if svc, okSvc := h.replySvc.(*services.ReplyService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, matchID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(ctx, svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, PostMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	m, err := h.replySvc.SendMessage(ctx, currentUser, matchID, content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "match not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this match")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.replySvc.(*services.ReplyService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, matchID, idemKey, m.ID, http.StatusOK, ttl)
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{Message: m})
}

// ListMessages returns the conversation for a match, oldest first. The
// optional limit query parameter caps the number of messages returned.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	matchID := c.Param("id")

	if _, err := uuid.Parse(matchID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "match id must be a UUID")
		return
	}

	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit < 0 {
		limit = 0
	}

	msgs, err := h.replySvc.Messages(ctx, userID(c), matchID, limit)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "match not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this match")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: msgs})
}

// GetMatch returns one match the caller participates in, including its
// icebreaker opening line.
func (h *Handlers) GetMatch(c *gin.Context) {
	matchID := c.Param("id")
	if _, err := uuid.Parse(matchID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "match id must be a UUID")
		return
	}

	m, err := h.matchSvc.MatchForUser(c.Request.Context(), userID(c), matchID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "match not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this match")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, m)
}
