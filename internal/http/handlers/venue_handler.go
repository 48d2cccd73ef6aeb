// Venue HTTP handlers.
//
// This file exposes REST endpoints for venue presence:
//   - POST /venues/{id}/join    (check in, optional coordinate)
//   - POST /venues/{id}/leave   (check out)
//   - GET  /venues/{id}/people  (occupancy view; clients poll this)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jmallia/go-match-backend/internal/services"
)

//
// DTOs
//

// JoinVenueRequest is the JSON payload for checking in at a venue. The
// coordinate is an optional one-shot fix taken at join time; omitting it
// degrades matching to eligibility-only ranking.
type JoinVenueRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// VenuePeopleResponse wraps the occupancy listing.
type VenuePeopleResponse struct {
	People []services.Candidate `json:"people"`
}

//
// Handlers
//

// JoinVenue checks the caller in at the venue, replacing any previous
// presence record (re-join replaces, never accumulates).
func (h *Handlers) JoinVenue(c *gin.Context) {
	venueID := strings.TrimSpace(c.Param("id"))
	if venueID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "venue id required")
		return
	}

	var req JoinVenueRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	// A half-supplied coordinate is treated as absent.
	if (req.Latitude == nil) != (req.Longitude == nil) {
		req.Latitude, req.Longitude = nil, nil
	}

	err := h.matchSvc.JoinVenue(c.Request.Context(), userID(c), venueID, req.Latitude, req.Longitude)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProfileNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// LeaveVenue removes the caller's presence. Also cancels any running
// matching session, since presence is its precondition.
func (h *Handlers) LeaveVenue(c *gin.Context) {
	uid := userID(c)
	h.sessions.Stop(uid)
	if err := h.matchSvc.LeaveVenue(c.Request.Context(), uid); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// VenuePeople returns everyone else present at the venue, nearest first,
// with unknown distances last. Clients poll this view.
func (h *Handlers) VenuePeople(c *gin.Context) {
	venueID := strings.TrimSpace(c.Param("id"))
	if venueID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "venue id required")
		return
	}

	people, err := h.matchSvc.VenuePeople(c.Request.Context(), userID(c), venueID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, VenuePeopleResponse{People: people})
}
