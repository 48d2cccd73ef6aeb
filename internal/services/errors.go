// Package services defines the business logic for venue presence, match
// formation, and chat replies. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Profile- and presence-related errors.
var (
	// ErrProfileNotFound indicates that the caller has no profile row at all.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileIncomplete is returned when the caller's profile is missing
	// gender or seeking fields. Matching cannot run; the caller must be
	// redirected to complete profile setup first.
	ErrProfileIncomplete = errors.New("profile incomplete")

	// ErrNotPresent is returned when an operation requires the caller to be
	// checked in at a venue and they are not.
	ErrNotPresent = errors.New("not present at a venue")
)

// Match-related errors.
var (
	// ErrMatchNotFound indicates that the requested match does not exist or is
	// not accessible to the current user.
	ErrMatchNotFound = errors.New("match not found")

	// ErrNotParticipant is returned when a user attempts to act on a match
	// they are not part of.
	ErrNotParticipant = errors.New("not a participant of this match")

	// ErrSelfMatch is returned when a match is attempted between a user and
	// themselves.
	ErrSelfMatch = errors.New("cannot match a user with themselves")
)

// Message-related errors.
var (
	// ErrEmptyContent is returned when a message body is empty after trimming.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when a message body exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message content too long")
)
