// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Match
// model, including the race-tolerant conditional insert that underpins
// exactly-once pairing.
//
// Error semantics:
//   - When a match is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound for convenience).
//   - A duplicate pair insert is NOT an error: CreateMatch reads the
//     existing row back and reports created=false.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmallia/go-match-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across layers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateMatch inserts the match row for the unordered pair {x, y}.
//
// The pair is normalized into canonical order before the insert, and the
// insert carries ON CONFLICT DO NOTHING on the (user_a_id, user_b_id)
// unique index. When another session created the row first — both sides of
// a pair can attempt creation within the same poll window — the conflict is
// swallowed, the winner's row is read back, and created=false is returned.
// The operation is therefore idempotent from the caller's point of view.
func CreateMatch(ctx context.Context, db *gorm.DB, x, y string) (m *domain.Match, created bool, err error) {
	a, b := domain.CanonicalPair(x, y)
	row := &domain.Match{
		ID:        uuid.NewString(),
		UserAID:   a,
		UserBID:   b,
		CreatedAt: time.Now().UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race: the other side's insert won. Read-back is success.
		existing, err := GetMatchByPair(ctx, db, x, y)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return row, true, nil
}

// SetIcebreaker attaches the opening line to a freshly created match. It is
// part of match creation, not a general update path: only the creating
// session calls it, exactly once.
func SetIcebreaker(ctx context.Context, db *gorm.DB, matchID, line string) error {
	res := db.WithContext(ctx).
		Model(&domain.Match{}).
		Where("id = ?", matchID).
		Update("icebreaker", line)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMatch fetches a match by id, or ErrNotFound.
func GetMatch(ctx context.Context, db *gorm.DB, id string) (*domain.Match, error) {
	var m domain.Match
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMatchByPair fetches the match for the unordered pair {x, y}, or
// ErrNotFound. Thanks to canonical ordering this is a single lookup
// regardless of argument order.
func GetMatchByPair(ctx context.Context, db *gorm.DB, x, y string) (*domain.Match, error) {
	a, b := domain.CanonicalPair(x, y)
	var m domain.Match
	err := db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", a, b).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// HasMatch reports whether the unordered pair {x, y} is already matched.
func HasMatch(ctx context.Context, db *gorm.DB, x, y string) (bool, error) {
	_, err := GetMatchByPair(ctx, db, x, y)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMatchesForUser returns all matches involving userID, most recent
// first.
func ListMatchesForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Match, error) {
	var out []domain.Match
	err := db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// LatestMatchSince returns the newest match involving userID created at or
// after the given instant, or ErrNotFound. Matching sessions use it to
// observe a pairing created by the counterpart's session.
func LatestMatchSince(ctx context.Context, db *gorm.DB, userID string, since time.Time) (*domain.Match, error) {
	var m domain.Match
	err := db.WithContext(ctx).
		Where("(user_a_id = ? OR user_b_id = ?) AND created_at >= ?", userID, userID, since).
		Order("created_at desc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MatchedUserIDs returns the set of user ids already paired with userID.
// Used by the eligibility filter to exclude existing matches in one query.
func MatchedUserIDs(ctx context.Context, db *gorm.DB, userID string) (map[string]struct{}, error) {
	matches, err := ListMatchesForUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(matches))
	for i := range matches {
		if other, ok := matches[i].OtherUserID(userID); ok {
			out[other] = struct{}{}
		}
	}
	return out, nil
}
