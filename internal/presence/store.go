// Package presence implements the Redis-backed presence store: which users
// are currently at which venue, with an optional coordinate captured at
// join time.
//
// Layout:
//   - presence:user:<user_id>      → JSON Record, with TTL (authoritative)
//   - venue:<venue_id>:presence    → hash of user_id → JSON Record
//
// The per-user key carries the liveness TTL; the venue hash is the fast
// occupancy listing. Listing lazily evicts hash entries whose per-user key
// has expired or moved to another venue, so a crashed client disappears
// after the TTL without any background sweeper.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is one user's active presence. One record per user: joining a
// venue replaces any previous presence, it never accumulates.
type Record struct {
	UserID    string    `json:"user_id"`
	VenueID   string    `json:"venue_id"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// HasCoordinate reports whether a usable coordinate was captured at join.
func (r *Record) HasCoordinate() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Store provides presence operations over a Redis client.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore wraps a Redis client. ttl bounds how long a presence survives
// without a re-join; values <= 0 default to 2 hours.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Ping verifies connectivity. Called once at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func userKey(userID string) string   { return "presence:user:" + userID }
func venueKey(venueID string) string { return fmt.Sprintf("venue:%s:presence", venueID) }

// Join records the user at a venue, replacing any previous presence
// (including one at a different venue).
func (s *Store) Join(ctx context.Context, rec Record) error {
	if rec.UserID == "" || rec.VenueID == "" {
		return errors.New("presence: user id and venue id required")
	}
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = time.Now().UTC()
	}

	// Drop the previous venue-hash entry when switching venues.
	if prev, err := s.Get(ctx, rec.UserID); err != nil {
		return err
	} else if prev != nil && prev.VenueID != rec.VenueID {
		if err := s.rdb.HDel(ctx, venueKey(prev.VenueID), rec.UserID).Err(); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, userKey(rec.UserID), payload, s.ttl)
	pipe.HSet(ctx, venueKey(rec.VenueID), rec.UserID, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Leave removes the user's presence entirely. Leaving while not present is
// a no-op.
func (s *Store) Leave(ctx context.Context, userID string) error {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, userKey(userID))
	pipe.HDel(ctx, venueKey(rec.VenueID), userID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the user's active presence, or nil when absent/expired.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	val, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns everyone currently present at the venue. Stale hash entries
// (expired per-user key, or the user re-joined elsewhere) are evicted as a
// side effect.
func (s *Store) List(ctx context.Context, venueID string) ([]Record, error) {
	entries, err := s.rdb.HGetAll(ctx, venueKey(venueID)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(entries))
	var stale []string
	for userID, raw := range entries {
		live, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if live == nil || live.VenueID != venueID {
			stale = append(stale, userID)
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			stale = append(stale, userID)
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		_ = s.rdb.HDel(ctx, venueKey(venueID), stale...).Err()
	}
	return out, nil
}

// Others returns the presences at the venue excluding requesterID.
func (s *Store) Others(ctx context.Context, venueID, requesterID string) ([]Record, error) {
	all, err := s.List(ctx, venueID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.UserID != requesterID {
			out = append(out, rec)
		}
	}
	return out, nil
}
