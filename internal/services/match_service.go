// Package services – MatchService
//
// This file implements MatchService, the application-level component that
// owns venue presence, candidate discovery, and match formation. It applies
// the mutual-interest filter, ranks candidates by great-circle distance with
// unknown locations sorted last, and performs the race-tolerant pair insert
// so that two sessions attempting the same pair at the same poll tick still
// produce exactly one match row.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// user and venue identifiers.
package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmallia/go-match-backend/internal/ai"
	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/geo"
	"github.com/jmallia/go-match-backend/internal/persona"
	"github.com/jmallia/go-match-backend/internal/presence"
	"github.com/jmallia/go-match-backend/internal/repo"
)

// Candidate is one person visible to a requester at a venue, with the
// computed distance when both sides have a coordinate.
type Candidate struct {
	Profile    domain.Profile `json:"profile"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
}

// MatchService coordinates presence, eligibility, ranking, and pairing.
type MatchService struct {
	DB       *gorm.DB
	Presence *presence.Store
	AI       ai.Client
	Bus      *bus.Bus

	// Icebreaker sampling knobs passed through to the AI collaborator.
	IcebreakerTemperature float64
	IcebreakerMaxTokens   int
}

// NewMatchService constructs a MatchService with default sampling settings.
func NewMatchService(db *gorm.DB, ps *presence.Store, client ai.Client, b *bus.Bus) *MatchService {
	return &MatchService{
		DB:                    db,
		Presence:              ps,
		AI:                    client,
		Bus:                   b,
		IcebreakerTemperature: 0.9,
		IcebreakerMaxTokens:   80,
	}
}

// JoinVenue checks the caller in at a venue, replacing any previous presence.
// The coordinate is optional; absence degrades to eligibility-only matching.
func (s *MatchService) JoinVenue(ctx context.Context, userID, venueID string, lat, lng *float64) error {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "JoinVenue",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("venue.id", venueID),
		),
	)
	defer span.End()

	if _, err := repo.GetProfile(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProfileNotFound
		}
		return err
	}
	return s.Presence.Join(ctx, presence.Record{
		UserID:    userID,
		VenueID:   venueID,
		Latitude:  lat,
		Longitude: lng,
	})
}

// LeaveVenue removes the caller's presence record. Leaving while not present
// is a no-op.
func (s *MatchService) LeaveVenue(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "LeaveVenue",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return s.Presence.Leave(ctx, userID)
}

// VenuePeople returns everyone else currently present at the venue, with
// distances from the requester where known. This is the occupancy view; no
// interest filtering is applied.
func (s *MatchService) VenuePeople(ctx context.Context, requesterID, venueID string) ([]Candidate, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "VenuePeople",
		trace.WithAttributes(
			attribute.String("user.id", requesterID),
			attribute.String("venue.id", venueID),
		),
	)
	defer span.End()

	self, err := s.Presence.Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	others, err := s.Presence.Others(ctx, venueID, requesterID)
	if err != nil {
		return nil, err
	}
	return s.withProfiles(ctx, self, others, nil)
}

// EligibleCandidates computes the requester's match candidates at a venue:
// mutually interested, profile-complete, not already paired with the
// requester, sorted nearest first with unknown distances last.
//
// Returns ErrProfileIncomplete when the requester's own gender or seeking
// fields are missing; the filter must not run in that case.
func (s *MatchService) EligibleCandidates(ctx context.Context, requesterID, venueID string) ([]Candidate, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "EligibleCandidates",
		trace.WithAttributes(
			attribute.String("user.id", requesterID),
			attribute.String("venue.id", venueID),
		),
	)
	defer span.End()

	reqProfile, err := repo.GetProfile(ctx, s.DB, requesterID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if !reqProfile.Complete() {
		return nil, ErrProfileIncomplete
	}

	self, err := s.Presence.Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if self == nil {
		return nil, ErrNotPresent
	}

	others, err := s.Presence.Others(ctx, venueID, requesterID)
	if err != nil {
		return nil, err
	}

	matched, err := repo.MatchedUserIDs(ctx, s.DB, requesterID)
	if err != nil {
		return nil, err
	}

	keep := func(p *domain.Profile) bool {
		if _, already := matched[p.ID]; already {
			return false
		}
		return mutualInterest(reqProfile, p)
	}
	return s.withProfiles(ctx, self, others, keep)
}

// RelaxedCandidate returns the first other present user with both gender
// fields set and no existing match with the requester, ignoring the
// mutual-interest filter. No distance ranking is applied. A nil result with
// nil error means nobody qualifies and the caller should stay waiting.
func (s *MatchService) RelaxedCandidate(ctx context.Context, requesterID, venueID string) (*domain.Profile, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "RelaxedCandidate",
		trace.WithAttributes(
			attribute.String("user.id", requesterID),
			attribute.String("venue.id", venueID),
		),
	)
	defer span.End()

	others, err := s.Presence.Others(ctx, venueID, requesterID)
	if err != nil {
		return nil, err
	}
	if len(others) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(others))
	for _, rec := range others {
		ids = append(ids, rec.UserID)
	}
	profiles, err := repo.GetProfiles(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	matched, err := repo.MatchedUserIDs(ctx, s.DB, requesterID)
	if err != nil {
		return nil, err
	}

	for _, rec := range others {
		p, ok := profiles[rec.UserID]
		if !ok || !p.Complete() {
			continue
		}
		if _, already := matched[p.ID]; already {
			continue
		}
		return &p, nil
	}
	return nil, nil
}

// FormMatch creates (or reuses) the match between the requester and the
// chosen candidate. The insert is idempotent under race: when the other
// side's session created the row first, the existing row is read back and
// created=false is reported.
//
// On fresh creation only, an icebreaker is generated for the pair; when the
// AI collaborator fails, the fixed fallback line is attached instead of
// failing the match. The forced flag marks an escalated pairing; it skips no
// storage-level checks, only the eligibility step the caller already ran (or
// deliberately relaxed).
func (s *MatchService) FormMatch(ctx context.Context, requesterID, candidateID string, forced bool) (*domain.Match, bool, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "FormMatch",
		trace.WithAttributes(
			attribute.String("user.id", requesterID),
			attribute.String("candidate.id", candidateID),
			attribute.Bool("forced", forced),
		),
	)
	defer span.End()

	if requesterID == candidateID {
		return nil, false, ErrSelfMatch
	}

	m, created, err := repo.CreateMatch(ctx, s.DB, requesterID, candidateID)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return m, false, nil
	}

	matchesFormed.WithLabelValues(strconv.FormatBool(forced)).Inc()

	line := s.icebreaker(ctx, m.UserAID, m.UserBID)
	if err := repo.SetIcebreaker(ctx, s.DB, m.ID, line); err != nil {
		// The match itself stands; the opener is best-effort.
		log.Warn().Err(err).Str("match_id", m.ID).Msg("attach icebreaker failed")
	} else {
		m.Icebreaker = line
	}

	if s.Bus != nil {
		s.Bus.Publish(bus.Event{
			Kind: bus.KindMatchCreated,
			Payload: bus.MatchCreated{
				MatchID: m.ID,
				UserAID: m.UserAID,
				UserBID: m.UserBID,
				Forced:  forced,
			},
		})
	}
	return m, true, nil
}

// MatchesForUser lists the caller's matches, most recent first.
func (s *MatchService) MatchesForUser(ctx context.Context, userID string) ([]domain.Match, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "MatchesForUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.ListMatchesForUser(ctx, s.DB, userID)
}

// LatestMatchSince returns the newest match involving userID created at or
// after the given instant, or nil when there is none. Sessions call this
// every poll tick so a pairing created by the counterpart's session is
// observed without any push channel.
func (s *MatchService) LatestMatchSince(ctx context.Context, userID string, since time.Time) (*domain.Match, error) {
	m, err := repo.LatestMatchSince(ctx, s.DB, userID, since)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MatchForUser fetches one match and verifies the caller participates in it.
func (s *MatchService) MatchForUser(ctx context.Context, userID, matchID string) (*domain.Match, error) {
	m, err := repo.GetMatch(ctx, s.DB, matchID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, ErrNotParticipant
	}
	return m, nil
}

// icebreaker asks the AI collaborator for an opener between the two users,
// falling back to the fixed neutral line on any failure. No retry.
func (s *MatchService) icebreaker(ctx context.Context, userAID, userBID string) string {
	profiles, err := repo.GetProfiles(ctx, s.DB, []string{userAID, userBID})
	if err != nil {
		log.Warn().Err(err).Msg("icebreaker profile lookup failed")
		icebreakerFallbacks.Inc()
		return persona.FallbackIcebreaker
	}
	a, b := profiles[userAID], profiles[userBID]

	line, err := s.AI.Complete(ctx, ai.Request{
		System:      persona.IcebreakerPrompt(&a, &b),
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: "Write the opening message now."}},
		Temperature: s.IcebreakerTemperature,
		MaxTokens:   s.IcebreakerMaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Msg("icebreaker generation failed, using fallback")
		icebreakerFallbacks.Inc()
		return persona.FallbackIcebreaker
	}
	return line
}

// mutualInterest reports whether req and other satisfy the two-way interest
// predicate. Profiles missing gender or seeking fields never qualify.
func mutualInterest(req, other *domain.Profile) bool {
	if !req.Complete() || !other.Complete() {
		return false
	}
	return seeks(other.SeekingGender, req.Gender) && seeks(req.SeekingGender, other.Gender)
}

func seeks(seeking, gender string) bool {
	return seeking == domain.SeekingAll || seeking == gender
}

// withProfiles resolves presence records to profile-bearing candidates,
// applying the optional keep filter, and sorts nearest first. Unknown
// distances sort after every known distance; ordering among equals is
// stable, so candidates retain their presence-listing order on ties.
func (s *MatchService) withProfiles(ctx context.Context, self *presence.Record, others []presence.Record, keep func(*domain.Profile) bool) ([]Candidate, error) {
	if len(others) == 0 {
		return []Candidate{}, nil
	}
	ids := make([]string, 0, len(others))
	for _, rec := range others {
		ids = append(ids, rec.UserID)
	}
	profiles, err := repo.GetProfiles(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		c  Candidate
		km float64
		ok bool
	}
	out := make([]ranked, 0, len(others))
	for _, rec := range others {
		p, found := profiles[rec.UserID]
		if !found {
			continue
		}
		if keep != nil && !keep(&p) {
			continue
		}
		r := ranked{c: Candidate{Profile: p}}
		if self != nil {
			r.km, r.ok = geo.Distance(self.Latitude, self.Longitude, rec.Latitude, rec.Longitude)
			if r.ok {
				km := r.km
				r.c.DistanceKm = &km
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return geo.Less(out[i].km, out[i].ok, out[j].km, out[j].ok)
	})

	candidates := make([]Candidate, len(out))
	for i := range out {
		candidates[i] = out[i].c
	}
	return candidates, nil
}
