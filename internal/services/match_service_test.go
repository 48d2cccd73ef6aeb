package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmallia/go-match-backend/internal/ai"
	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/persona"
	"github.com/jmallia/go-match-backend/internal/presence"
)

// fakeAI is a scripted ai.Client. When fail is set every call errors; the
// calls counter records how many completions were requested.
type fakeAI struct {
	reply string
	fail  bool
	calls int
}

func (f *fakeAI) Complete(ctx context.Context, req ai.Request) (string, error) {
	f.calls++
	if f.fail {
		return "", fmt.Errorf("backend down")
	}
	return f.reply, nil
}

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Profile{}, &domain.Match{}, &domain.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newPresenceStore(t *testing.T) *presence.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return presence.NewStore(rdb, time.Hour)
}

func newTestMatchService(t *testing.T, client ai.Client) *MatchService {
	t.Helper()
	if client == nil {
		client = &fakeAI{reply: "hi there"}
	}
	return NewMatchService(newServiceDB(t), newPresenceStore(t), client, bus.New())
}

func seedProfile(t *testing.T, db *gorm.DB, id, gender, seeking string) {
	t.Helper()
	p := &domain.Profile{
		ID:            id,
		Gender:        gender,
		SeekingGender: seeking,
		Nickname:      "nick-" + id,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
}

func joinAt(t *testing.T, s *MatchService, userID, venueID string, lat, lng *float64) {
	t.Helper()
	if err := s.JoinVenue(context.Background(), userID, venueID, lat, lng); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

func fptr(v float64) *float64 { return &v }

func TestJoinVenue_UnknownProfile(t *testing.T) {
	s := newTestMatchService(t, nil)
	err := s.JoinVenue(context.Background(), "ghost", "bar-1", nil, nil)
	if err != ErrProfileNotFound {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestEligibleCandidates_MutualInterestFilter(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)     // mutual
	seedProfile(t, s.DB, "carol", domain.GenderFemale, domain.GenderMale)  // same side as alice
	seedProfile(t, s.DB, "dave", domain.GenderMale, domain.GenderMale)     // not seeking alice
	seedProfile(t, s.DB, "erin", domain.GenderFemale, "")                  // incomplete

	for _, id := range []string{"alice", "bob", "carol", "dave", "erin"} {
		joinAt(t, s, id, "bar-1", nil, nil)
	}

	cands, err := s.EligibleCandidates(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("EligibleCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Profile.ID != "bob" {
		t.Fatalf("expected only bob, got %+v", cands)
	}
}

func TestEligibleCandidates_SeekingAll(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.SeekingAll)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.SeekingAll)
	joinAt(t, s, "alice", "bar-1", nil, nil)
	joinAt(t, s, "bob", "bar-1", nil, nil)

	cands, err := s.EligibleCandidates(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("EligibleCandidates: %v", err)
	}
	if len(cands) != 1 || cands[0].Profile.ID != "bob" {
		t.Fatalf("expected bob via seeking=all, got %+v", cands)
	}
}

func TestEligibleCandidates_RequesterIncomplete(t *testing.T) {
	s := newTestMatchService(t, nil)
	seedProfile(t, s.DB, "pat", domain.GenderMale, "")
	joinAt(t, s, "pat", "bar-1", nil, nil)

	if _, err := s.EligibleCandidates(context.Background(), "pat", "bar-1"); err != ErrProfileIncomplete {
		t.Fatalf("expected ErrProfileIncomplete, got %v", err)
	}
}

func TestEligibleCandidates_NotPresent(t *testing.T) {
	s := newTestMatchService(t, nil)
	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)

	if _, err := s.EligibleCandidates(context.Background(), "alice", "bar-1"); err != ErrNotPresent {
		t.Fatalf("expected ErrNotPresent, got %v", err)
	}
}

func TestEligibleCandidates_ExcludesAlreadyMatched(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)
	joinAt(t, s, "alice", "bar-1", nil, nil)
	joinAt(t, s, "bob", "bar-1", nil, nil)

	if _, _, err := s.FormMatch(ctx, "alice", "bob", false); err != nil {
		t.Fatalf("FormMatch: %v", err)
	}

	cands, err := s.EligibleCandidates(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("EligibleCandidates: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("matched counterpart still listed: %+v", cands)
	}
}

func TestEligibleCandidates_NearestFirstUnknownLast(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.SeekingAll)
	seedProfile(t, s.DB, "near", domain.GenderMale, domain.SeekingAll)
	seedProfile(t, s.DB, "far", domain.GenderMale, domain.SeekingAll)
	seedProfile(t, s.DB, "nowhere", domain.GenderMale, domain.SeekingAll)

	joinAt(t, s, "alice", "bar-1", fptr(51.5000), fptr(-0.1200))
	joinAt(t, s, "far", "bar-1", fptr(51.6000), fptr(-0.1200))
	joinAt(t, s, "near", "bar-1", fptr(51.5010), fptr(-0.1200))
	joinAt(t, s, "nowhere", "bar-1", nil, nil)

	cands, err := s.EligibleCandidates(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("EligibleCandidates: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	got := []string{cands[0].Profile.ID, cands[1].Profile.ID, cands[2].Profile.ID}
	want := []string{"near", "far", "nowhere"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v; want %v", got, want)
		}
	}
	if cands[0].DistanceKm == nil || cands[1].DistanceKm == nil {
		t.Fatalf("known coordinates should carry a distance")
	}
	if cands[2].DistanceKm != nil {
		t.Fatalf("missing coordinate should have nil distance")
	}
	if *cands[0].DistanceKm >= *cands[1].DistanceKm {
		t.Fatalf("distances not ascending: %v >= %v", *cands[0].DistanceKm, *cands[1].DistanceKm)
	}
}

func TestRelaxedCandidate(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "carol", domain.GenderFemale, domain.GenderMale) // not mutual with alice
	seedProfile(t, s.DB, "pat", domain.GenderMale, "")                    // incomplete
	joinAt(t, s, "alice", "bar-1", nil, nil)
	joinAt(t, s, "pat", "bar-1", nil, nil)

	// Alone with only an incomplete profile present: nobody qualifies.
	p, err := s.RelaxedCandidate(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("RelaxedCandidate: %v", err)
	}
	if p != nil {
		t.Fatalf("incomplete profile should not qualify, got %+v", p)
	}

	// A complete profile qualifies even without mutual interest.
	joinAt(t, s, "carol", "bar-1", nil, nil)
	p, err = s.RelaxedCandidate(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("RelaxedCandidate: %v", err)
	}
	if p == nil || p.ID != "carol" {
		t.Fatalf("expected carol, got %+v", p)
	}

	// Already matched pairs are skipped.
	if _, _, err := s.FormMatch(ctx, "alice", "carol", true); err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	p, err = s.RelaxedCandidate(ctx, "alice", "bar-1")
	if err != nil {
		t.Fatalf("RelaxedCandidate: %v", err)
	}
	if p != nil {
		t.Fatalf("matched counterpart should be skipped, got %+v", p)
	}
}

func TestFormMatch_SelfMatch(t *testing.T) {
	s := newTestMatchService(t, nil)
	if _, _, err := s.FormMatch(context.Background(), "alice", "alice", false); err != ErrSelfMatch {
		t.Fatalf("expected ErrSelfMatch, got %v", err)
	}
}

func TestFormMatch_IcebreakerAndReadBack(t *testing.T) {
	client := &fakeAI{reply: "You two are both here, say hello!"}
	s := newTestMatchService(t, client)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)

	sub, cancel := s.Bus.Subscribe(bus.KindMatchCreated, 4)
	defer cancel()

	m, created, err := s.FormMatch(ctx, "alice", "bob", false)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	if !created {
		t.Fatalf("first formation should create")
	}
	if m.Icebreaker != client.reply {
		t.Fatalf("icebreaker = %q; want %q", m.Icebreaker, client.reply)
	}

	select {
	case ev := <-sub:
		mc, ok := ev.Payload.(bus.MatchCreated)
		if !ok || mc.MatchID != m.ID {
			t.Fatalf("unexpected event payload: %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("match created event not published")
	}

	// Second attempt from the other side reads the existing row back.
	again, created, err := s.FormMatch(ctx, "bob", "alice", false)
	if err != nil {
		t.Fatalf("FormMatch read-back: %v", err)
	}
	if created || again.ID != m.ID {
		t.Fatalf("expected read-back of %s, got created=%v id=%s", m.ID, created, again.ID)
	}
	if client.calls != 1 {
		t.Fatalf("icebreaker should be generated once, got %d calls", client.calls)
	}
}

func TestFormMatch_IcebreakerFallback(t *testing.T) {
	s := newTestMatchService(t, &fakeAI{fail: true})
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)

	m, created, err := s.FormMatch(ctx, "alice", "bob", true)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}
	if !created {
		t.Fatalf("expected creation")
	}
	if m.Icebreaker != persona.FallbackIcebreaker {
		t.Fatalf("icebreaker = %q; want fallback", m.Icebreaker)
	}
}

func TestLatestMatchSince(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)

	since := time.Now().UTC().Add(-time.Minute)
	m, err := s.LatestMatchSince(ctx, "alice", since)
	if err != nil {
		t.Fatalf("LatestMatchSince: %v", err)
	}
	if m != nil {
		t.Fatalf("expected no match yet, got %+v", m)
	}

	formed, _, err := s.FormMatch(ctx, "alice", "bob", false)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}

	m, err = s.LatestMatchSince(ctx, "alice", since)
	if err != nil {
		t.Fatalf("LatestMatchSince: %v", err)
	}
	if m == nil || m.ID != formed.ID {
		t.Fatalf("expected %s, got %+v", formed.ID, m)
	}
}

func TestMatchForUser_Authorization(t *testing.T) {
	s := newTestMatchService(t, nil)
	ctx := context.Background()

	seedProfile(t, s.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, s.DB, "bob", domain.GenderMale, domain.GenderFemale)
	m, _, err := s.FormMatch(ctx, "alice", "bob", false)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}

	if _, err := s.MatchForUser(ctx, "alice", m.ID); err != nil {
		t.Fatalf("participant lookup: %v", err)
	}
	if _, err := s.MatchForUser(ctx, "mallory", m.ID); err != ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := s.MatchForUser(ctx, "alice", "00000000-0000-0000-0000-000000000000"); err != ErrMatchNotFound {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}
