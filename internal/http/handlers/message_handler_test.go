package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/repo"
	"github.com/jmallia/go-match-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:msg_handlers?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Profile{}, &domain.Match{}, &domain.Message{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- helpers-only unit tests ----------

func Test_sanitizeContent(t *testing.T) {
	raw := "  line1\r\n\r\n\r\n\r\nline2\rline3  "
	got := sanitizeContent(raw)
	want := "line1\n\nline2\nline3"
	if got != want {
		t.Fatalf("sanitizeContent: got %q want %q", got, want)
	}
	if sanitizeContent(" \r\n\t ") != "" {
		t.Fatalf("sanitizeContent should trim to empty")
	}
}

func Test_discoverMaxContentRunes(t *testing.T) {
	if got := discoverMaxContentRunes(stubReplySvc{}); got != 2000 {
		t.Fatalf("fallback = %d", got)
	}
	if got := discoverMaxContentRunes(&services.ReplyService{MaxContentRunes: 42}); got != 42 {
		t.Fatalf("configured = %d", got)
	}
}

// ---------- PostMessage ----------

func TestPostMessage_InvalidUUID_and_Binding_and_TooLong(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(stubMatchSvc{}, stubReplySvc{
		send: func(_ context.Context, userID, matchID, content string) (*domain.Message, error) {
			return &domain.Message{ID: "m1", MatchID: matchID, SenderID: userID, Content: content}, nil
		},
	}, noSessions)

	r.POST("/matches/:id/messages", h.PostMessage)

	// invalid UUID
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/matches/not-a-uuid/messages", bytes.NewBufferString(`{"content":"x"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid uuid -> %d", w.Code)
	}

	// binding error (missing content)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/matches/"+uuid.NewString()+"/messages", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("binding error -> %d", w.Code)
	}

	// too long content (discoverMaxContentRunes uses *services.ReplyService)
	rs := &services.ReplyService{MaxContentRunes: 5}
	h2 := New(stubMatchSvc{}, rs, noSessions)
	r2 := gin.New()
	r2.POST("/matches/:id/messages", h2.PostMessage)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/matches/"+uuid.NewString()+"/messages", bytes.NewBufferString(`{"content":"123456"}`))
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("too long -> %d", w.Code)
	}
	if !regexp.MustCompile(`max 5`).Match(w.Body.Bytes()) {
		t.Fatalf("expected max count in message, got %s", w.Body.String())
	}
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{services.ErrMatchNotFound, http.StatusNotFound},
		{services.ErrNotParticipant, http.StatusForbidden},
		{services.ErrEmptyContent, http.StatusBadRequest},
	}
	for _, tc := range cases {
		h := New(stubMatchSvc{}, stubReplySvc{
			send: func(context.Context, string, string, string) (*domain.Message, error) {
				return nil, tc.err
			},
		}, noSessions)
		r := gin.New()
		r.POST("/matches/:id/messages", h.PostMessage)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/matches/"+uuid.NewString()+"/messages", bytes.NewBufferString(`{"content":"hi"}`))
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("err=%v -> %d; want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestPostMessage_Idempotency_Replay_and_Store(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	// seed match + message + idempotency record for replay
	userID := "u1"
	now := time.Now().UTC()
	a, b := domain.CanonicalPair(userID, "u2")
	match := &domain.Match{ID: uuid.NewString(), UserAID: a, UserBID: b, CreatedAt: now}
	if err := db.Create(match).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	prev := &domain.Message{ID: "m-prev", MatchID: match.ID, SenderID: userID, Content: "previous", CreatedAt: now}
	if err := db.Create(prev).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if _, err := repo.CreateIdempotency(context.Background(), db, userID, match.ID, "key-replay", prev.ID, 200, time.Hour); err != nil {
		t.Fatalf("seed idem: %v", err)
	}

	rs := &services.ReplyService{DB: db, MaxContentRunes: 2000}
	h := New(stubMatchSvc{}, rs, noSessions)

	r := gin.New()
	r.POST("/matches/:id/messages", h.PostMessage)

	// replay request: the recorded message comes back, nothing is appended
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/matches/"+match.ID+"/messages", bytes.NewBufferString(`{"content":" hello "}`))
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("Idempotency-Key", "key-replay")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("replay -> %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	var resp PostMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Message == nil || resp.Message.ID != prev.ID || resp.Message.Content != "previous" {
		t.Fatalf("unexpected replay body: %#v", resp)
	}

	// store path: fresh key, SendMessage runs, then a record is written
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/matches/"+match.ID+"/messages", bytes.NewBufferString(`{"content":"are you still here?"}`))
	req2.Header.Set("X-User-ID", userID)
	req2.Header.Set("Idempotency-Key", "key-store")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("store -> %d body=%s", w2.Code, w2.Body.String())
	}
	var resp2 PostMessageResponse
	if err := json.Unmarshal(w2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("json2: %v", err)
	}
	if resp2.Message == nil || resp2.Message.MatchID != match.ID || resp2.Message.SenderID != userID {
		t.Fatalf("appended message missing: %#v", resp2)
	}
	rec, err := repo.GetIdempotency(context.Background(), db, userID, match.ID, "key-store", time.Now().UTC().Add(-time.Second))
	if err != nil || rec == nil || rec.MessageID != resp2.Message.ID {
		t.Fatalf("idempotency not stored: rec=%+v err=%v", rec, err)
	}
}

// ---------- ListMessages ----------

func TestListMessages_UUID_Limit_and_Forbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gotLimit := -1
	h := New(stubMatchSvc{}, stubReplySvc{
		list: func(_ context.Context, _, _ string, limit int) ([]domain.Message, error) {
			gotLimit = limit
			return []domain.Message{{ID: "m1", Content: "hi"}}, nil
		},
	}, noSessions)

	r := gin.New()
	r.GET("/matches/:id/messages", h.ListMessages)

	// invalid UUID
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/matches/nope/messages", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid uuid -> %d", w.Code)
	}

	// limit query passes through; negatives clamp to 0
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/matches/"+uuid.NewString()+"/messages?limit=7", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || gotLimit != 7 {
		t.Fatalf("limit=7 -> %d (limit seen %d)", w.Code, gotLimit)
	}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/matches/"+uuid.NewString()+"/messages?limit=-3", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || gotLimit != 0 {
		t.Fatalf("limit=-3 -> %d (limit seen %d)", w.Code, gotLimit)
	}

	// non-participant
	h2 := New(stubMatchSvc{}, stubReplySvc{
		list: func(context.Context, string, string, int) ([]domain.Message, error) {
			return nil, services.ErrNotParticipant
		},
	}, noSessions)
	r2 := gin.New()
	r2.GET("/matches/:id/messages", h2.ListMessages)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/matches/"+uuid.NewString()+"/messages", nil)
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("forbidden -> %d", w.Code)
	}
}

// ---------- GetMatch ----------

func TestGetMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)

	id := uuid.NewString()
	h := New(stubMatchSvc{
		get: func(_ context.Context, userID, matchID string) (*domain.Match, error) {
			return &domain.Match{ID: matchID, UserAID: "u1", UserBID: "u2", Icebreaker: "opener"}, nil
		},
	}, stubReplySvc{}, noSessions)

	r := gin.New()
	r.GET("/matches/:id", h.GetMatch)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/matches/"+id, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d", w.Code)
	}
	var m domain.Match
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if m.ID != id || m.Icebreaker != "opener" {
		t.Fatalf("unexpected match: %+v", m)
	}

	h2 := New(stubMatchSvc{
		get: func(context.Context, string, string) (*domain.Match, error) {
			return nil, services.ErrMatchNotFound
		},
	}, stubReplySvc{}, noSessions)
	r2 := gin.New()
	r2.GET("/matches/:id", h2.GetMatch)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/matches/"+uuid.NewString(), nil)
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("not found -> %d", w.Code)
	}
}
