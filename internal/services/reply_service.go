// Package services – ReplyService
//
// This file implements ReplyService, which owns the message lifecycle of a
// match: appending human messages and generating the automated counterpart
// reply. Reply generation is deliberately conservative — it re-reads the
// conversation before proceeding, builds a bounded context window, and skips
// the cycle entirely whenever the newest message is not the human's, so the
// simulated counterpart never answers itself.
//
// Single-flight discipline (one in-progress generation per match per session)
// lives in internal/session; this service assumes the caller already holds
// the reply guard.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmallia/go-match-backend/internal/ai"
	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/domain"
	"github.com/jmallia/go-match-backend/internal/persona"
	"github.com/jmallia/go-match-backend/internal/repo"
)

// ReplyService persists chat messages and produces automated replies.
type ReplyService struct {
	DB  *gorm.DB
	AI  ai.Client
	Bus *bus.Bus

	// WindowSize bounds the context window for reply generation.
	WindowSize int
	// MaxContentRunes caps accepted human message length.
	MaxContentRunes int

	// Reply sampling knobs passed through to the AI collaborator.
	Temperature float64
	MaxTokens   int
}

// NewReplyService constructs a ReplyService with default window and limits.
func NewReplyService(db *gorm.DB, client ai.Client, b *bus.Bus) *ReplyService {
	return &ReplyService{
		DB:              db,
		AI:              client,
		Bus:             b,
		WindowSize:      10,
		MaxContentRunes: 2000,
		Temperature:     0.8,
		MaxTokens:       120,
	}
}

// SendMessage appends a human-authored message to a match the caller
// participates in and announces it on the bus, which is what triggers the
// automated reply cycle.
func (s *ReplyService) SendMessage(ctx context.Context, userID, matchID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("match.id", matchID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	if _, err := s.match(ctx, userID, matchID); err != nil {
		return nil, err
	}

	msg, err := repo.CreateMessage(ctx, s.DB, matchID, userID, content)
	if err != nil {
		return nil, err
	}

	if s.Bus != nil {
		s.Bus.Publish(bus.Event{
			Kind: bus.KindMessageAppended,
			Payload: bus.MessageAppended{
				MatchID:   matchID,
				MessageID: msg.ID,
				SenderID:  userID,
			},
		})
	}
	return msg, nil
}

// Messages returns the conversation for a match the caller participates in,
// oldest first. limit <= 0 returns everything.
func (s *ReplyService) Messages(ctx context.Context, userID, matchID string, limit int) ([]domain.Message, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "Messages",
		trace.WithAttributes(
			attribute.String("match.id", matchID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if _, err := s.match(ctx, userID, matchID); err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, matchID, limit)
}

// GenerateReply produces at most one automated reply attributed to the
// counterpart of humanID in the match. It re-reads the conversation first
// and returns (nil, nil) — no reply, no error — when the newest message is
// not the human's, which covers both "we already replied" and "another cycle
// got there first".
//
// On AI failure nothing is appended and the error is returned for logging;
// the caller does not retry.
func (s *ReplyService) GenerateReply(ctx context.Context, humanID, matchID string) (*domain.Message, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "GenerateReply",
		trace.WithAttributes(
			attribute.String("match.id", matchID),
			attribute.String("user.id", humanID),
		),
	)
	defer span.End()

	m, err := s.match(ctx, humanID, matchID)
	if err != nil {
		return nil, err
	}
	counterpartID, _ := m.OtherUserID(humanID)

	latest, err := repo.LatestMessage(ctx, s.DB, matchID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if latest.SenderID != humanID {
		// Either the counterpart (or a previous cycle) spoke last; stand down.
		aiReplies.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	window := s.WindowSize
	if window <= 0 {
		window = 10
	}
	history, err := repo.LatestMessages(ctx, s.DB, matchID, window)
	if err != nil {
		return nil, err
	}

	profiles, err := repo.GetProfiles(ctx, s.DB, []string{m.UserAID, m.UserBID})
	if err != nil {
		return nil, err
	}
	self, human := profiles[counterpartID], profiles[humanID]

	req := ai.Request{
		System:      persona.SystemPrompt(&self, &human),
		Messages:    make([]ai.Message, 0, len(history)),
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}
	for i := range history {
		role := ai.RoleUser
		if history[i].SenderID == counterpartID {
			role = ai.RoleAssistant
		}
		req.Messages = append(req.Messages, ai.Message{Role: role, Content: history[i].Content})
	}

	text, err := s.AI.Complete(ctx, req)
	if err != nil {
		aiReplies.WithLabelValues("failed").Inc()
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		aiReplies.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	msg, err := repo.CreateMessage(ctx, s.DB, matchID, counterpartID, text)
	if err != nil {
		return nil, err
	}
	aiReplies.WithLabelValues("sent").Inc()
	return msg, nil
}

// match fetches the row and verifies participation.
func (s *ReplyService) match(ctx context.Context, userID, matchID string) (*domain.Match, error) {
	m, err := repo.GetMatch(ctx, s.DB, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, ErrNotParticipant
	}
	return m, nil
}
