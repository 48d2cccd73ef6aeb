package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jmallia/go-match-backend/internal/ai"
	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/domain"
)

// recordingAI captures the last request so tests can assert on role mapping
// and the persona prompt.
type recordingAI struct {
	reply string
	fail  bool
	last  ai.Request
	calls int
}

func (r *recordingAI) Complete(ctx context.Context, req ai.Request) (string, error) {
	r.calls++
	r.last = req
	if r.fail {
		return "", context.DeadlineExceeded
	}
	return r.reply, nil
}

// newReplyFixture builds a reply service sharing storage with a match
// service, with one formed alice/bob match ready to talk in.
func newReplyFixture(t *testing.T, client ai.Client) (*ReplyService, *domain.Match) {
	t.Helper()

	ms := newTestMatchService(t, &fakeAI{reply: "opener"})
	seedProfile(t, ms.DB, "alice", domain.GenderFemale, domain.GenderMale)
	seedProfile(t, ms.DB, "bob", domain.GenderMale, domain.GenderFemale)
	m, _, err := ms.FormMatch(context.Background(), "alice", "bob", false)
	if err != nil {
		t.Fatalf("FormMatch: %v", err)
	}

	rs := NewReplyService(ms.DB, client, ms.Bus)
	return rs, m
}

func TestSendMessage_Validation(t *testing.T) {
	rs, m := newReplyFixture(t, &recordingAI{})
	ctx := context.Background()

	if _, err := rs.SendMessage(ctx, "alice", m.ID, "   \n  "); err != ErrEmptyContent {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	rs.MaxContentRunes = 5
	if _, err := rs.SendMessage(ctx, "alice", m.ID, "this is too long"); err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	rs.MaxContentRunes = 2000

	if _, err := rs.SendMessage(ctx, "mallory", m.ID, "hi"); err != ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := rs.SendMessage(ctx, "alice", "00000000-0000-0000-0000-000000000000", "hi"); err != ErrMatchNotFound {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestSendMessage_TrimsAndPublishes(t *testing.T) {
	rs, m := newReplyFixture(t, &recordingAI{})
	ctx := context.Background()

	sub, cancel := rs.Bus.Subscribe(bus.KindMessageAppended, 4)
	defer cancel()

	msg, err := rs.SendMessage(ctx, "alice", m.ID, "  hey bob  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hey bob" {
		t.Fatalf("content = %q; want trimmed", msg.Content)
	}
	if msg.SenderID != "alice" {
		t.Fatalf("sender = %q", msg.SenderID)
	}

	select {
	case ev := <-sub:
		ma, ok := ev.Payload.(bus.MessageAppended)
		if !ok || ma.MessageID != msg.ID || ma.SenderID != "alice" {
			t.Fatalf("unexpected event: %+v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("message appended event not published")
	}
}

func TestGenerateReply_AttributedToCounterpart(t *testing.T) {
	client := &recordingAI{reply: "  nice to meet you  "}
	rs, m := newReplyFixture(t, client)
	ctx := context.Background()

	if _, err := rs.SendMessage(ctx, "alice", m.ID, "hey"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	reply, err := rs.GenerateReply(ctx, "alice", m.ID)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply == nil {
		t.Fatalf("expected a reply")
	}
	if reply.SenderID != "bob" {
		t.Fatalf("reply attributed to %q; want bob", reply.SenderID)
	}
	if reply.Content != "nice to meet you" {
		t.Fatalf("reply content = %q; want trimmed", reply.Content)
	}
	// bob is male, so the reply voice is the forward persona.
	if !strings.Contains(client.last.System, "terse and forward") {
		t.Fatalf("persona prompt not in bob's voice: %q", client.last.System)
	}
}

func TestGenerateReply_RoleMapping(t *testing.T) {
	client := &recordingAI{reply: "sure"}
	rs, m := newReplyFixture(t, client)
	ctx := context.Background()

	// alice → bob-reply → alice again; the window seen by the model must
	// map bob's line to the assistant role.
	if _, err := rs.SendMessage(ctx, "alice", m.ID, "one"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := rs.GenerateReply(ctx, "alice", m.ID); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if _, err := rs.SendMessage(ctx, "alice", m.ID, "two"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := rs.GenerateReply(ctx, "alice", m.ID); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}

	msgs := client.last.Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 window messages, got %d", len(msgs))
	}
	wantRoles := []ai.Role{ai.RoleUser, ai.RoleAssistant, ai.RoleUser}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Fatalf("message %d role = %q; want %q", i, msgs[i].Role, want)
		}
	}
}

func TestGenerateReply_StandsDownWhenCounterpartSpokeLast(t *testing.T) {
	client := &recordingAI{reply: "should not be used"}
	rs, m := newReplyFixture(t, client)
	ctx := context.Background()

	if _, err := rs.SendMessage(ctx, "alice", m.ID, "hey"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := rs.SendMessage(ctx, "bob", m.ID, "hi alice"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	reply, err := rs.GenerateReply(ctx, "alice", m.ID)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected stand-down, got %+v", reply)
	}
	if client.calls != 0 {
		t.Fatalf("AI should not be called when the counterpart spoke last")
	}
}

func TestGenerateReply_EmptyConversation(t *testing.T) {
	rs, m := newReplyFixture(t, &recordingAI{reply: "x"})

	reply, err := rs.GenerateReply(context.Background(), "alice", m.ID)
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != nil {
		t.Fatalf("expected nil for empty conversation, got %+v", reply)
	}
}

func TestGenerateReply_FailureAppendsNothing(t *testing.T) {
	rs, m := newReplyFixture(t, &recordingAI{fail: true})
	ctx := context.Background()

	if _, err := rs.SendMessage(ctx, "alice", m.ID, "hey"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := rs.GenerateReply(ctx, "alice", m.ID); err == nil {
		t.Fatalf("expected generation error")
	}

	msgs, err := rs.Messages(ctx, "alice", m.ID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("failure must not append, got %d messages", len(msgs))
	}
}

func TestGenerateReply_WindowBounded(t *testing.T) {
	client := &recordingAI{reply: "ok"}
	rs, m := newReplyFixture(t, client)
	rs.WindowSize = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := rs.SendMessage(ctx, "alice", m.ID, "line"); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}
	if _, err := rs.GenerateReply(ctx, "alice", m.ID); err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if len(client.last.Messages) != 3 {
		t.Fatalf("window = %d messages; want 3", len(client.last.Messages))
	}
}
