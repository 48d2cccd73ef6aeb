// Package ai defines the chat-completion contract consumed by the
// icebreaker generator and the reply orchestrator, together with an
// OpenAI-compatible HTTP implementation and a circuit-breaker wrapper.
//
// The rest of the codebase treats the AI backend as a black box: a request
// is a persona instruction plus an ordered role-tagged message list, the
// response is free text or an error. Callers decide what a failure means
// (fixed fallback line for icebreakers, "skip this cycle" for replies);
// nothing here retries.
package ai

import "context"

// Role tags one message in the completion context.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered completion context.
type Message struct {
	Role    Role
	Content string
}

// Request is a single chat-completion call.
type Request struct {
	// System is the persona instruction prepended to the message list.
	System string
	// Messages is the ordered conversation window, oldest first.
	Messages []Message
	// Temperature is the sampling temperature; 0 uses the backend default.
	Temperature float64
	// MaxTokens caps output length; 0 uses the backend default.
	MaxTokens int
}

// Client produces a completion for a request. Implementations must honor
// the context and be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
