// Package persona derives the conversational voice used when replying on
// behalf of a matched profile. The voice follows the profile's gender:
// a terse, forward tone for men and a playful, inviting tone otherwise.
package persona

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jmallia/go-match-backend/internal/domain"
)

// Kind enumerates the supported reply voices.
type Kind string

const (
	// KindForward is terse and direct, pushing quickly toward meeting up.
	KindForward Kind = "forward"
	// KindPlayful is lighter and more inviting, teasing toward meeting up.
	KindPlayful Kind = "playful"
)

// FallbackIcebreaker is sent verbatim when icebreaker generation fails.
const FallbackIcebreaker = "Hey! Looks like we're in the same spot — want to say hi in person?"

var titleCaser = cases.Title(language.English)

// ForProfile picks the voice for a profile.
func ForProfile(p *domain.Profile) Kind {
	if p != nil && p.Gender == domain.GenderMale {
		return KindForward
	}
	return KindPlayful
}

// displayName normalizes a nickname for prompt text.
func displayName(p *domain.Profile) string {
	if p == nil || strings.TrimSpace(p.Nickname) == "" {
		return "them"
	}
	return titleCaser.String(strings.TrimSpace(p.Nickname))
}

// SystemPrompt builds the system prompt for replying as self to other.
// Replies are kept to one or two sentences and steer the conversation
// toward meeting in person, since both people are at the same venue.
func SystemPrompt(self, other *domain.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, chatting on a social app with %s. ", displayName(self), displayName(other))
	fmt.Fprintf(&b, "You are both at the same venue right now. ")

	switch ForProfile(self) {
	case KindForward:
		b.WriteString("Your style is terse and forward: short, confident messages, no filler. ")
	default:
		b.WriteString("Your style is playful and inviting: light, warm, a little teasing. ")
	}

	if self != nil && strings.TrimSpace(self.Bio) != "" {
		fmt.Fprintf(&b, "About you: %s. ", strings.TrimSpace(self.Bio))
	}

	b.WriteString("Reply in one or two sentences at most. ")
	b.WriteString("Steer the conversation toward meeting in person at the venue. ")
	b.WriteString("Never mention being an assistant or an app.")
	return b.String()
}

// IcebreakerPrompt builds the one-shot prompt used to open a fresh match
// between a and b.
func IcebreakerPrompt(a, b *domain.Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a single opening message from %s to %s. ", displayName(a), displayName(b))
	sb.WriteString("They just matched at the same venue and have not spoken yet. ")
	if a != nil && strings.TrimSpace(a.Bio) != "" {
		fmt.Fprintf(&sb, "Sender's bio: %s. ", strings.TrimSpace(a.Bio))
	}
	if b != nil && strings.TrimSpace(b.Bio) != "" {
		fmt.Fprintf(&sb, "Recipient's bio: %s. ", strings.TrimSpace(b.Bio))
	}
	sb.WriteString("One sentence, friendly, specific, and hinting at saying hello in person. ")
	sb.WriteString("Return only the message text.")
	return sb.String()
}
