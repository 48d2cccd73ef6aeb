package session

import "time"

// Config holds the timer cadences of a matching session. The values are
// tunable, not protocol-critical; tests shrink them to keep runs fast.
type Config struct {
	// PollInterval is the cadence of the eligibility/matching poll.
	PollInterval time.Duration
	// EscalateTick is how often the forced-match deadline is checked.
	EscalateTick time.Duration
	// ForceAfterMin/ForceAfterMax bound the uniformly drawn deadline after
	// which a match is forced, ignoring preference filters. The draw is
	// inclusive of Min and exclusive of Max.
	ForceAfterMin time.Duration
	ForceAfterMax time.Duration
	// ReplyDelay is the pause between a human message landing and the
	// automated reply check re-reading the conversation.
	ReplyDelay time.Duration
}

// DefaultConfig returns the reference cadences.
func DefaultConfig() Config {
	return Config{
		PollInterval:  3 * time.Second,
		EscalateTick:  100 * time.Millisecond,
		ForceAfterMin: 5 * time.Second,
		ForceAfterMax: 8 * time.Second,
		ReplyDelay:    2 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.EscalateTick <= 0 {
		c.EscalateTick = d.EscalateTick
	}
	if c.ForceAfterMin <= 0 {
		c.ForceAfterMin = d.ForceAfterMin
	}
	if c.ForceAfterMax <= c.ForceAfterMin {
		c.ForceAfterMax = c.ForceAfterMin + (d.ForceAfterMax - d.ForceAfterMin)
	}
	if c.ReplyDelay <= 0 {
		c.ReplyDelay = d.ReplyDelay
	}
	return c
}
