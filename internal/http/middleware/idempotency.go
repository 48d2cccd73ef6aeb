package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen deduplication key on unsafe
// requests. Message posts retried over flaky venue wifi reuse the same key so
// the server appends the message once.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// defaultKeyPattern accepts token-ish keys: letters, digits and a few safe
// punctuation characters. UUIDs pass.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

const defaultKeyMaxLen = 200

// IdempotencyOptions tunes header validation. TTL handling belongs to the
// lookup, not here.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means defaultKeyMaxLen
	Pattern *regexp.Regexp // nil means defaultKeyPattern
}

// IdempotencyLookup reports whether a completed, unexpired result already
// exists for (userID, matchID, key) as of now. Lookup errors are treated as a
// miss; the request proceeds normally.
type IdempotencyLookup func(ctx context.Context, userID, matchID, key string, now time.Time) (exists bool, err error)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request duplicates an already completed
// operation. Handlers serve the stored result instead of re-executing.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes the key for handlers, and, given a lookup, flags detected replays.
// A replay also sets the rate-limit bypass so retries of already-charged work
// are not throttled. Requests without the header pass through untouched;
// handlers decide how to serve a flagged replay.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultKeyMaxLen
	}
	pattern := opts.Pattern
	if pattern == nil {
		pattern = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pattern.MatchString(key) {
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": asString(rid),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			// Keys are scoped per user and per match; :id is the match on
			// the message POST route.
			matchID := c.Param("id")
			exists, _ := lookup(c.Request.Context(), userIDFromCtx(c), matchID, key, time.Now().UTC())
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx resolves the caller identity the same way the handlers do:
// context set by auth, then the X-User-ID header, then the demo fallback.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := c.GetHeader("X-User-ID"); h != "" {
		return h
	}
	return "demo-user"
}
