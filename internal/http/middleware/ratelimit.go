// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-caller token-bucket rate limiter. It is
// process-local: buckets live in memory and are swept when they have been
// idle past a TTL. Clients poll several endpoints (venue occupancy, matching
// status, conversations) on short intervals, so the configured rate must
// stay comfortably above the combined polling cadence.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity that owns its token bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by caller identity: the userID set by upstream
// middleware, else the X-User-ID header, else the client IP. Prefixes keep
// the namespaces from colliding.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return "user:" + h
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter enforces a token-bucket limit per identity key. Safe for
// concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	ttl       time.Duration
	lastSweep time.Time
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with
// the given burst size (coerced to at least 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		ttl:       10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// bucketFor returns the limiter for key, creating it on first sight. Idle
// buckets are swept at most once per TTL, before the requested key is
// touched so a stale bucket for that key is also eligible.
func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[key]; ok {
		b.seen = now
		return b.lim
	}
	b := &bucket{lim: rate.NewLimiter(rl.rps, rl.burst), seen: now}
	rl.buckets[key] = b
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a previously completed one; replays are served without spending
// tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the enforcing middleware. Rejections carry a 429 with the
// standard error envelope shape and a minimal Retry-After.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.bucketFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
