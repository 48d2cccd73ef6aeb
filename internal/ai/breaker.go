package ai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable reports that the AI backend is temporarily shed by the
// circuit breaker.
var ErrUnavailable = errors.New("ai: backend unavailable")

// BreakerClient wraps a Client with a circuit breaker so a flapping
// backend fails fast instead of stalling every reply cycle.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient builds a BreakerClient around inner. The breaker trips
// when at least 5 requests have been seen and half of them failed, and
// re-probes after 30 seconds.
func NewBreakerClient(inner Client) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-backend",
		MaxRequests: 2,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("AI circuit breaker state change")
		},
	})
	return &BreakerClient{inner: inner, cb: cb}
}

// Complete proxies to the wrapped client through the breaker.
func (b *BreakerClient) Complete(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrUnavailable
		}
		return "", err
	}
	return out.(string), nil
}
