package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jmallia/go-match-backend/internal/bus"
	"github.com/jmallia/go-match-backend/internal/services"
)

// ReplyOrchestrator listens for appended human messages and schedules the
// automated counterpart reply for each one. Per match it is single-flight: a
// reply guard claimed before generation and cleared unconditionally after,
// so overlapping triggers within the debounce window produce at most one
// reply and the guard can never remain stuck set.
type ReplyOrchestrator struct {
	replies *services.ReplyService
	guards  *Guards
	delay   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReplyOrchestrator builds an orchestrator over the reply service. delay
// is the pause between a human message landing and the reply check; zero
// falls back to the reference 2 seconds.
func NewReplyOrchestrator(replies *services.ReplyService, delay time.Duration) *ReplyOrchestrator {
	if delay <= 0 {
		delay = DefaultConfig().ReplyDelay
	}
	return &ReplyOrchestrator{
		replies: replies,
		guards:  NewGuards(),
		delay:   delay,
		done:    make(chan struct{}),
	}
}

// Start subscribes to message events and begins dispatching reply cycles.
func (o *ReplyOrchestrator) Start(b *bus.Bus) {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	events, unsub := b.Subscribe(bus.KindMessageAppended, 64)
	go func() {
		defer close(o.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				p, ok := evt.Payload.(bus.MessageAppended)
				if !ok {
					continue
				}
				o.onHumanMessage(ctx, p)
			}
		}
	}()
}

// Stop cancels all pending reply cycles and waits for the dispatcher to
// exit.
func (o *ReplyOrchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
}

// Guards exposes the orchestrator's guard set.
func (o *ReplyOrchestrator) Guards() *Guards { return o.guards }

// onHumanMessage runs one reply cycle in the background. Any guard left set
// by a previous message cycle is cleared immediately, then the cycle waits
// out the typing delay, re-claims the guard, and generates.
func (o *ReplyOrchestrator) onHumanMessage(ctx context.Context, p bus.MessageAppended) {
	o.guards.EndReply(p.MatchID)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.delay):
		}

		if !o.guards.TryBeginReply(p.MatchID) {
			return
		}
		// The guard must clear no matter how generation ends.
		defer o.guards.EndReply(p.MatchID)

		msg, err := o.replies.GenerateReply(ctx, p.SenderID, p.MatchID)
		if err != nil {
			// No retry; the next human message starts a fresh cycle.
			log.Warn().Err(err).Str("match_id", p.MatchID).Msg("automated reply failed")
			return
		}
		if msg != nil {
			log.Debug().Str("match_id", p.MatchID).Str("message_id", msg.ID).Msg("automated reply appended")
		}
	}()
}
