// Package bus provides an in-process publish/subscribe event bus.
// Subscribers register a topic prefix; publishing never blocks, a
// subscriber whose buffer is full simply misses the event.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Event kinds published by the engine.
const (
	// KindMessageAppended fires after a message is persisted to a match.
	KindMessageAppended = "match.message_appended"
	// KindMatchCreated fires after a new match row is created.
	KindMatchCreated = "match.created"
)

// Event carries a single domain occurrence.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageAppended is the payload of KindMessageAppended.
type MessageAppended struct {
	MatchID   string
	MessageID string
	SenderID  string
}

// MatchCreated is the payload of KindMatchCreated.
type MatchCreated struct {
	MatchID string
	UserAID string
	UserBID string
	Forced  bool
}

// Bus fans events out to prefix-matched subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers evt to every subscriber whose prefix matches
// evt.Kind. A zero Timestamp is stamped with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Full subscriber; drop rather than block the publisher.
			}
		}
	}
}

// Subscribe registers a receiver for kinds starting with prefix and
// returns the channel plus an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
