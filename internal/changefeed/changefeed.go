// Package changefeed notifies subscribers when a chat message is
// inserted into the store. It plays the role of a document store's
// native change stream: the repository publishes every successful
// insert, and each open streaming connection holds one filtered
// subscription. Swapping in a real store-level notification primitive
// only requires another Feed implementation.
package changefeed

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/domain"
)

// DefaultSubscriberBuffer is the per-subscription channel capacity.
const DefaultSubscriberBuffer = 64

type Feed interface {
	// Subscribe registers interest in inserts for one project. The
	// caller must Close the subscription when done with it.
	Subscribe(projectID string) *Subscription

	// Publish delivers an inserted message to every subscription whose
	// project filter matches. It never blocks.
	Publish(msg domain.ChatMessage)
}

// Subscription is one filtered insert feed. Safe to Close more than once.
type Subscription struct {
	projectID string
	ch        chan domain.ChatMessage
	broker    *Broker
	once      sync.Once
}

// Events returns the channel of matching inserts. It is closed when the
// subscription is closed.
func (s *Subscription) Events() <-chan domain.ChatMessage {
	return s.ch
}

// Close releases the subscription. Events() is closed and no further
// inserts are delivered.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}

// Broker is an in-process Feed. Subscriptions are independent; a slow
// subscriber only drops its own events (its buffer fills and Publish
// skips it), it never delays other subscribers or the writer.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *Broker) Subscribe(projectID string) *Subscription {
	sub := &Subscription{
		projectID: projectID,
		ch:        make(chan domain.ChatMessage, b.buffer),
		broker:    b,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

func (b *Broker) Publish(msg domain.ChatMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.projectID != msg.ProjectID {
			continue
		}

		select {
		case sub.ch <- msg:
		default:
			// Subscriber buffer full. Drop rather than block the writer.
			zap.L().Warn("changefeed subscriber buffer full, dropping event",
				zap.String("projectID", msg.ProjectID),
				zap.Uint("messageID", msg.ID))
		}
	}
}

// SubscriberCount reports how many subscriptions are currently open.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}
