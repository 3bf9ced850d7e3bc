// Package events provides the in-process publish/subscribe dispatcher used by
// every core entity.
package events

import (
	"errors"
	"sync"
)

// ErrUnknownSubscription is returned when unsubscribing a handler that is not registered.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Handler receives the payload published on a topic.
type Handler[T any] func(T)

// Subscription identifies a registered handler.
type Subscription uint64

type subscriber[T any] struct {
	id      Subscription
	handler Handler[T]
}

// Bus dispatches payloads synchronously to the handlers registered for a topic,
// in registration order. Handlers may subscribe or unsubscribe while a publish
// is in flight; the change takes effect from the next publish.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID Subscription
	topics map[string][]subscriber[T]
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{topics: make(map[string][]subscriber[T])}
}

// On registers handler for topic.
func (b *Bus[T]) On(topic string, handler Handler[T]) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.topics[topic] = append(b.topics[topic], subscriber[T]{id: b.nextID, handler: handler})
	return b.nextID
}

// Off removes a single handler from topic.
func (b *Bus[T]) Off(topic string, id Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		rest := make([]subscriber[T], 0, len(subs)-1)
		rest = append(rest, subs[:i]...)
		rest = append(rest, subs[i+1:]...)
		if len(rest) == 0 {
			delete(b.topics, topic)
		} else {
			b.topics[topic] = rest
		}
		return nil
	}
	return ErrUnknownSubscription
}

// OffAll removes every handler from topic.
func (b *Bus[T]) OffAll(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, topic)
}

// Trigger calls every handler registered for topic with data.
func (b *Bus[T]) Trigger(topic string, data T) {
	b.mu.RLock()
	subs := b.topics[topic]
	b.mu.RUnlock()

	// subs is never mutated in place, so iterating it outside the lock is safe.
	for _, s := range subs {
		s.handler(data)
	}
}

// Count returns the number of handlers registered for topic.
func (b *Bus[T]) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
