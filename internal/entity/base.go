// Package entity holds the identity, event and snapshot plumbing shared by
// every core entity.
package entity

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"eveBot/internal/domain"
	"eveBot/internal/events"
	"eveBot/internal/ports"
)

// TopicUpdated is published after every mutation of an entity.
const TopicUpdated = "updated"

// Base carries an entity's id, its event bus and its snapshot sequence.
// T is the payload type of the entity's topics.
type Base[T any] struct {
	name     string
	id       string
	bus      *events.Bus[T]
	sequence atomic.Uint64
	logger   ports.Logger
}

// NewBase creates a Base with a fresh uuid.
func NewBase[T any](name string, logger ports.Logger) *Base[T] {
	return NewBaseWithID[T](name, uuid.NewString(), logger)
}

// NewBaseWithID creates a Base with a caller supplied id.
func NewBaseWithID[T any](name, id string, logger ports.Logger) *Base[T] {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Base[T]{
		name:   name,
		id:     id,
		bus:    events.NewBus[T](),
		logger: logger,
	}
}

// ID returns the entity id.
func (b *Base[T]) ID() string { return b.id }

// Name returns the entity kind, e.g. "order".
func (b *Base[T]) Name() string { return b.name }

// On subscribes to one of the entity's topics.
func (b *Base[T]) On(topic string, h events.Handler[T]) events.Subscription {
	return b.bus.On(topic, h)
}

// Off unsubscribes a handler.
func (b *Base[T]) Off(topic string, id events.Subscription) error {
	return b.bus.Off(topic, id)
}

// Subscribers returns the number of handlers on topic.
func (b *Base[T]) Subscribers(topic string) int {
	return b.bus.Count(topic)
}

// Publish triggers topic. Callers must not hold the entity's lock.
func (b *Base[T]) Publish(topic string, data T) {
	b.bus.Trigger(topic, data)
}

// NewSnapshot wraps data with the entity identity and the next sequence number.
func (b *Base[T]) NewSnapshot(data any) domain.Snapshot {
	return domain.Snapshot{
		Name: b.name,
		ID:   b.id,
		Type: b.sequence.Add(1),
		Data: data,
	}
}

// Logger returns the entity logger.
func (b *Base[T]) Logger() ports.Logger { return b.logger }

// Fields returns the log fields identifying the entity merged with extra.
func (b *Base[T]) Fields(extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{"entity": b.name, "id": b.id}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// LogInfo logs at info level with the entity identity attached.
func (b *Base[T]) LogInfo(ctx context.Context, msg string, extra map[string]interface{}) {
	b.logger.Info(ctx, msg, b.Fields(extra))
}

// LogError logs at error level with the entity identity attached.
func (b *Base[T]) LogError(ctx context.Context, err error, msg string, extra map[string]interface{}) {
	b.logger.Error(ctx, err, msg, b.Fields(extra))
}
