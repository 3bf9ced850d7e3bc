// Package feed validates inbound exchange events and hands them to the
// consumers on one channel per topic.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// DefaultBufferSize is the per-topic channel capacity.
const DefaultBufferSize = 1024

// ErrClosed is returned when pushing to a closed feed.
var ErrClosed = errors.New("feed closed")

// Config holds the configuration for the Feed.
type Config struct {
	Logger     ports.Logger
	BufferSize int
}

// Feed drops malformed events and queues the rest in arrival order. Order
// events share a single channel so received, match and done for the same
// order cannot be reordered.
type Feed struct {
	logger   ports.Logger
	validate *validator.Validate
	ticks    chan domain.Tick
	orders   chan domain.OrderEvent

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	dropped int
}

// New creates a Feed.
func New(cfg Config) *Feed {
	if cfg.Logger == nil {
		cfg.Logger = ports.NopLogger{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Feed{
		logger:   cfg.Logger,
		validate: validator.New(),
		ticks:    make(chan domain.Tick, cfg.BufferSize),
		orders:   make(chan domain.OrderEvent, cfg.BufferSize),
		done:     make(chan struct{}),
	}
}

// Ticks is the public trade topic.
func (f *Feed) Ticks() <-chan domain.Tick { return f.ticks }

// OrderEvents is the user order topic.
func (f *Feed) OrderEvents() <-chan domain.OrderEvent { return f.orders }

// Done is closed by Close.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Close stops accepting events. Channels are left open; consumers select on Done.
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// Dropped returns the number of events rejected by validation.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// PushTick validates and queues a public trade.
func (f *Feed) PushTick(t domain.Tick) error {
	if err := f.check("tick", t); err != nil {
		return err
	}
	select {
	case <-f.done:
		return ErrClosed
	case f.ticks <- t:
		return nil
	}
}

// PushReceived validates and queues an order received event.
func (f *Feed) PushReceived(e domain.OrderReceived) error {
	return f.pushOrder("received", e)
}

// PushOpened validates and queues an order opened event.
func (f *Feed) PushOpened(e domain.OrderOpened) error {
	return f.pushOrder("open", e)
}

// PushMatch validates and queues an execution. A missing total price is
// derived from price and size.
func (f *Feed) PushMatch(e domain.OrderMatch) error {
	if e.TotalPrice == 0 {
		e.TotalPrice = e.Price * e.Size
	}
	return f.pushOrder("match", e)
}

// PushDone validates and queues an order done event.
func (f *Feed) PushDone(e domain.OrderDone) error {
	if e.Reason != domain.DoneFilled && e.Reason != domain.DoneCanceled {
		f.drop("done", e, fmt.Errorf("unexpected reason %q", e.Reason))
		return fmt.Errorf("invalid done event: unexpected reason %q", e.Reason)
	}
	return f.pushOrder("done", e)
}

func (f *Feed) pushOrder(topic string, e domain.OrderEvent) error {
	if err := f.check(topic, e); err != nil {
		return err
	}
	select {
	case <-f.done:
		return ErrClosed
	case f.orders <- e:
		return nil
	}
}

func (f *Feed) check(topic string, e interface{}) error {
	if err := f.validate.Struct(e); err != nil {
		f.drop(topic, e, err)
		return fmt.Errorf("invalid %s event: %w", topic, err)
	}
	return nil
}

func (f *Feed) drop(topic string, e interface{}, err error) {
	f.mu.Lock()
	f.dropped++
	f.mu.Unlock()
	f.logger.Warn(context.Background(), "Dropping invalid event", map[string]interface{}{
		"topic": topic,
		"event": fmt.Sprintf("%+v", e),
		"error": err.Error(),
	})
}

// TickHandler adapts the feed to the exchange tick stream.
func (f *Feed) TickHandler() func(domain.Tick) {
	return func(t domain.Tick) { _ = f.PushTick(t) }
}

// UserDataHandlers adapts the feed to the exchange user data stream.
func (f *Feed) UserDataHandlers() ports.UserDataHandlers {
	return ports.UserDataHandlers{
		OnReceived: func(e domain.OrderReceived) { _ = f.PushReceived(e) },
		OnOpened:   func(e domain.OrderOpened) { _ = f.PushOpened(e) },
		OnMatch:    func(e domain.OrderMatch) { _ = f.PushMatch(e) },
		OnDone:     func(e domain.OrderDone) { _ = f.PushDone(e) },
	}
}
