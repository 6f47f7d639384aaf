// Package event implements the in-memory plugin.EventBus used for
// inter-plugin messaging in a single process.
package event

import (
	"context"
	"slices"
	"sync"

	"github.com/sensorvision/pilot/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus fans events out to per-topic and wildcard subscribers. Publish
// runs handlers in the caller's goroutine; PublishAsync spawns one
// goroutine per handler. A panicking handler is logged, never fatal.
type Bus struct {
	mu        sync.RWMutex
	byTopic   map[string][]subscriber
	wildcards []subscriber
	nextID    uint64
	logger    *zap.Logger
}

type subscriber struct {
	id      uint64
	handler plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		byTopic: make(map[string][]subscriber),
		logger:  logger,
	}
}

// Publish delivers the event synchronously to every matching handler.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, s := range b.snapshot(event.Topic) {
		b.dispatch(ctx, s.handler, event)
	}
	return nil
}

// PublishAsync delivers the event with one goroutine per handler.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, s := range b.snapshot(event.Topic) {
		go b.dispatch(ctx, s.handler, event)
	}
}

// Subscribe registers a handler for one topic and returns its
// unsubscribe function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.byTopic[topic] = append(b.byTopic[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = removeSubscriber(b.byTopic[topic], id)
	}
}

// SubscribeAll registers a handler for every topic and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.wildcards = append(b.wildcards, subscriber{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcards = removeSubscriber(b.wildcards, id)
	}
}

// snapshot copies the matching subscriber lists so handlers can
// subscribe or unsubscribe during delivery without deadlocking.
func (b *Bus) snapshot(topic string) []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]subscriber, 0, len(b.byTopic[topic])+len(b.wildcards))
	out = append(out, b.byTopic[topic]...)
	out = append(out, b.wildcards...)
	return out
}

func (b *Bus) dispatch(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	return slices.DeleteFunc(subs, func(s subscriber) bool { return s.id == id })
}
