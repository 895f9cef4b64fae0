// Package event provides the in-process bus that carries windows, verdicts,
// and summaries between LogSentinel modules.
package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/HerbHall/logsentinel/internal/metrics"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"go.uber.org/zap"
)

var _ plugin.EventBus = (*Bus)(nil)

// Bus implements plugin.EventBus. Publish runs every handler of the topic in
// the publisher's goroutine, in subscription order, so a collected window is
// scored, reported, and delivered before Publish returns.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	seq    uint64
	logger *zap.Logger
	now    func() time.Time
}

type subscription struct {
	id uint64
	fn plugin.EventHandler
}

// NewBus creates an empty bus. A nil logger discards bus diagnostics.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
		now:    time.Now,
	}
}

// Publish delivers event to the topic's handlers. A zero Timestamp is set
// to the current time. A panicking handler does not stop delivery to the
// rest, but is reported in the returned error; a canceled ctx stops
// delivery.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	b.mu.RLock()
	subs := slices.Clone(b.subs[event.Topic])
	b.mu.RUnlock()

	metrics.EventsPublishedTotal.WithLabelValues(event.Topic).Inc()
	if len(subs) == 0 {
		b.logger.Debug("event has no subscribers", zap.String("topic", event.Topic))
		return nil
	}

	failed := 0
	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish %s: %w", event.Topic, err)
		}
		if !b.deliver(ctx, s.fn, event) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("publish %s: %d of %d handlers panicked", event.Topic, failed, len(subs))
	}
	return nil
}

// Subscribe adds handler for topic and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[topic] = slices.DeleteFunc(b.subs[topic], func(s subscription) bool { return s.id == id })
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// deliver calls fn and reports whether it returned without panicking.
func (b *Bus) deliver(ctx context.Context, fn plugin.EventHandler, event plugin.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			metrics.EventHandlerPanicsTotal.WithLabelValues(event.Topic).Inc()
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	fn(ctx, event)
	return true
}
