package plugin

import (
	"context"
	"time"
)

// Event is one message on the bus. The Payload type is fixed per topic.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler runs inside Publish, on the publisher's goroutine.
type EventHandler func(ctx context.Context, event Event)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus delivers every event to its topic's handlers before Publish
// returns.
type EventBus interface {
	Publisher
	Subscriber
}

// Subscription pairs a topic with a handler.
type Subscription struct {
	Topic   string
	Handler EventHandler
}

// EventSubscriber declares handlers; the registry subscribes them after
// Init and removes them before Stop.
type EventSubscriber interface {
	Subscriptions() []Subscription
}
