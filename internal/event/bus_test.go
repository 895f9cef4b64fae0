package event

import (
	"context"
	"testing"
	"time"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const topicVerdict = "insight.verdict.ready"

func TestPublish_DeliversSynchronouslyInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	var got []string
	bus.Subscribe(topicVerdict, func(_ context.Context, e plugin.Event) { got = append(got, "report:"+e.Source) })
	bus.Subscribe(topicVerdict, func(_ context.Context, e plugin.Event) { got = append(got, "audit:"+e.Source) })
	bus.Subscribe("collector.window.collected", func(context.Context, plugin.Event) {
		t.Error("handler for another topic must not run")
	})

	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: topicVerdict, Source: "insight"}))
	assert.Equal(t, []string{"report:insight", "audit:insight"}, got, "handlers ran before Publish returned")
}

func TestPublish_Timestamp(t *testing.T) {
	bus := NewBus(nil)
	fixed := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	var ts time.Time
	bus.Subscribe("t", func(_ context.Context, e plugin.Event) { ts = e.Timestamp })

	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "t"}))
	assert.Equal(t, fixed, ts, "zero timestamp stamped")

	set := fixed.Add(-time.Hour)
	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "t", Timestamp: set}))
	assert.Equal(t, set, ts, "explicit timestamp kept")
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	assert.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "report.summary.ready"}))
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	calls := 0
	unsubA := bus.Subscribe("t", func(context.Context, plugin.Event) { calls++ })
	unsubB := bus.Subscribe("t", func(context.Context, plugin.Event) { calls += 10 })
	require.Equal(t, 2, bus.Subscribers("t"))

	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "t"}))
	unsubA()
	unsubA()
	assert.Equal(t, 1, bus.Subscribers("t"))

	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "t"}))
	assert.Equal(t, 21, calls)

	unsubB()
	assert.Zero(t, bus.Subscribers("t"))
}

func TestPublish_HandlerPanicReported(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	reached := false
	bus.Subscribe("t", func(context.Context, plugin.Event) { panic("handler bug") })
	bus.Subscribe("t", func(context.Context, plugin.Event) { reached = true })

	err := bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 handlers panicked")
	assert.True(t, reached, "later handlers still run")
}

func TestPublish_CanceledContextStopsDelivery(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	bus.Subscribe("t", func(context.Context, plugin.Event) { calls++; cancel() })
	bus.Subscribe("t", func(context.Context, plugin.Event) { calls++ })

	err := bus.Publish(ctx, plugin.Event{Topic: "t"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSubscribe_DuringPublish(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	late := 0
	bus.Subscribe("t", func(context.Context, plugin.Event) {
		bus.Subscribe("t", func(context.Context, plugin.Event) { late++ })
	})

	require.NoError(t, bus.Publish(context.Background(), plugin.Event{Topic: "t"}))
	assert.Zero(t, late, "a handler added mid-publish waits for the next event")
}
