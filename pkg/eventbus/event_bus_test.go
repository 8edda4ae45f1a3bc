package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conductor/pkg/channels/gochannel"
	"github.com/dukex/conductor/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct {
	calls int
}

func (f *failingPublisher) Publish(context.Context, string, events.Event) error {
	f.calls++

	return errors.New("broker unavailable")
}

func TestDispatcher_HooksAndUnsubscribe(t *testing.T) {
	t.Parallel()

	publisher := &failingPublisher{}
	dispatcher := NewDispatcher(slog.Default(), publisher)

	var got []events.EventType

	unsubscribe := dispatcher.Subscribe(func(_ context.Context, e events.Event) { got = append(got, e.Type) })
	dispatcher.Subscribe(func(context.Context, events.Event) { panic("bad hook") })

	dispatcher.Emit(context.Background(), events.New(events.SourceEngine, events.WorkflowStarted, nil))
	unsubscribe()
	dispatcher.Emit(context.Background(), events.New(events.SourceEngine, events.WorkflowCompleted, nil))

	assert.Equal(t, []events.EventType{events.WorkflowStarted}, got)
	assert.Equal(t, 2, publisher.calls)
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	var (
		mu       sync.Mutex
		received []events.Event
	)

	require.NoError(t, bus.Handle(events.AnyEvent, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()

		received = append(received, e)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	dispatcher := NewDispatcher(slog.Default(), bus)

	event := events.New(events.SourceScheduler, events.TaskScheduled, map[string]any{"name": "nightly"})
	event.TaskID = "task-1"
	dispatcher.Emit(ctx, event)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, event.ID, received[0].ID)
	assert.Equal(t, events.TaskScheduled, received[0].Type)
	assert.Equal(t, "task-1", received[0].TaskID)
	assert.Equal(t, "nightly", received[0].Data["name"])
}
