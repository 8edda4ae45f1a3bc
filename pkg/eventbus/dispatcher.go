package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/conductor/pkg/events"
)

// Dispatcher is the events.Emitter handed to the engine, the scheduler and
// the orchestrator. Hook failures and panics are logged and never reach the
// emitting component.
type Dispatcher struct {
	logger    *slog.Logger
	publisher EventPublisher

	mu     sync.RWMutex
	nextID int
	hooks  map[int]events.EmitterFunc
}

func NewDispatcher(logger *slog.Logger, publisher EventPublisher) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With("module", "event_dispatcher"),
		publisher: publisher,
		hooks:     make(map[int]events.EmitterFunc),
	}
}

// Subscribe registers a hook and returns a function that removes it.
func (d *Dispatcher) Subscribe(hook events.EmitterFunc) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.hooks[id] = hook

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		delete(d.hooks, id)
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event events.Event) {
	d.mu.RLock()
	hooks := make([]events.EmitterFunc, 0, len(d.hooks))
	for _, hook := range d.hooks {
		hooks = append(hooks, hook)
	}
	d.mu.RUnlock()

	for _, hook := range hooks {
		d.call(ctx, hook, event)
	}

	if d.publisher == nil {
		return
	}

	if err := d.publisher.Publish(ctx, event.Key(), event); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.Type, "error", err)
	}
}

func (d *Dispatcher) call(ctx context.Context, hook events.EmitterFunc, event events.Event) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.ErrorContext(ctx, "Event hook panicked", "event_type", event.Type, "panic", p)
		}
	}()

	hook(ctx, event)
}
