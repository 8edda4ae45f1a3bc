package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/eventbus"
	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/history"
	"github.com/dukex/conductor/pkg/metrics"
	"github.com/dukex/conductor/pkg/orchestrator"
	"github.com/dukex/conductor/pkg/otelhelper"
	"github.com/dukex/conductor/pkg/persistence"
	"github.com/dukex/conductor/pkg/registry"
	"github.com/dukex/conductor/pkg/scheduler"
	schedpersistence "github.com/dukex/conductor/pkg/scheduler/persistence"
	"github.com/dukex/conductor/pkg/services"
	"github.com/dukex/conductor/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// Config carries everything the binaries read from flags and environment.
type Config struct {
	DatabaseURL             string
	SchedulerPersistenceURL string
	SchedulerTimezone       string
	EventBusType            string
	KafkaBrokers            string
	HistoryURL              string
	LLM                     LLMConfig
	RetryBaseDelay          time.Duration
	StepTimeout             time.Duration
	OtelEnabled             bool
}

// Components is the explicit dependency graph of a running conductor.
type Components struct {
	Logger       *slog.Logger
	Persistence  persistence.Persistence
	TaskStore    schedpersistence.TaskPersistence
	EventBus     eventbus.EventBus
	Dispatcher   *eventbus.Dispatcher
	History      history.Store
	Metrics      *metrics.Collector
	Tracer       trace.Tracer
	Registry     *registry.Registry
	Engine       *workflow.Engine
	Workflows    *services.Workflow
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator

	closers []func(context.Context) error
}

// NewComponents wires the stores, the event bus and the engines. On error
// everything opened so far is closed again.
func NewComponents(ctx context.Context, cfg Config, logger *slog.Logger) (*Components, error) {
	c := &Components{Logger: logger}

	if err := c.build(ctx, cfg); err != nil {
		if closeErr := c.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "Failed to release partially built components", "error", closeErr)
		}

		return nil, err
	}

	return c, nil
}

func (c *Components) build(ctx context.Context, cfg Config) error {
	var err error

	c.Tracer = otelhelper.NoopTracer()

	if cfg.OtelEnabled {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		c.Tracer = tracer
		c.closers = append(c.closers, shutdown)
	}

	location := time.UTC

	if cfg.SchedulerTimezone != "" {
		location, err = time.LoadLocation(cfg.SchedulerTimezone)
		if err != nil {
			return fmt.Errorf("invalid scheduler timezone: %w", err)
		}
	}

	c.Persistence, err = NewPersistence(ctx, c.Logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, c.Persistence.Close)

	c.TaskStore, err = schedpersistence.NewPersistence(ctx, c.Logger, cfg.SchedulerPersistenceURL)
	if err != nil {
		return fmt.Errorf("failed to open scheduler persistence: %w", err)
	}

	c.closers = append(c.closers, func(context.Context) error { return c.TaskStore.Close() })

	c.History, err = history.NewStore(ctx, c.Logger, cfg.HistoryURL)
	if err != nil {
		return fmt.Errorf("failed to open execution history: %w", err)
	}

	c.closers = append(c.closers, func(context.Context) error { return c.History.Close() })

	c.EventBus, err = NewEventBus(cfg.EventBusType, cfg.KafkaBrokers, c.Logger)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func(context.Context) error { return c.EventBus.Close() })

	c.Metrics = metrics.NewCollector(serviceName)
	c.Dispatcher = eventbus.NewDispatcher(c.Logger, c.EventBus)
	c.Registry = NewRegistry(c.Logger)

	c.Orchestrator = RegisterAgents(c.Registry, NewLLMClient(c.Logger, cfg.LLM), c.Logger,
		orchestrator.WithEmitter(c.Dispatcher),
		orchestrator.WithTracer(c.Tracer),
		orchestrator.WithMetrics(c.Metrics),
	)

	c.Engine = workflow.NewEngine(c.Registry, c.Logger,
		workflow.WithEmitter(c.Dispatcher),
		workflow.WithTracer(c.Tracer),
		workflow.WithMetrics(c.Metrics),
		workflow.WithRecorder(c.History),
		workflow.WithRetryBaseDelay(cfg.RetryBaseDelay),
		workflow.WithDefaultTimeout(cfg.StepTimeout),
	)

	c.Scheduler = scheduler.New(c.TaskStore, services.NewWorkflow(c.Persistence, c.Logger), c.Engine, c.Logger,
		scheduler.WithLocation(location),
		scheduler.WithEmitter(c.Dispatcher),
		scheduler.WithTracer(c.Tracer),
		scheduler.WithMetrics(c.Metrics),
	)

	c.Workflows = services.NewWorkflow(c.Persistence, c.Logger, services.WithScheduleCanceller(c.Scheduler))

	return nil
}

// Start subscribes to the event bus and starts the scheduler, which first
// restores the persisted tasks.
func (c *Components) Start(ctx context.Context) error {
	err := c.EventBus.Handle(events.AnyEvent, func(_ context.Context, event events.Event) error {
		c.Metrics.RecordEvent(string(event.Type))

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register event handler: %w", err)
	}

	if err := c.EventBus.Subscribe(ctx); err != nil {
		return err
	}

	c.Dispatcher.Subscribe(func(ctx context.Context, event events.Event) {
		c.Logger.DebugContext(ctx, "Event emitted",
			"event_type", event.Type,
			"source", event.Source,
			"key", event.Key(),
		)
	})

	return c.Scheduler.Start(ctx)
}

// Close stops the scheduler and releases everything in reverse order of
// creation.
func (c *Components) Close(ctx context.Context) error {
	var errs []error

	if c.Scheduler != nil {
		errs = append(errs, c.Scheduler.Stop(ctx))
	}

	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}

	c.closers = nil

	return errors.Join(errs...)
}
