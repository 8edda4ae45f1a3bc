// Package scheduler runs workflows on cron, interval and one-shot date
// triggers and rebuilds its job table from durable storage on start.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conductor/pkg/events"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/otelhelper"
	"github.com/dukex/conductor/pkg/scheduler/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrTaskNotFound = errors.New("scheduled task not found")

// WorkflowSource looks up the workflow a task runs.
type WorkflowSource interface {
	FetchByID(ctx context.Context, id string) (*models.Workflow, error)
}

// Runner executes a workflow to completion.
type Runner interface {
	Execute(ctx context.Context, workflow *models.Workflow, initial map[string]any) *models.WorkflowExecution
}

type Metrics interface {
	RecordScheduledRun(triggerType string, success bool)
}

type Stats struct {
	TotalTasks       int  `json:"total_tasks"`
	EnabledTasks     int  `json:"enabled_tasks"`
	DisabledTasks    int  `json:"disabled_tasks"`
	TotalRuns        int  `json:"total_runs"`
	SchedulerRunning bool `json:"scheduler_running"`
}

// entry is a task plus its runtime schedule. entryID is zero while the task
// has no live job (paused, or a date that already fired).
type entry struct {
	task     *models.ScheduledTask
	schedule cron.Schedule
	entryID  cron.EntryID
}

type Scheduler struct {
	store     persistence.TaskPersistence
	workflows WorkflowSource
	runner    Runner
	logger    *slog.Logger
	emitter   events.Emitter
	tracer    trace.Tracer
	metrics   Metrics
	location  *time.Location

	mu      sync.RWMutex
	cron    *cron.Cron
	tasks   map[string]*entry
	running bool
}

type Option func(*Scheduler)

// WithLocation sets the zone cron fields are evaluated in. Defaults to UTC.
func WithLocation(location *time.Location) Option {
	return func(s *Scheduler) {
		if location != nil {
			s.location = location
		}
	}
}

func WithEmitter(emitter events.Emitter) Option {
	return func(s *Scheduler) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

func New(
	store persistence.TaskPersistence,
	workflows WorkflowSource,
	runner Runner,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		store:     store,
		workflows: workflows,
		runner:    runner,
		logger:    logger.With("module", "scheduler"),
		emitter:   events.Discard,
		tracer:    otelhelper.NoopTracer(),
		location:  time.UTC,
		tasks:     make(map[string]*entry),
	}

	for _, opt := range opts {
		opt(s)
	}

	cronLog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	return s
}

// Start rebuilds the job table from storage and starts firing jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.LoadPersistedTasks(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true

	s.logger.InfoContext(ctx, "Scheduler started", "tasks", len(s.tasks))

	return nil
}

// Stop halts new fires and waits for in-flight runs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()

		return nil
	}

	stopped := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Stopping scheduler, waiting for running jobs")

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// LoadPersistedTasks rebuilds the in-memory table from storage. Enabled
// tasks get a live job; disabled tasks are listed without one so they can be
// resumed. Date tasks whose fire time has passed are skipped. Loading the same
// task twice replaces its job instead of adding a second one.
func (s *Scheduler) LoadPersistedTasks(ctx context.Context) error {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled tasks: %w", err)
	}

	now := s.now()
	loaded := 0

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		schedule, err := ParseTrigger(task.TriggerType, task.TriggerConfig, s.location)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to rebuild trigger", "task_id", task.ID, "error", err)

			continue
		}

		if task.TriggerType == models.TriggerTypeDate && task.Enabled && nextRun(schedule, now) == nil {
			s.logger.InfoContext(ctx, "Skipping expired date task", "task_id", task.ID, "name", task.Name)

			continue
		}

		if existing, ok := s.tasks[task.ID]; ok {
			s.unregister(existing)
		}

		e := &entry{task: task, schedule: schedule}
		if task.Enabled {
			s.register(e, now)
		}

		s.tasks[task.ID] = e
		loaded++
	}

	s.logger.InfoContext(ctx, "Loaded scheduled tasks", "count", loaded)

	return nil
}

// Schedule registers a new task. It returns a nil task and an error wrapping
// ErrInvalidTrigger or ErrPastDate when the trigger cannot be built.
func (s *Scheduler) Schedule(
	ctx context.Context,
	workflowID string,
	name string,
	triggerType models.TriggerType,
	triggerConfig map[string]any,
	variables map[string]any,
) (*models.ScheduledTask, error) {
	if !triggerType.Valid() {
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, triggerType)
	}

	schedule, err := ParseTrigger(triggerType, triggerConfig, s.location)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if triggerType == models.TriggerTypeDate && nextRun(schedule, now) == nil {
		return nil, ErrPastDate
	}

	if triggerConfig == nil {
		triggerConfig = map[string]any{}
	}

	if variables == nil {
		variables = map[string]any{}
	}

	task := &models.ScheduledTask{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		Name:          name,
		TriggerType:   triggerType,
		TriggerConfig: triggerConfig,
		Variables:     variables,
		Enabled:       true,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}

	e := &entry{task: task, schedule: schedule}

	s.mu.Lock()
	s.register(e, now)
	s.tasks[task.ID] = e
	snapshot := task.Clone()
	s.mu.Unlock()

	if err := s.store.SaveTask(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.unregister(e)
		delete(s.tasks, task.ID)
		s.mu.Unlock()

		return nil, fmt.Errorf("failed to persist scheduled task: %w", err)
	}

	s.logger.InfoContext(ctx, "Task scheduled",
		"task_id", task.ID,
		"workflow_id", workflowID,
		"trigger_type", triggerType,
		"next_run", snapshot.NextRun)

	s.emit(ctx, events.TaskScheduled, snapshot, map[string]any{"next_run": formatTime(snapshot.NextRun)})

	return snapshot, nil
}

// Pause removes the live job and persists the task as disabled.
func (s *Scheduler) Pause(ctx context.Context, taskID string) (*models.ScheduledTask, error) {
	return s.update(ctx, taskID, events.TaskPaused, func(e *entry) {
		s.unregister(e)
		e.task.Enabled = false
		e.task.NextRun = nil
	})
}

// Resume registers the job again and refreshes next_run.
func (s *Scheduler) Resume(ctx context.Context, taskID string) (*models.ScheduledTask, error) {
	return s.update(ctx, taskID, events.TaskResumed, func(e *entry) {
		e.task.Enabled = true
		if e.entryID == 0 {
			s.register(e, s.now())
		}
	})
}

// Cancel removes the task from the live scheduler and from storage.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()

	e, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()

		return ErrTaskNotFound
	}

	s.unregister(e)
	delete(s.tasks, taskID)
	snapshot := e.task.Clone()
	s.mu.Unlock()

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}

	s.logger.InfoContext(ctx, "Task cancelled", "task_id", taskID)
	s.emit(ctx, events.TaskCancelled, snapshot, nil)

	return nil
}

// RunNow fires the task once in the background. The regular schedule and
// next_run are left untouched.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) error {
	s.mu.RLock()
	_, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if !ok {
		return ErrTaskNotFound
	}

	go s.runTask(context.WithoutCancel(ctx), taskID)

	return nil
}

func (s *Scheduler) Get(taskID string) (*models.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	return e.task.Clone(), nil
}

// List returns every known task, oldest first.
func (s *Scheduler) List() []*models.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*models.ScheduledTask, 0, len(s.tasks))
	for _, e := range s.tasks {
		tasks = append(tasks, e.task.Clone())
	}

	sortByCreation(tasks)

	return tasks
}

func (s *Scheduler) TasksByWorkflow(workflowID string) []*models.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*models.ScheduledTask, 0)

	for _, e := range s.tasks {
		if e.task.WorkflowID == workflowID {
			tasks = append(tasks, e.task.Clone())
		}
	}

	sortByCreation(tasks)

	return tasks
}

func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalTasks:       len(s.tasks),
		SchedulerRunning: s.running,
	}

	for _, e := range s.tasks {
		if e.task.Enabled {
			stats.EnabledTasks++
		}

		stats.TotalRuns += e.task.RunCount
	}

	stats.DisabledTasks = stats.TotalTasks - stats.EnabledTasks

	return stats
}

func (s *Scheduler) update(
	ctx context.Context,
	taskID string,
	eventType events.EventType,
	change func(e *entry),
) (*models.ScheduledTask, error) {
	s.mu.Lock()

	e, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()

		return nil, ErrTaskNotFound
	}

	change(e)
	e.task.UpdatedAt = time.Now().UTC()
	snapshot := e.task.Clone()
	s.mu.Unlock()

	if err := s.store.SaveTask(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist scheduled task: %w", err)
	}

	s.logger.InfoContext(ctx, "Task updated", "task_id", taskID, "event", eventType, "enabled", snapshot.Enabled)
	s.emit(ctx, eventType, snapshot, map[string]any{"next_run": formatTime(snapshot.NextRun)})

	return snapshot, nil
}

// register adds the cron job for e. Callers hold s.mu.
func (s *Scheduler) register(e *entry, now time.Time) {
	e.task.NextRun = nextRun(e.schedule, now)
	if e.task.NextRun == nil {
		return
	}

	taskID := e.task.ID
	e.entryID = s.cron.Schedule(e.schedule, cron.FuncJob(func() {
		s.runTask(context.Background(), taskID)
	}))
}

// unregister removes the cron job for e. Callers hold s.mu.
func (s *Scheduler) unregister(e *entry) {
	if e.entryID != 0 {
		s.cron.Remove(e.entryID)
		e.entryID = 0
	}
}

// upcoming reads the next fire time from the live job when there is one.
// Callers hold s.mu.
func (s *Scheduler) upcoming(e *entry, now time.Time) *time.Time {
	if e.entryID != 0 && s.running {
		if live := s.cron.Entry(e.entryID); live.Valid() && !live.Next.IsZero() {
			next := live.Next.UTC()

			return &next
		}
	}

	return nextRun(e.schedule, now)
}

func (s *Scheduler) runTask(ctx context.Context, taskID string) {
	s.mu.RLock()
	e, ok := s.tasks[taskID]

	var task *models.ScheduledTask
	if ok {
		task = e.task.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.run",
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.WorkflowIDKey, task.WorkflowID),
		attribute.String(otelhelper.TriggerTypeKey, string(task.TriggerType)),
	)
	defer span.End()

	logger := s.logger.With("task_id", task.ID, "workflow_id", task.WorkflowID)

	s.emit(ctx, events.ScheduledRunStarted, task, nil)

	workflow, err := s.workflows.FetchByID(ctx, task.WorkflowID)
	if err != nil || workflow == nil {
		logger.WarnContext(ctx, "Scheduled workflow not found", "error", err)
		span.SetStatus(codes.Error, "workflow not found")
		s.emit(ctx, events.ScheduledRunFailed, task, map[string]any{"error": "workflow not found"})

		return
	}

	execution := s.runner.Execute(ctx, workflow, task.Variables)
	now := s.now()

	s.mu.Lock()

	current, stillScheduled := s.tasks[taskID]
	if stillScheduled {
		lastRun := now.UTC()
		current.task.RunCount++
		current.task.LastRun = &lastRun
		current.task.UpdatedAt = lastRun

		if current.task.Enabled {
			current.task.NextRun = s.upcoming(current, now)
			if current.task.NextRun == nil {
				s.unregister(current)
			}
		}

		task = current.task.Clone()
	}
	s.mu.Unlock()

	if stillScheduled {
		if err := s.store.SaveTask(ctx, task); err != nil {
			logger.ErrorContext(ctx, "Failed to persist run stats", "error", err)
		}
	}

	status := execution.CurrentStatus()
	success := status == models.ExecutionStatusCompleted

	if s.metrics != nil {
		s.metrics.RecordScheduledRun(string(task.TriggerType), success)
	}

	data := map[string]any{
		"execution_id": execution.ID,
		"status":       string(status),
		"next_run":     formatTime(task.NextRun),
	}

	if success {
		logger.InfoContext(ctx, "Scheduled run completed", "execution_id", execution.ID)
		s.emit(ctx, events.ScheduledRunCompleted, task, data)

		return
	}

	summary := execution.Summary()
	data["error"] = summary.Error

	span.SetStatus(codes.Error, summary.Error)
	logger.WarnContext(ctx, "Scheduled run failed", "execution_id", execution.ID, "status", status, "error", summary.Error)
	s.emit(ctx, events.ScheduledRunFailed, task, data)
}

// now is the current time in the scheduler's location, which is where cron
// fields are evaluated.
func (s *Scheduler) now() time.Time {
	return time.Now().In(s.location)
}

func (s *Scheduler) emit(ctx context.Context, eventType events.EventType, task *models.ScheduledTask, data map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "Event emitter panicked", "event_type", eventType, "panic", p)
		}
	}()

	event := events.New(events.SourceScheduler, eventType, data)
	event.TaskID = task.ID
	event.WorkflowID = task.WorkflowID

	s.emitter.Emit(ctx, event)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.Format(time.RFC3339)
}
