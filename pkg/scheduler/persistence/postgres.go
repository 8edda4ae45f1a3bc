package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/persistence/sqlbase"

	// postgres driver registered under "postgres".
	_ "github.com/lib/pq"
)

// PostgresPersistence implements TaskPersistence using PostgreSQL.
type PostgresPersistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPersistence opens the database and applies the scheduler migrations.
func NewPostgresPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresPersistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, schedulerMigrations(), sqlbase.WithTable(migrationsTable))

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run scheduler migrations: %w", err)
	}

	logger.InfoContext(ctx, "Scheduler PostgreSQL persistence initialized successfully")

	return NewPostgresPersistenceWithDB(database, logger), nil
}

// NewPostgresPersistenceWithDB wraps an already migrated database handle.
func NewPostgresPersistenceWithDB(db *sql.DB, logger *slog.Logger) *PostgresPersistence {
	return &PostgresPersistence{
		db:     db,
		logger: logger.With("module", "scheduler_postgres_persistence"),
	}
}

// SaveTask inserts or updates a scheduled task.
func (p *PostgresPersistence) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	query := `
		INSERT INTO scheduled_tasks (
			id, workflow_id, name, trigger_type, trigger_config, variables, enabled,
			created_at, updated_at, last_run, next_run, run_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id)
		DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			variables = EXCLUDED.variables,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			run_count = EXCLUDED.run_count
	`

	triggerConfig, err := encodeMap(task.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	variables, err := encodeMap(task.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	_, err = p.db.ExecContext(ctx, query,
		task.ID,
		task.WorkflowID,
		task.Name,
		string(task.TriggerType),
		triggerConfig,
		variables,
		task.Enabled,
		task.CreatedAt,
		task.UpdatedAt,
		task.LastRun,
		task.NextRun,
		task.RunCount,
	)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save scheduled task", "task_id", task.ID, "error", err)

		return fmt.Errorf("failed to save scheduled task: %w", err)
	}

	p.logger.DebugContext(ctx, "Scheduled task saved", "task_id", task.ID, "workflow_id", task.WorkflowID)

	return nil
}

// TaskByID returns the task or nil when it does not exist.
func (p *PostgresPersistence) TaskByID(ctx context.Context, id string) (*models.ScheduledTask, error) {
	query := `
		SELECT id, workflow_id, name, trigger_type, trigger_config, variables, enabled,
			created_at, updated_at, last_run, next_run, run_count
		FROM scheduled_tasks
		WHERE id = $1
	`

	task, err := scanTask(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to get scheduled task", "task_id", id, "error", err)

		return nil, fmt.Errorf("failed to get scheduled task: %w", err)
	}

	return task, nil
}

// Tasks returns every task ordered by creation time.
func (p *PostgresPersistence) Tasks(ctx context.Context) ([]*models.ScheduledTask, error) {
	query := `
		SELECT id, workflow_id, name, trigger_type, trigger_config, variables, enabled,
			created_at, updated_at, last_run, next_run, run_count
		FROM scheduled_tasks
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to query scheduled tasks", "error", err)

		return nil, fmt.Errorf("failed to query scheduled tasks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	tasks := make([]*models.ScheduledTask, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled tasks: %w", err)
	}

	return tasks, nil
}

// DeleteTask removes a task. Deleting a missing task is not an error.
func (p *PostgresPersistence) DeleteTask(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM scheduled_tasks WHERE id = $1", id)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to delete scheduled task", "task_id", id, "error", err)

		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *PostgresPersistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *PostgresPersistence) Close() error {
	if p.db == nil {
		return nil
	}

	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.ScheduledTask, error) {
	var (
		task          models.ScheduledTask
		triggerType   string
		triggerConfig string
		variables     string
		lastRun       sql.NullTime
		nextRun       sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&task.WorkflowID,
		&task.Name,
		&triggerType,
		&triggerConfig,
		&variables,
		&task.Enabled,
		&task.CreatedAt,
		&task.UpdatedAt,
		&lastRun,
		&nextRun,
		&task.RunCount,
	)
	if err != nil {
		return nil, err
	}

	task.TriggerType = models.TriggerType(triggerType)

	if task.TriggerConfig, err = decodeMap(triggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if task.Variables, err = decodeMap(variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if lastRun.Valid {
		task.LastRun = &lastRun.Time
	}

	if nextRun.Valid {
		task.NextRun = &nextRun.Time
	}

	return &task, nil
}

func encodeMap(values map[string]any) (string, error) {
	if values == nil {
		return "{}", nil
	}

	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func decodeMap(data string) (map[string]any, error) {
	values := map[string]any{}
	if data == "" {
		return values, nil
	}

	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}

	return values, nil
}
