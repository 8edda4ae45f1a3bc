// Package postgresql provides PostgreSQL persistence for workflow definitions and templates.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/persistence/sqlbase"

	// postgres driver registered under "postgres".
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgres_persistence")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewPersistenceWithDB(database, logger), nil
}

// NewPersistenceWithDB wraps an already migrated database handle.
func NewPersistenceWithDB(db *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:           db,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(db, logger),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Workflows returns all workflows from the database.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx, false)
}

// WorkflowByID returns a workflow by its ID.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id, false)
}

// SaveWorkflow saves a workflow to the database.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow, false)
}

// DeleteWorkflow removes a workflow.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

// Templates returns all stored templates.
func (p *Persistence) Templates(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx, true)
}

// SaveTemplate saves a workflow as a reusable template.
func (p *Persistence) SaveTemplate(ctx context.Context, template *models.Workflow) error {
	return p.workflowRepo.Save(ctx, template, true)
}

// TemplateByID returns a stored template by its ID.
func (p *Persistence) TemplateByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id, true)
}
