package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations. The full
// definition is kept as a JSONB document; the scalar columns serve listing.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetAll returns the workflows or templates, most recently updated first.
func (r *WorkflowRepository) GetAll(ctx context.Context, templates bool) ([]*models.Workflow, error) {
	query := `
		SELECT definition
		FROM workflows
		WHERE is_template = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, templates)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns nil, nil when no document of that kind exists.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string, template bool) (*models.Workflow, error) {
	query := `SELECT definition FROM workflows WHERE id = $1 AND is_template = $2`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id, template))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow document.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow, template bool) error {
	if err := persistence.ValidateID("SaveWorkflow", workflow.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = now
	}

	definition, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	tags := workflow.Tags
	if tags == nil {
		tags = []string{}
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, description, version, tags, definition, is_template, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			tags = EXCLUDED.tags,
			definition = EXCLUDED.definition,
			is_template = EXCLUDED.is_template,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Version,
		tagsJSON,
		definition,
		template,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow. Templates are not affected.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM workflows WHERE id = $1 AND is_template = FALSE`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var definition []byte

	err := row.Scan(&definition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(definition, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}

	return &workflow, nil
}
