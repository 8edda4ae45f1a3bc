// Package file provides file-based persistence for workflow definitions and templates.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	templatesDir = "templates"
)

// Persistence implements persistence.Persistence with one JSON document per
// workflow under {root}/workflows and {root}/templates.
type Persistence struct {
	root      string
	workflows *documentStore
	templates *documentStore
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:      cleanRoot,
		workflows: newDocumentStore(filepath.Join(cleanRoot, workflowsDir), persistence.ErrWorkflowNotFound),
		templates: newDocumentStore(filepath.Join(cleanRoot, templatesDir), persistence.ErrTemplateNotFound),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	return fp.workflows.all()
}

func (fp *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	return fp.workflows.save("SaveWorkflow", workflow)
}

func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	return fp.workflows.byID("WorkflowByID", id)
}

func (fp *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	return fp.workflows.remove("DeleteWorkflow", id)
}

func (fp *Persistence) Templates(_ context.Context) ([]*models.Workflow, error) {
	return fp.templates.all()
}

func (fp *Persistence) SaveTemplate(_ context.Context, template *models.Workflow) error {
	return fp.templates.save("SaveTemplate", template)
}

func (fp *Persistence) TemplateByID(_ context.Context, id string) (*models.Workflow, error) {
	return fp.templates.byID("TemplateByID", id)
}

type documentStore struct {
	mu       sync.RWMutex
	dir      string
	notFound error
}

func newDocumentStore(dir string, notFound error) *documentStore {
	return &documentStore{dir: dir, notFound: notFound}
}

func (s *documentStore) path(id string) string {
	return filepath.Clean(filepath.Join(s.dir, id+".json"))
}

// all returns every stored document, most recently updated first.
func (s *documentStore) all() ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(s.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := s.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if workflow != nil {
			workflows = append(workflows, workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	return workflows, nil
}

func (s *documentStore) byID(op, id string) (*models.Workflow, error) {
	if err := persistence.ValidateID(op, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.read(id)
}

func (s *documentStore) read(id string) (*models.Workflow, error) {
	body, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (s *documentStore) save(op string, workflow *models.Workflow) error {
	if err := persistence.ValidateID(op, workflow.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.MkdirAll(s.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", s.dir, err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	if workflow.UpdatedAt.IsZero() {
		workflow.UpdatedAt = now
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	return os.WriteFile(s.path(workflow.ID), data, 0600)
}

func (s *documentStore) remove(op, id string) error {
	if err := persistence.ValidateID(op, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewWorkflowError(op, id, s.notFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	return nil
}
