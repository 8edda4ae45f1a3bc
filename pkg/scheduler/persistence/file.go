package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dukex/conductor/pkg/models"
)

const tasksFile = "scheduled_tasks.json"

// FilePersistence implements TaskPersistence with a single JSON file.
type FilePersistence struct {
	dataDir string
	mu      sync.RWMutex
	tasks   map[string]*models.ScheduledTask
}

// NewFilePersistence creates a new file-based task persistence.
func NewFilePersistence(dataDir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fp := &FilePersistence{
		dataDir: dataDir,
		tasks:   make(map[string]*models.ScheduledTask),
	}

	if err := fp.loadTasks(); err != nil {
		return nil, fmt.Errorf("failed to load scheduled tasks: %w", err)
	}

	return fp, nil
}

func (fp *FilePersistence) SaveTask(_ context.Context, task *models.ScheduledTask) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	fp.tasks[task.ID] = task.Clone()

	return fp.saveTasksToFile()
}

func (fp *FilePersistence) TaskByID(_ context.Context, id string) (*models.ScheduledTask, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	task, exists := fp.tasks[id]
	if !exists {
		return nil, nil
	}

	return task.Clone(), nil
}

// Tasks returns every task ordered by creation time.
func (fp *FilePersistence) Tasks(_ context.Context) ([]*models.ScheduledTask, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	tasks := make([]*models.ScheduledTask, 0, len(fp.tasks))
	for _, task := range fp.tasks {
		tasks = append(tasks, task.Clone())
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

func (fp *FilePersistence) DeleteTask(_ context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	delete(fp.tasks, id)

	return fp.saveTasksToFile()
}

// HealthCheck verifies that the persistence layer is healthy.
func (fp *FilePersistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", fp.dataDir)
	}

	return nil
}

func (fp *FilePersistence) Close() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.saveTasksToFile()
}

func (fp *FilePersistence) loadTasks() error {
	path := filepath.Join(fp.dataDir, tasksFile)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured data directory
	if err != nil {
		return fmt.Errorf("failed to read tasks file: %w", err)
	}

	var tasks []*models.ScheduledTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("failed to unmarshal tasks: %w", err)
	}

	for _, task := range tasks {
		fp.tasks[task.ID] = task
	}

	return nil
}

func (fp *FilePersistence) saveTasksToFile() error {
	tasks := make([]*models.ScheduledTask, 0, len(fp.tasks))
	for _, task := range fp.tasks {
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	if err := os.WriteFile(filepath.Join(fp.dataDir, tasksFile), data, 0600); err != nil {
		return fmt.Errorf("failed to write tasks file: %w", err)
	}

	return nil
}
