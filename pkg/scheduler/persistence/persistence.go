// Package persistence stores scheduled tasks so the scheduler can rebuild its
// job table after a restart.
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dukex/conductor/pkg/models"
)

var ErrUnsupportedScheme = errors.New("unsupported scheduler persistence scheme")

// TaskPersistence is the durable side of the scheduler. TaskByID returns
// nil, nil when the task does not exist.
type TaskPersistence interface {
	SaveTask(ctx context.Context, task *models.ScheduledTask) error
	TaskByID(ctx context.Context, id string) (*models.ScheduledTask, error)
	Tasks(ctx context.Context) ([]*models.ScheduledTask, error)
	DeleteTask(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewPersistence creates the appropriate persistence implementation based on URL scheme:
// file://dir, postgres://..., sqlite://path.
func NewPersistence(ctx context.Context, logger *slog.Logger, persistenceURL string) (TaskPersistence, error) {
	scheme := parseScheme(persistenceURL)

	logger.InfoContext(ctx, "Initializing scheduler persistence", "scheme", scheme)

	switch scheme {
	case "file":
		return NewFilePersistence(strings.TrimPrefix(persistenceURL, "file://"))
	case "postgres", "postgresql":
		return NewPostgresPersistence(ctx, logger, persistenceURL)
	case "sqlite":
		return NewGormPersistence(logger, NewSQLiteDialector(strings.TrimPrefix(persistenceURL, "sqlite://")))
	default:
		return nil, errors.Join(ErrUnsupportedScheme, errors.New(scheme+" (supported: file, postgres, sqlite)"))
	}
}

// parseScheme extracts the scheme from a persistence URL.
func parseScheme(persistenceURL string) string {
	parts := strings.Split(persistenceURL, "://")
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
