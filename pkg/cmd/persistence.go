package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/conductor/pkg/persistence"
	"github.com/dukex/conductor/pkg/persistence/file"
	"github.com/dukex/conductor/pkg/persistence/postgresql"
)

const dataDirMode = 0o750

// NewPersistence opens the workflow definition store named by databaseURL:
// postgres:// or postgresql:// for PostgreSQL, file:// or a bare path for
// JSON documents on disk.
//
// nolint:ireturn
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		logger.InfoContext(ctx, "Using PostgreSQL workflow store")

		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.TrimPrefix(databaseURL, "file://")
		if err := os.MkdirAll(root, dataDirMode); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
		}

		logger.InfoContext(ctx, "Using file workflow store", "root", root)

		return file.NewPersistence(root), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
