package scheduler

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/dukex/conductor/pkg/models"
)

// cronLogger routes robfig/cron's logr-style calls into slog. Routine
// scheduling chatter is demoted to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(slices.Clone(keysAndValues), "error", err)...)
}

func sortByCreation(tasks []*models.ScheduledTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
