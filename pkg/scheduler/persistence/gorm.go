package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conductor/pkg/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// taskRecord is the gorm row for a scheduled task.
type taskRecord struct {
	ID            string         `gorm:"column:id;primaryKey;size:255"`
	WorkflowID    string         `gorm:"column:workflow_id;not null;index"`
	Name          string         `gorm:"column:name;not null"`
	TriggerType   string         `gorm:"column:trigger_type;not null;size:50"`
	TriggerConfig map[string]any `gorm:"column:trigger_config;serializer:json"`
	Variables     map[string]any `gorm:"column:variables;serializer:json"`
	Enabled       bool           `gorm:"column:enabled;not null;index"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime:false"`
	LastRun       *time.Time     `gorm:"column:last_run"`
	NextRun       *time.Time     `gorm:"column:next_run"`
	RunCount      int            `gorm:"column:run_count;not null;default:0"`
}

func (taskRecord) TableName() string {
	return "scheduled_tasks"
}

func recordFromTask(task *models.ScheduledTask) *taskRecord {
	return &taskRecord{
		ID:            task.ID,
		WorkflowID:    task.WorkflowID,
		Name:          task.Name,
		TriggerType:   string(task.TriggerType),
		TriggerConfig: task.TriggerConfig,
		Variables:     task.Variables,
		Enabled:       task.Enabled,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
		LastRun:       task.LastRun,
		NextRun:       task.NextRun,
		RunCount:      task.RunCount,
	}
}

func (r *taskRecord) task() *models.ScheduledTask {
	task := &models.ScheduledTask{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		Name:          r.Name,
		TriggerType:   models.TriggerType(r.TriggerType),
		TriggerConfig: r.TriggerConfig,
		Variables:     r.Variables,
		Enabled:       r.Enabled,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		LastRun:       r.LastRun,
		NextRun:       r.NextRun,
		RunCount:      r.RunCount,
	}

	if task.TriggerConfig == nil {
		task.TriggerConfig = map[string]any{}
	}

	if task.Variables == nil {
		task.Variables = map[string]any{}
	}

	return task
}

// GormPersistence implements TaskPersistence on any gorm dialector. The
// sqlite:// scheme uses the pure Go glebarez driver.
type GormPersistence struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSQLiteDialector opens a sqlite database file, or ":memory:".
func NewSQLiteDialector(path string) gorm.Dialector {
	return sqlite.Open(path)
}

// NewGormPersistence opens the dialector and migrates the task table.
func NewGormPersistence(logger *slog.Logger, dialector gorm.Dialector) (*GormPersistence, error) {
	logger = logger.With("module", "scheduler_gorm_persistence")

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&taskRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormPersistence{db: db, logger: logger}, nil
}

func (g *GormPersistence) SaveTask(ctx context.Context, task *models.ScheduledTask) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(recordFromTask(task)).Error
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to save scheduled task", "task_id", task.ID, "error", err)

		return fmt.Errorf("failed to save scheduled task: %w", err)
	}

	return nil
}

func (g *GormPersistence) TaskByID(ctx context.Context, id string) (*models.ScheduledTask, error) {
	var record taskRecord

	err := g.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled task: %w", err)
	}

	return record.task(), nil
}

func (g *GormPersistence) Tasks(ctx context.Context) ([]*models.ScheduledTask, error) {
	var records []taskRecord

	if err := g.db.WithContext(ctx).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query scheduled tasks: %w", err)
	}

	tasks := make([]*models.ScheduledTask, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].task())
	}

	return tasks, nil
}

func (g *GormPersistence) DeleteTask(ctx context.Context, id string) error {
	if err := g.db.WithContext(ctx).Delete(&taskRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}

	return nil
}

func (g *GormPersistence) HealthCheck(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (g *GormPersistence) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	return sqlDB.Close()
}

// slogWriter routes gorm's printf-style logger into slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Debug(fmt.Sprintf(format, args...))
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	level := gormlogger.Silent
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		level = gormlogger.Warn
	}

	return gormlogger.New(slogWriter{logger: logger}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
