package persistence

const migrationsTable = "scheduler_migrations"

func schedulerMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE scheduled_tasks (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config TEXT NOT NULL DEFAULT '{}',
				variables TEXT NOT NULL DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_run TIMESTAMP WITH TIME ZONE,
				next_run TIMESTAMP WITH TIME ZONE,
				run_count INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_scheduled_tasks_enabled ON scheduled_tasks(enabled);
			CREATE INDEX idx_scheduled_tasks_workflow_id ON scheduled_tasks(workflow_id);
		`,
	}
}
