package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version VARCHAR(50) NOT NULL,
				tags JSONB NOT NULL DEFAULT '[]',
				definition JSONB NOT NULL,
				is_template BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_is_template ON workflows(is_template);
			CREATE INDEX idx_workflows_updated_at ON workflows(updated_at);
			CREATE INDEX idx_workflows_tags ON workflows USING GIN (tags);
		`,
	}
}
