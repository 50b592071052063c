package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create users and agents",
		SQL: `
			CREATE TABLE users (
				id          TEXT PRIMARY KEY,
				email       TEXT NOT NULL DEFAULT '',
				plan        TEXT NOT NULL DEFAULT 'basic',
				created_at  TEXT NOT NULL
			);

			CREATE TABLE agents (
				id               TEXT PRIMARY KEY,
				user_id          TEXT NOT NULL,
				name             TEXT NOT NULL,
				description      TEXT NOT NULL DEFAULT '',
				prompt_template  TEXT NOT NULL,
				model_config     TEXT,
				status           TEXT NOT NULL DEFAULT 'active',
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			);

			CREATE INDEX idx_agents_user ON agents (user_id, created_at);
		`,
	},
	{
		Version: 2,
		Name:    "create data sources with FTS5",
		SQL: `
			CREATE TABLE data_sources (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				name        TEXT NOT NULL,
				type        TEXT NOT NULL DEFAULT 'text',
				content     TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_data_sources_user ON data_sources (user_id, created_at);

			CREATE VIRTUAL TABLE data_sources_fts USING fts5(
				name,
				content,
				content='data_sources',
				content_rowid='rowid'
			);

			CREATE TRIGGER data_sources_ai AFTER INSERT ON data_sources BEGIN
				INSERT INTO data_sources_fts(rowid, name, content)
				VALUES (new.rowid, new.name, new.content);
			END;

			CREATE TRIGGER data_sources_ad AFTER DELETE ON data_sources BEGIN
				INSERT INTO data_sources_fts(data_sources_fts, rowid, name, content)
				VALUES ('delete', old.rowid, old.name, old.content);
			END;

			CREATE TRIGGER data_sources_au AFTER UPDATE ON data_sources BEGIN
				INSERT INTO data_sources_fts(data_sources_fts, rowid, name, content)
				VALUES ('delete', old.rowid, old.name, old.content);
				INSERT INTO data_sources_fts(rowid, name, content)
				VALUES (new.rowid, new.name, new.content);
			END;
		`,
	},
	{
		Version: 3,
		Name:    "create tasks and usage tracking",
		SQL: `
			CREATE TABLE tasks (
				id               TEXT PRIMARY KEY,
				user_id          TEXT NOT NULL,
				agent_id         TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
				input            TEXT NOT NULL,
				data_source_ids  TEXT,
				status           TEXT NOT NULL DEFAULT 'pending',
				output           TEXT NOT NULL DEFAULT '',
				error            TEXT NOT NULL DEFAULT '',
				error_kind       TEXT NOT NULL DEFAULT '',
				model            TEXT NOT NULL DEFAULT '',
				tokens_used      INTEGER NOT NULL DEFAULT 0,
				cost_cents       REAL NOT NULL DEFAULT 0,
				duration_ms      INTEGER NOT NULL DEFAULT 0,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL,
				started_at       TEXT,
				completed_at     TEXT
			);

			CREATE INDEX idx_tasks_user ON tasks (user_id, created_at);
			CREATE INDEX idx_tasks_agent ON tasks (agent_id, created_at);
			CREATE INDEX idx_tasks_status ON tasks (status);

			CREATE TABLE usage_tracking (
				id             TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL,
				resource_type  TEXT NOT NULL,
				quantity       INTEGER NOT NULL,
				task_id        TEXT NOT NULL DEFAULT '',
				created_at     TEXT NOT NULL
			);

			CREATE INDEX idx_usage_user ON usage_tracking (user_id, resource_type, created_at);
		`,
	},
}
