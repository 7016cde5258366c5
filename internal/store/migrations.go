package store

// migration holds a single schema migration with its target version and
// the SQL for each supported dialect.
type migration struct {
	version  int
	sqlite   string
	postgres string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sqlite: `
CREATE TABLE IF NOT EXISTS monitored_tasks (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	scheduled_start   DATETIME NOT NULL,
	sla_minutes       INTEGER NOT NULL CHECK(sla_minutes > 0),
	lifecycle_status  TEXT NOT NULL DEFAULT 'PENDING',
	completed_at      DATETIME,
	escalated_at      DATETIME,
	justification     TEXT,
	last_evaluated_at DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_events (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES monitored_tasks(id) ON DELETE CASCADE,
	event_kind  TEXT NOT NULL CHECK(event_kind IN ('PRE_START', 'MISSED_START', 'ESCALATED', 'JUSTIFICATION_REQUIRED')),
	episode     INTEGER NOT NULL,
	payload     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	read_at     DATETIME,
	read_by     TEXT,
	archived_at DATETIME,
	archived_by TEXT,
	UNIQUE(task_id, event_kind, episode)
);

CREATE TABLE IF NOT EXISTS justifications (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL REFERENCES monitored_tasks(id) ON DELETE CASCADE,
	episode      INTEGER NOT NULL,
	escalated_at DATETIME NOT NULL,
	text         TEXT NOT NULL,
	submitted_at DATETIME NOT NULL,
	submitted_by TEXT NOT NULL,
	UNIQUE(task_id, episode)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON monitored_tasks(lifecycle_status);
CREATE INDEX IF NOT EXISTS idx_tasks_scheduled_start ON monitored_tasks(scheduled_start);

INSERT INTO schema_version (version) VALUES (1);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS monitored_tasks (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	scheduled_start   TIMESTAMPTZ NOT NULL,
	sla_minutes       INTEGER NOT NULL CHECK(sla_minutes > 0),
	lifecycle_status  TEXT NOT NULL DEFAULT 'PENDING',
	completed_at      TIMESTAMPTZ,
	escalated_at      TIMESTAMPTZ,
	justification     TEXT,
	last_evaluated_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_events (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES monitored_tasks(id) ON DELETE CASCADE,
	event_kind  TEXT NOT NULL CHECK(event_kind IN ('PRE_START', 'MISSED_START', 'ESCALATED', 'JUSTIFICATION_REQUIRED')),
	episode     BIGINT NOT NULL,
	payload     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	read_at     TIMESTAMPTZ,
	read_by     TEXT,
	archived_at TIMESTAMPTZ,
	archived_by TEXT,
	UNIQUE(task_id, event_kind, episode)
);

CREATE TABLE IF NOT EXISTS justifications (
	id           TEXT PRIMARY KEY,
	task_id      TEXT NOT NULL REFERENCES monitored_tasks(id) ON DELETE CASCADE,
	episode      BIGINT NOT NULL,
	escalated_at TIMESTAMPTZ NOT NULL,
	text         TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	submitted_by TEXT NOT NULL,
	UNIQUE(task_id, episode)
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON monitored_tasks(lifecycle_status);
CREATE INDEX IF NOT EXISTS idx_tasks_scheduled_start ON monitored_tasks(scheduled_start);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sqlite: `
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notification_events(created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notification_events(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_live ON notification_events(archived_at, read_at);
CREATE INDEX IF NOT EXISTS idx_justifications_task_id ON justifications(task_id);

INSERT INTO schema_version (version) VALUES (2);
`,
		postgres: `
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notification_events(created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notification_events(task_id);
CREATE INDEX IF NOT EXISTS idx_notifications_live ON notification_events(task_id)
	WHERE archived_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_justifications_task_id ON justifications(task_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

func (m migration) sql(d dialect) string {
	if d == dialectPostgres {
		return m.postgres
	}
	return m.sqlite
}
