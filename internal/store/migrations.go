package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	conversation_id  TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL DEFAULT '',
	from_email       TEXT NOT NULL DEFAULT '',
	from_name        TEXT NOT NULL DEFAULT '',
	to_recipients    TEXT NOT NULL DEFAULT '[]',
	cc_recipients    TEXT NOT NULL DEFAULT '[]',
	received_at      DATETIME NOT NULL,
	importance       TEXT NOT NULL DEFAULT 'normal',
	is_read          INTEGER NOT NULL DEFAULT 0,
	has_attachments  INTEGER NOT NULL DEFAULT 0,
	body_preview     TEXT NOT NULL DEFAULT '',
	parent_folder_id TEXT NOT NULL DEFAULT '',
	categories       TEXT NOT NULL DEFAULT '[]',
	category         TEXT NOT NULL DEFAULT 'unknown',
	confidence       REAL NOT NULL DEFAULT 0,
	entity_name      TEXT NOT NULL DEFAULT '',
	entity_path      TEXT NOT NULL DEFAULT '',
	priority_score   INTEGER NOT NULL DEFAULT 50,
	priority_level   TEXT NOT NULL DEFAULT 'medium',
	action_required  INTEGER NOT NULL DEFAULT 0,
	archived_locally INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS folders (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	parent_id    TEXT NOT NULL DEFAULT '',
	child_count  INTEGER NOT NULL DEFAULT 0,
	unread_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contact_rules (
	match_type  TEXT NOT NULL,
	match_value TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_name TEXT NOT NULL DEFAULT '',
	entity_path TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (match_type, match_value)
);

CREATE TABLE IF NOT EXISTS sync_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at);
CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(category);
CREATE INDEX IF NOT EXISTS idx_messages_priority_score ON messages(priority_score);
CREATE INDEX IF NOT EXISTS idx_messages_from_email ON messages(from_email);
CREATE INDEX IF NOT EXISTS idx_messages_is_read ON messages(is_read);
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(parent_folder_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_category_received
	ON messages(category, received_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
