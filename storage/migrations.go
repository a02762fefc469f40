package storage

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

CREATE TABLE IF NOT EXISTS accounts (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	email              TEXT NOT NULL UNIQUE,
	connection_type    TEXT NOT NULL CHECK(connection_type IN ('imap', 'gmail', 'outlook')),
	credentials        TEXT NOT NULL DEFAULT '{}',
	sync_state         TEXT NOT NULL DEFAULT 'ENABLED' CHECK(sync_state IN ('ENABLED', 'DISABLED', 'STOPPED')),
	sync_state_comment TEXT NOT NULL DEFAULT '',
	stop_resolved      INTEGER NOT NULL DEFAULT 0 CHECK(stop_resolved IN (0, 1)),
	last_sync_at       DATETIME,
	sent_folder_id     INTEGER REFERENCES folders(id) ON DELETE SET NULL,
	trash_folder_id    INTEGER REFERENCES folders(id) ON DELETE SET NULL,
	owner_user_id      TEXT,
	from_template      TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id       INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	identifier_kind  TEXT NOT NULL CHECK(identifier_kind IN ('name', 'id')),
	identifier_value TEXT NOT NULL,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL DEFAULT 'other' CHECK(type IN ('inbox', 'sent', 'trash', 'other')),
	syncable         INTEGER NOT NULL DEFAULT 0 CHECK(syncable IN (0, 1)),
	selectable       INTEGER NOT NULL DEFAULT 1 CHECK(selectable IN (0, 1)),
	parent_id        INTEGER REFERENCES folders(id) ON DELETE SET NULL,
	UNIQUE(account_id, identifier_kind, identifier_value)
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	remote_id    TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	from_name    TEXT NOT NULL DEFAULT '',
	from_address TEXT NOT NULL DEFAULT '',
	to_addresses  TEXT NOT NULL DEFAULT '',
	cc_addresses  TEXT NOT NULL DEFAULT '',
	bcc_addresses TEXT NOT NULL DEFAULT '',
	text_body    TEXT NOT NULL DEFAULT '',
	html_body    TEXT NOT NULL DEFAULT '',
	read         INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	date         DATETIME NOT NULL,
	message_id   TEXT NOT NULL DEFAULT '',
	in_reply_to  TEXT NOT NULL DEFAULT '',
	"references" TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(account_id, remote_id)
);

CREATE TABLE IF NOT EXISTS message_folders (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	folder_id  INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	PRIMARY KEY (message_id, folder_id)
);

CREATE TABLE IF NOT EXISTS associations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id    INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	resource_type TEXT NOT NULL CHECK(resource_type IN ('contact', 'company', 'deal')),
	resource_id   INTEGER NOT NULL,
	UNIQUE(message_id, resource_type, resource_id)
);

CREATE TABLE IF NOT EXISTS attachments (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size         INTEGER NOT NULL DEFAULT 0,
	path         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tracking_tokens (
	token      TEXT PRIMARY KEY,
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	opens      INTEGER NOT NULL DEFAULT 0,
	clicks     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tracking_tokens_message_id ON tracking_tokens(message_id);
CREATE INDEX IF NOT EXISTS idx_folders_account_id ON folders(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_message_folders_folder_id ON message_folders(folder_id);
CREATE INDEX IF NOT EXISTS idx_associations_message_id ON associations(message_id);
CREATE INDEX IF NOT EXISTS idx_associations_resource ON associations(resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
