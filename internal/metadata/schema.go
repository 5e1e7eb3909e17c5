package metadata

// schema is the relational layout spec §6 describes: tenants, folders and
// files, each folder/file row soft-deleted rather than removed so a
// recursive delete can be undone by direct database surgery if needed.
// Production deployments are expected to provision this with a real
// migration tool; Migrate exists so the single-binary/demo path in cmd/marble
// doesn't need one wired in just to stand up a fresh database.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_login DATETIME
);

CREATE TABLE IF NOT EXISTS folders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	path TEXT NOT NULL,
	parent_id INTEGER REFERENCES folders(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_user_path ON folders(user_id, path) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);
CREATE INDEX IF NOT EXISTS idx_folders_user_deleted ON folders(user_id, is_deleted);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_user_path ON files(user_id, path) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_files_content_hash ON files(content_hash);
CREATE INDEX IF NOT EXISTS idx_files_user_deleted ON files(user_id, is_deleted);
`

// Migrate applies the schema idempotently. Safe to call on every startup.
func (d *DB) Migrate() error {
	_, err := d.sql.Exec(schema)
	return err
}
