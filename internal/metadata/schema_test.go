package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testSchema mirrors the tables spec §6 says an external migration runner
// provisions; tests stand it up directly rather than through DB.Migrate.
const testSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_login DATETIME
);

CREATE TABLE folders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users(id),
	path TEXT NOT NULL,
	parent_id INTEGER REFERENCES folders(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	is_deleted INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX idx_folders_user_path ON folders(user_id, path) WHERE is_deleted = 0;
CREATE INDEX idx_folders_parent ON folders(parent_id);
CREATE INDEX idx_folders_user_deleted ON folders(user_id, is_deleted);

CREATE TABLE files (
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
CREATE UNIQUE INDEX idx_files_user_path ON files(user_id, path) WHERE is_deleted = 0;
CREATE INDEX idx_files_content_hash ON files(content_hash);
CREATE INDEX idx_files_user_deleted ON files(user_id, is_deleted);
`

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir()+"/marble.db", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Underlying().Exec(testSchema)
	require.NoError(t, err)
	return db
}

func newTestUser(t *testing.T, db *DB, username string) *User {
	t.Helper()
	u, err := NewUserRepository(db.Underlying()).Create(
		t.Context(), username+"-uuid", username, "hash")
	require.NoError(t, err)
	return u
}
