package tenant

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marble-dav/marble/internal/blob"
	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/metadata"
	"github.com/marble-dav/marble/internal/objectstore"
)

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
`

func newTestStorage(t *testing.T) (*Storage, *metadata.DB) {
	t.Helper()
	db, err := metadata.Open(t.TempDir()+"/marble.db", metadata.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Underlying().Exec(testSchema)
	require.NoError(t, err)

	backend, err := objectstore.OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	store := blob.New(backend, 0, zerolog.Nop())
	hasher := blob.NewHasher(store)

	return New(db, hasher, zerolog.Nop()), db
}

func createTestUser(t *testing.T, db *metadata.DB, username, uuid string) *metadata.User {
	t.Helper()
	u, err := metadata.NewUserRepository(db.Underlying()).Create(t.Context(), uuid, username, "hash")
	require.NoError(t, err)
	return u
}

func TestTenantIsolation(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	createTestUser(t, db, "bob", "U_b")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/note.md", []byte("secret"), ""))

	_, err := s.Read(ctx, "U_b", "/note.md")
	require.Error(t, err)
	assert.Equal(t, marbleerr.KindNotFound, marbleerr.KindOf(err))
}

func TestReadYourWrite(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/note.md", []byte("hello"), ""))

	got, err := s.Read(ctx, "U_a", "/note.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestTombstoneAndResurrect(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/note.md", []byte("v1"), ""))
	require.NoError(t, s.Delete(ctx, "U_a", "/note.md"))

	exists, err := s.Exists(ctx, "U_a", "/note.md")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, "U_a", "/note.md", []byte("v2"), ""))
	got, err := s.Read(ctx, "U_a", "/note.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestSharedBlobSafety(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	createTestUser(t, db, "bob", "U_b")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/p1.md", []byte("hello\n"), ""))
	require.NoError(t, s.Write(ctx, "U_b", "/p2.md", []byte("hello\n"), ""))

	metaA, err := s.Metadata(ctx, "U_a", "/p1.md")
	require.NoError(t, err)
	metaB, err := s.Metadata(ctx, "U_b", "/p2.md")
	require.NoError(t, err)
	assert.Equal(t, metaA.ContentHash, metaB.ContentHash)

	require.NoError(t, s.Delete(ctx, "U_a", "/p1.md"))

	got, err := s.Read(ctx, "U_b", "/p2.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), got)
}

func TestWriteCreatesMissingAncestors(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/a/b/c.md", []byte("x"), ""))

	exists, err := s.Exists(ctx, "U_a", "/a")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Exists(ctx, "U_a", "/a/b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateDirectoryCreatesMissingAncestors(t *testing.T) {
	// create_directory itself recursively creates ancestors (spec §4.4);
	// the HTTP-level MKCOL 409-on-missing-parent behavior belongs to the
	// webdavhandler, which checks the parent before calling this method.
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.CreateDirectory(ctx, "U_a", "/a/b"))
	exists, err := s.Exists(ctx, "U_a", "/a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateDirectoryConflictsWithExistingFile(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/x", []byte("data"), ""))
	err := s.CreateDirectory(ctx, "U_a", "/x")
	require.Error(t, err)
	assert.Equal(t, marbleerr.KindConflict, marbleerr.KindOf(err))
}

func TestMovePreservesContentHash(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/x.md", []byte("data"), ""))
	before, err := s.Metadata(ctx, "U_a", "/x.md")
	require.NoError(t, err)

	require.NoError(t, s.CreateDirectory(ctx, "U_a", "/y"))
	require.NoError(t, s.Move(ctx, "U_a", "/x.md", "/y/x.md"))

	_, err = s.Read(ctx, "U_a", "/x.md")
	require.Error(t, err)

	after, err := s.Metadata(ctx, "U_a", "/y/x.md")
	require.NoError(t, err)
	assert.Equal(t, before.ContentHash, after.ContentHash)
}

func TestMoveFolderRewritesDescendants(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/d/a.txt", []byte("A"), ""))
	require.NoError(t, s.Write(ctx, "U_a", "/d/sub/b.txt", []byte("BB"), ""))

	require.NoError(t, s.Move(ctx, "U_a", "/d", "/e"))

	_, err := s.Metadata(ctx, "U_a", "/d")
	require.Error(t, err)

	names, err := s.List(ctx, "U_a", "/e")
	require.NoError(t, err)
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "sub")

	got, err := s.Read(ctx, "U_a", "/e/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("BB"), got)
}

func TestMoveFailsWhenDestinationParentMissing(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/x.md", []byte("data"), ""))
	err := s.Move(ctx, "U_a", "/x.md", "/missing/x.md")
	require.Error(t, err)
	assert.Equal(t, marbleerr.KindConflict, marbleerr.KindOf(err))
}

func TestCopyCreatesIndependentRowSameHash(t *testing.T) {
	s, db := newTestStorage(t)
	createTestUser(t, db, "alice", "U_a")
	ctx := t.Context()

	require.NoError(t, s.Write(ctx, "U_a", "/x.md", []byte("data"), ""))
	require.NoError(t, s.Copy(ctx, "U_a", "/x.md", "/x-copy.md"))

	orig, err := s.Metadata(ctx, "U_a", "/x.md")
	require.NoError(t, err)
	cp, err := s.Metadata(ctx, "U_a", "/x-copy.md")
	require.NoError(t, err)
	assert.Equal(t, orig.ContentHash, cp.ContentHash)

	require.NoError(t, s.Delete(ctx, "U_a", "/x.md"))
	got, err := s.Read(ctx, "U_a", "/x-copy.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestUnknownTenantUUIDIsUnauthorized(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := t.Context()

	_, err := s.Read(ctx, "no-such-uuid", "/anything")
	require.Error(t, err)
	assert.Equal(t, marbleerr.KindUnauthorized, marbleerr.KindOf(err))
}
