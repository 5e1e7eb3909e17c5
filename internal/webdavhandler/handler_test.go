package webdavhandler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/marble-dav/marble/internal/auth"
	"github.com/marble-dav/marble/internal/blob"
	"github.com/marble-dav/marble/internal/config"
	"github.com/marble-dav/marble/internal/lock"
	"github.com/marble-dav/marble/internal/metadata"
	"github.com/marble-dav/marble/internal/objectstore"
	"github.com/marble-dav/marble/internal/tenant"
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
`

type testEnv struct {
	handler  *Handler
	username string
	password string
}

func newTestEnv(t *testing.T) *testEnv {
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
	storage := tenant.New(db, hasher, zerolog.Nop())

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	_, err = metadata.NewUserRepository(db.Underlying()).Create(t.Context(), "U_a", "alice", hash)
	require.NoError(t, err)

	authSvc := auth.New(db, zerolog.Nop())
	locks := lock.New()

	cfg := &config.Config{
		MaxBodyBytes:          1 << 20,
		MaxLockTimeout:        time.Minute,
		PropfindDepthInfinity: config.DepthInfinityDeny,
	}

	handler := New(storage, authSvc, locks, cfg, zerolog.Nop())
	return &testEnv{handler: handler, username: "alice", password: "s3cret"}
}

func (e *testEnv) do(method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.SetBasicAuth(e.username, e.password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestPutThenGetRoundTrips(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/note.md", "hello world", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/note.md", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())

	rec = env.do(http.MethodPut, "/note.md", "updated", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUnauthenticatedRequestIs401(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/note.md", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMkcolThenPropfindListsChild(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do("MKCOL", "/folder", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPut, "/folder/a.md", "a", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do("PROPFIND", "/folder", "", map[string]string{"Depth": "1"})
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	require.Contains(t, rec.Body.String(), "a.md")
}

func TestMkcolFailsWithMissingParent(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("MKCOL", "/missing/child", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPutOnLockedPathWithoutTokenIsLocked(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/locked.md", "data", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	lockReq := `<?xml version="1.0"?><D:lockinfo xmlns:D="DAV:"><D:owner><D:href>me</D:href></D:owner></D:lockinfo>`
	rec = env.do("LOCK", "/locked.md", lockReq, map[string]string{"Depth": "0"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPut, "/locked.md", "clobber", nil)
	require.Equal(t, http.StatusLocked, rec.Code)
}

func TestCopyPreservesSourceAndDedupsBlob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/src.md", "payload", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do("COPY", "/src.md", "", map[string]string{"Destination": "/dst.md"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/src.md", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "payload", rec.Body.String())

	rec = env.do(http.MethodGet, "/dst.md", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "payload", rec.Body.String())
}

func TestDeleteThen404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/gone.md", "x", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodDelete, "/gone.md", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/gone.md", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
