package auth

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/metadata"
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
`

func newTestDB(t *testing.T) *metadata.DB {
	t.Helper()
	db, err := metadata.Open(t.TempDir()+"/marble.db", metadata.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Underlying().Exec(testSchema)
	require.NoError(t, err)
	return db
}

func TestAuthenticateSucceedsWithCorrectPassword(t *testing.T) {
	db := newTestDB(t)
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	_, err = metadata.NewUserRepository(db.Underlying()).Create(t.Context(), "U_a", "alice", hash)
	require.NoError(t, err)

	svc := New(db, zerolog.Nop())
	uuid, err := svc.Authenticate(t.Context(), "alice", "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "U_a", uuid)
}

func TestAuthenticateFailsWithWrongPassword(t *testing.T) {
	db := newTestDB(t)
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	_, err = metadata.NewUserRepository(db.Underlying()).Create(t.Context(), "U_a", "alice", hash)
	require.NoError(t, err)

	svc := New(db, zerolog.Nop())
	_, err = svc.Authenticate(t.Context(), "alice", "wrong password")
	require.Error(t, err)
	assert.Equal(t, marbleerr.KindUnauthorized, marbleerr.KindOf(err))
}

func TestAuthenticateFailsWithUnknownUsernameSameErrorAsWrongPassword(t *testing.T) {
	db := newTestDB(t)
	svc := New(db, zerolog.Nop())

	_, errUnknown := svc.Authenticate(t.Context(), "nobody", "whatever")
	require.Error(t, errUnknown)
	assert.Equal(t, marbleerr.KindUnauthorized, marbleerr.KindOf(errUnknown))

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	_, err = metadata.NewUserRepository(db.Underlying()).Create(t.Context(), "U_a", "alice", hash)
	require.NoError(t, err)
	_, errWrongPW := svc.Authenticate(t.Context(), "alice", "nope")
	require.Error(t, errWrongPW)

	assert.Equal(t, marbleerr.KindOf(errUnknown), marbleerr.KindOf(errWrongPW))
}

func TestAuthenticateRecordsLastLogin(t *testing.T) {
	db := newTestDB(t)
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	u, err := metadata.NewUserRepository(db.Underlying()).Create(t.Context(), "U_a", "alice", hash)
	require.NoError(t, err)
	require.Nil(t, u.LastLogin)

	svc := New(db, zerolog.Nop())
	_, err = svc.Authenticate(t.Context(), "alice", "pw")
	require.NoError(t, err)

	got, err := metadata.NewUserRepository(db.Underlying()).FindByUsername(t.Context(), "alice")
	require.NoError(t, err)
	assert.NotNil(t, got.LastLogin)
}
