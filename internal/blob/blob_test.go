package blob

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marble-dav/marble/internal/objectstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := objectstore.OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return New(backend, 0, zerolog.Nop())
}

func TestStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	digest, err := s.Put(ctx, []byte("hello\n"))
	require.NoError(t, err)

	got, err := s.Get(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), got)
}

func TestStorePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	d1, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	d2, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "two puts of identical bytes must produce the same digest")
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "umissing")
	require.Error(t, err)
}

func TestStoreExists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	digest, err := s.Put(ctx, []byte("content"))
	require.NoError(t, err)

	ok, err := s.Exists(ctx, digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "unotthere")
	require.NoError(t, err)
	assert.False(t, ok)
}
