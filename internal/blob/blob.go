// Package blob implements the content-addressable blob store (spec §4.1)
// and the thin content hasher that sits in front of it (spec §4.2).
package blob

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/marble-dav/marble/internal/hash"
	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/objectstore"
)

const defaultCacheSize = 1000

// Store is the content-addressable blob store. Put computes the digest of
// the given bytes and writes them under the reserved ".hash" key prefix if
// not already present; Get and Exists are keyed by digest. A bounded LRU
// cache sits in front of the backend so repeated reads of hot blobs (a
// frequently-synced note, a shared attachment) skip the backend round trip.
type Store struct {
	backend objectstore.Store
	log     zerolog.Logger

	mu    sync.Mutex
	cache *lru.Cache[hash.Digest, []byte]
}

// New wraps backend with a read-through cache of the given size (0 uses a
// sensible default).
func New(backend objectstore.Store, cacheSize int, log zerolog.Logger) *Store {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[hash.Digest, []byte](cacheSize)
	return &Store{backend: backend, log: log.With().Str("component", "blob.Store").Logger(), cache: cache}
}

// Put stores b under its content digest, idempotently, and returns the
// digest. Concurrent Puts of identical bytes race harmlessly: the backend
// key is the same, and the last write of identical bytes is a no-op in
// substance.
func (s *Store) Put(ctx context.Context, b []byte) (hash.Digest, error) {
	digest := hash.Sum(b)

	if s.cacheGet(digest) != nil {
		return digest, nil
	}

	key := digest.ObjectKey()
	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return "", marbleerr.Backend(err, "check existing blob %s", digest)
	}
	if !exists {
		if err := s.backend.Put(ctx, key, b); err != nil {
			return "", marbleerr.Backend(err, "write blob %s", digest)
		}
	}

	s.cachePut(digest, b)
	return digest, nil
}

// Get returns the exact bytes stored under digest.
func (s *Store) Get(ctx context.Context, digest hash.Digest) ([]byte, error) {
	if b := s.cacheGet(digest); b != nil {
		return b, nil
	}

	b, err := s.backend.Get(ctx, digest.ObjectKey())
	if err != nil {
		if err == objectstore.ErrNotFound {
			return nil, marbleerr.NotFound("blob %s", digest)
		}
		return nil, marbleerr.Backend(err, "read blob %s", digest)
	}

	s.cachePut(digest, b)
	return b, nil
}

// Exists reports whether digest is present in the store.
func (s *Store) Exists(ctx context.Context, digest hash.Digest) (bool, error) {
	if s.cacheGet(digest) != nil {
		return true, nil
	}
	ok, err := s.backend.Exists(ctx, digest.ObjectKey())
	if err != nil {
		return false, marbleerr.Backend(err, "check blob %s", digest)
	}
	return ok, nil
}

func (s *Store) cacheGet(d hash.Digest) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(d); ok {
		return v
	}
	return nil
}

func (s *Store) cachePut(d hash.Digest, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(d, b)
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("blob: close backend: %w", err)
	}
	return nil
}
