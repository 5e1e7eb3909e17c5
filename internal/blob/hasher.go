package blob

import (
	"context"

	"github.com/marble-dav/marble/internal/hash"
)

// Hasher is the content hasher (spec §4.2): a thin service that keeps
// digest computation in one place and lets an upstream caller that already
// knows a blob's digest skip recomputing it.
type Hasher struct {
	store *Store
}

// NewHasher wraps store.
func NewHasher(store *Store) *Hasher {
	return &Hasher{store: store}
}

// Write computes the digest of b and stores it, returning the digest.
func (h *Hasher) Write(ctx context.Context, b []byte) (hash.Digest, error) {
	return h.store.Put(ctx, b)
}

// Read fetches the bytes for digest.
func (h *Hasher) Read(ctx context.Context, digest hash.Digest) ([]byte, error) {
	return h.store.Get(ctx, digest)
}
