// Package objectstore abstracts the byte-oriented backend that sits under
// the blob store: a local embedded key-value engine or an S3-compatible
// bucket. Every backend speaks the same small interface so the blob store
// never needs to know which one is configured.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when key does not exist in the backend.
var ErrNotFound = errors.New("objectstore: key not found")

// Store is the minimal byte-oriented contract a blob backend must satisfy.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes value under key, overwriting any existing value. Callers
	// in this module only ever write once per key (content-addressed
	// keys are immutable) but Put itself does not enforce that.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the exact bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key is present without reading its value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error; this is
	// the administrative escape hatch path only (never reached from the
	// WebDAV surface - spec §4.3).
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend (file handles,
	// network clients, embedded database handles).
	Close() error
}
