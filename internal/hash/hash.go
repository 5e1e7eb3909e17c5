// Package hash computes the content digest used to key blobs in the
// content-addressable store. The digest is a BLAKE3-256 hash of the exact
// bytes, encoded with multibase's base64url flavor so the string is
// URL-safe, unpadded, and stable across any two implementations that agree
// on the same multibase encoding.
package hash

import (
	"fmt"

	"github.com/multiformats/go-multibase"
	"lukechampine.com/blake3"
)

// Digest is the stable, URL-safe, unpadded string identifying a blob's
// content. Two Sum calls over identical bytes always produce an identical
// Digest.
type Digest string

// Sum computes the Digest of b.
func Sum(b []byte) Digest {
	sum := blake3.Sum256(b)
	enc, err := multibase.Encode(multibase.Base64url, sum[:])
	if err != nil {
		// multibase.Encode only fails for unknown encodings; Base64url is
		// always registered, so this is unreachable in practice.
		panic(fmt.Sprintf("hash: encode digest: %v", err))
	}
	return Digest(enc)
}

// Verify reports whether b hashes to want.
func Verify(b []byte, want Digest) bool {
	return Sum(b) == want
}

// ObjectKey returns the blob store backend key for d, under the reserved
// ".hash" prefix (spec §6: "Blobs live under the key prefix /.hash/").
func (d Digest) ObjectKey() string {
	return ".hash/" + string(d)
}

func (d Digest) String() string { return string(d) }
