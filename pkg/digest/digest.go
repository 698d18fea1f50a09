/*
Copyright 2026 The Modvault Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package digest defines the content-address types used throughout the
// catalog, solver, and acquisition pipeline: a Digest (the SHA-256 of a
// blob's bytes) and a BlobID (a cheap, catalog-assigned stand-in for one).
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
)

// Size is the length in bytes of a Digest.
const Size = sha256.Size

// Digest is the content-address of a blob: the SHA-256 of its bytes.
// It is a value type and supports equality with ==, so it can be used
// directly as a map key.
type Digest [Size]byte

// Zero reports whether d is the zero digest (never a valid hash output,
// used as a sentinel for "unset").
func (d Digest) Zero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Bytes returns the raw digest bytes.
func (d Digest) Bytes() []byte { return d[:] }

// Parse decodes a lowercase hex-encoded SHA-256 digest.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != Size {
		return d, errors.New("digest: wrong length")
	}
	copy(d[:], b)
	return d, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants derived from known-good hex strings.
func MustParse(s string) Digest {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromBytes computes the digest of b directly.
func FromBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Hasher streams bytes through SHA-256 and yields the final Digest. It
// wraps hash.Hash so callers can io.Copy into it without an intermediate
// buffer, mirroring how the indexer hashes files of arbitrary size.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a ready-to-use streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum returns the Digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// HashReader streams r fully through SHA-256 and returns its Digest and the
// number of bytes read.
func HashReader(r io.Reader) (Digest, int64, error) {
	h := NewHasher()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, n, err
	}
	return h.Sum(), n, nil
}

// BlobID is an opaque integer the catalog assigns to a Digest the first
// time it is seen. It is cheap to use as a map key and as a DAG node, unlike
// the 32-byte Digest it stands in for. The catalog owns the bijection
// between BlobID and Digest for its lifetime; callers never construct a
// BlobID directly.
type BlobID int64

// Zero reports whether id is the unset BlobID.
func (id BlobID) Zero() bool { return id == 0 }
