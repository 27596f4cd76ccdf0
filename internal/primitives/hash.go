// Package primitives implements the cryptographic building blocks (C1):
// streaming SHA-256, deterministic low-s ECDSA over P-256, and the address
// codec. It follows daglabs-btcd's convention of small, single-purpose
// files per primitive (compare util/address.go, util/daghash) rather than
// one monolithic crypto file.
package primitives

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/The-Sycorax/denaro/internal/errs"
)

// HashSize is the length in bytes of a SHA-256 digest.
const HashSize = 32

// Hash is a fixed-size SHA-256 digest, always rendered as lowercase hex.
type Hash [HashSize]byte

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromHex decodes a lowercase hex string into a Hash, rejecting
// malformed input per the C1 failure mode.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errs.New(errs.ErrMalformedInput, "hash %q is not valid hex: %s", s, err)
	}
	if len(b) != HashSize {
		return h, errs.New(errs.ErrMalformedInput, "hash %q has wrong length %d", s, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Sum256 returns the SHA-256 digest of data in a single call.
func Sum256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Hasher is a streaming SHA-256 accumulator, used to hash a transaction's
// or block's canonical encoding incrementally instead of concatenating all
// of the encoded fields up front.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a fresh streaming SHA-256 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write implements io.Writer.
func (hr *Hasher) Write(p []byte) (int, error) {
	return hr.h.Write(p)
}

// Sum finalises the hash without mutating the hasher's state.
func (hr *Hasher) Sum() Hash {
	var out Hash
	copy(out[:], hr.h.Sum(nil))
	return out
}
