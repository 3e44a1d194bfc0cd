// Package exhash provides the cryptographic digest primitive the analysis
// core builds content-addressing on top of.
package exhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Size is the digest byte-width, fixed at SHA-256.
const Size = sha256.Size

// Digest is a fixed-width cryptographic digest.
type Digest [Size]byte

// String returns the lowercase hex identifier for the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value (never a valid hash).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compute hashes a single byte slice in one shot.
func Compute(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// FromHex parses a digest's lowercase hex identifier, as produced by
// String, back into a Digest.
func FromHex(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != Size {
		return d, fmt.Errorf("invalid digest length: got %d bytes, want %d", len(raw), Size)
	}
	copy(d[:], raw)
	return d, nil
}

// Hasher is a movable, single-use streaming digest accumulator.
// Instances are not safe for concurrent use; each caller owns its own.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a fresh streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Update feeds more bytes into the hasher.
func (h *Hasher) Update(data []byte) {
	h.h.Write(data)
}

// Finalize returns the digest of everything written so far. The hasher
// must not be reused after this call.
func (h *Hasher) Finalize() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}
