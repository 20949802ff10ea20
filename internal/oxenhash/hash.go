// Package oxenhash implements the 128-bit content address used throughout
// the object store, the Merkle tree, and the wire protocol.
package oxenhash

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Size is the length of a Hash in bytes (128 bits).
const Size = 16

// ErrInvalidLength is returned when decoding a hex string of the wrong length.
var ErrInvalidLength = errors.New("oxenhash: invalid hash length")

// Hash is a 128-bit content address. The zero Hash is a valid sentinel
// meaning "absent" (used for an empty repository's HEAD, or a root commit's
// missing parent) and is never a real object's address because xxh3 over any
// non-empty canonical byte buffer practically never collides with it; code
// that needs to distinguish "no parent" from "collision" uses an explicit
// bool alongside Hash rather than relying on the zero value as a sentinel in
// persisted data.
type Hash [Size]byte

// Sum computes the content hash of buf.
func Sum(buf []byte) Hash {
	u := xxh3.Hash128(buf)
	var h Hash
	putUint64(h[0:8], u.Hi)
	putUint64(h[8:16], u.Lo)
	return h
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// String renders the hash as 32 lowercase hex characters, per spec.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first n hex characters, clamped to the full length.
func (h Hash) Short(n int) string {
	s := h.String()
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// IsZero reports whether h is the zero/absent sentinel.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Mod returns h interpreted as a big-endian unsigned integer, modulo n, for
// VNode bucket assignment. n must be > 0.
func (h Hash) Mod(n uint64) uint64 {
	if n == 0 {
		panic("oxenhash: Mod by zero")
	}
	hi := getUint64(h[0:8])
	lo := getUint64(h[8:16])
	// 128-bit value mod n via repeated reduction of the high word.
	rem := hi % n
	for i := 0; i < 64; i++ {
		rem = (rem<<1 | (lo >> 63)) % n
		lo <<= 1
	}
	return rem
}

// ParseHash decodes a 32-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != Size*2 {
		return Hash{}, fmt.Errorf("%w: got %d chars, want %d", ErrInvalidLength, len(s), Size*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("oxenhash: %w", err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// MustParse is ParseHash but panics on error; for use with literal test hashes.
func MustParse(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
