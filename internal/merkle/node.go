// Package merkle implements the five node kinds of the Oxen Merkle DAG
// (Commit, Directory, VNode, File, FileChunk), their canonical byte
// encoding, tree construction from a working set, bounded-depth loading,
// and hash-short-circuit diffing.
package merkle

import (
	"encoding/binary"
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Kind tags a node's type in its canonical header, dispatched like the
// teacher's ObjectType enum but over Oxen's own five kinds.
type Kind byte

const (
	KindCommit Kind = iota + 1
	KindDirectory
	KindVNode
	KindFile
	KindFileChunk
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindDirectory:
		return "directory"
	case KindVNode:
		return "vnode"
	case KindFile:
		return "file"
	case KindFileChunk:
		return "filechunk"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// Node is the shared interface over the five kinds; dispatch is by Kind,
// never by Go type assertion outside this package's codec.
type Node interface {
	Kind() Kind
	// Encode returns the canonical byte form whose hash is the node's
	// identity. Two nodes with equal fields, in any in-memory order for
	// unordered fields, must produce byte-identical output (children are
	// always stored pre-sorted per invariant P6 of spec.md).
	Encode() []byte
}

// Hash returns the content address of a node's canonical bytes.
func Hash(n Node) oxenhash.Hash {
	return oxenhash.Sum(n.Encode())
}

// --- canonical primitive encoders -----------------------------------------
//
// All multi-byte integers are big-endian fixed-width fields, following the
// field-layout discipline of gitcore's index parser. Strings are
// length-prefixed (uint32) followed by raw bytes; this avoids delimiter
// ambiguity entirely, unlike null-terminated fields.

func putUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func putHash(buf []byte, h oxenhash.Hash) []byte {
	return append(buf, h[:]...)
}

func putBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}
