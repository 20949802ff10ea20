package merkle

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// decoder reads canonical fields off a byte cursor; panics become errors at
// the call boundary via recoverDecode, mirroring gitcore's bufio/byte-reader
// parsing style without needing a full Reader wrapper for this fixed-field
// format.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) uint32() uint32 {
	v := binary.BigEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	return v
}

func (d *decoder) uint64() uint64 {
	v := binary.BigEndian.Uint64(d.buf[d.off : d.off+8])
	d.off += 8
	return v
}

func (d *decoder) string() string {
	n := d.uint32()
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s
}

func (d *decoder) hash() oxenhash.Hash {
	var h oxenhash.Hash
	copy(h[:], d.buf[d.off:d.off+oxenhash.Size])
	d.off += oxenhash.Size
	return h
}

func (d *decoder) bool() bool {
	v := d.buf[d.off] != 0
	d.off++
	return v
}

func (d *decoder) byte() byte {
	v := d.buf[d.off]
	d.off++
	return v
}

// DecodeNode dispatches on the leading kind tag and decodes a Commit,
// Directory, VNode, or File node. FileChunk and inline blob bytes have no
// tag (they are raw content) and must be read via their own accessor
// instead of this generic decoder.
func DecodeNode(data []byte) (n Node, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("merkle: empty node bytes")
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = nil, fmt.Errorf("merkle: malformed node bytes: %v", r)
		}
	}()
	d := &decoder{buf: data, off: 0}
	switch Kind(d.byte()) {
	case KindCommit:
		return decodeCommit(d), nil
	case KindDirectory:
		return decodeDirectory(d), nil
	case KindVNode:
		return decodeVNode(d), nil
	case KindFile:
		return decodeFile(d), nil
	default:
		return nil, fmt.Errorf("merkle: unknown node kind tag %d", data[0])
	}
}

func decodeCommit(d *decoder) *Commit {
	c := &Commit{}
	n := d.uint32()
	c.Parents = make([]oxenhash.Hash, n)
	for i := range c.Parents {
		c.Parents[i] = d.hash()
	}
	c.AuthorName = d.string()
	c.AuthorEmail = d.string()
	c.Message = d.string()
	c.Timestamp = time.Unix(0, int64(d.uint64())).UTC()
	c.RootHash = d.hash()
	return c
}

func decodeDirectory(d *decoder) *Directory {
	dir := &Directory{}
	dir.Name = d.string()
	n := d.uint32()
	dir.VNodes = make([]DirEntry, n)
	for i := range dir.VNodes {
		dir.VNodes[i] = DirEntry{Bucket: d.uint64(), Hash: d.hash()}
	}
	dir.FileCount = d.uint64()
	dir.ByteCount = d.uint64()
	return dir
}

func decodeVNode(d *decoder) *VNode {
	v := &VNode{}
	n := d.uint32()
	v.Children = make([]VNodeChild, n)
	for i := range v.Children {
		name := d.string()
		kind := ChildKind(d.byte())
		h := d.hash()
		v.Children[i] = VNodeChild{Name: name, Kind: kind, Hash: h}
	}
	return v
}

func decodeFile(d *decoder) *File {
	f := &File{}
	f.Name = d.string()
	f.Size = d.uint64()
	f.LastCommitID = d.hash()
	f.LastModified = time.Unix(0, int64(d.uint64())).UTC()
	chunked := d.bool()
	if chunked {
		n := d.uint32()
		f.ChunkHashes = make([]oxenhash.Hash, n)
		for i := range f.ChunkHashes {
			f.ChunkHashes[i] = d.hash()
		}
	} else {
		f.BlobHash = d.hash()
	}
	return f
}
