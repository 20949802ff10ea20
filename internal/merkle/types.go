package merkle

import (
	"sort"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Commit records a snapshot of the tree plus parent links and metadata.
// 0 parents = root commit, 1 = normal, 2 = merge (first is "ours", second
// "theirs"), per invariant P5.
type Commit struct {
	Parents     []oxenhash.Hash
	AuthorName  string
	AuthorEmail string
	Message     string
	Timestamp   time.Time
	RootHash    oxenhash.Hash
}

func (c *Commit) Kind() Kind { return KindCommit }

func (c *Commit) Encode() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, byte(KindCommit))
	buf = putUint32(buf, uint32(len(c.Parents)))
	for _, p := range c.Parents {
		buf = putHash(buf, p)
	}
	buf = putString(buf, c.AuthorName)
	buf = putString(buf, c.AuthorEmail)
	buf = putString(buf, c.Message)
	buf = putUint64(buf, uint64(c.Timestamp.UTC().UnixNano()))
	buf = putHash(buf, c.RootHash)
	return buf
}

// DirEntry names a single VNode shard of a Directory's children.
type DirEntry struct {
	Bucket uint64
	Hash   oxenhash.Hash
}

// Directory represents one directory; its children are sharded across one
// or more VNodes (§3.2, §4.2's VNode-sharding algorithm).
type Directory struct {
	Name       string // empty for the repo root
	VNodes     []DirEntry
	FileCount  uint64 // aggregate, recursive
	ByteCount  uint64 // aggregate, recursive
}

func (d *Directory) Kind() Kind { return KindDirectory }

func (d *Directory) Encode() []byte {
	entries := append([]DirEntry(nil), d.VNodes...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Bucket < entries[j].Bucket })

	buf := make([]byte, 0, 64+len(entries)*24)
	buf = append(buf, byte(KindDirectory))
	buf = putString(buf, d.Name)
	buf = putUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = putUint64(buf, e.Bucket)
		buf = putHash(buf, e.Hash)
	}
	buf = putUint64(buf, d.FileCount)
	buf = putUint64(buf, d.ByteCount)
	return buf
}

// ChildKind distinguishes a VNode child being a nested Directory or a File.
type ChildKind byte

const (
	ChildDirectory ChildKind = iota + 1
	ChildFile
)

// VNodeChild is one entry of a VNode: a named reference to a Directory or
// File node.
type VNodeChild struct {
	Name string
	Kind ChildKind
	Hash oxenhash.Hash
}

// VNode groups a content-insensitive hash-bucket of a directory's children
// (§4.2's VNode-sharding algorithm); its own children are always sorted by
// name so two implementations with identical path sets agree on bytes.
type VNode struct {
	Children []VNodeChild
}

func (v *VNode) Kind() Kind { return KindVNode }

func (v *VNode) sortedChildren() []VNodeChild {
	children := append([]VNodeChild(nil), v.Children...)
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children
}

func (v *VNode) Encode() []byte {
	children := v.sortedChildren()
	buf := make([]byte, 0, 32+len(children)*32)
	buf = append(buf, byte(KindVNode))
	buf = putUint32(buf, uint32(len(children)))
	for _, c := range children {
		buf = putString(buf, c.Name)
		buf = append(buf, byte(c.Kind))
		buf = putHash(buf, c.Hash)
	}
	return buf
}

// File represents one tracked file's metadata and content reference: either
// a list of FileChunk hashes (large files) or a single inline blob hash
// (small files) — never both.
type File struct {
	Name         string
	Size         uint64
	LastCommitID oxenhash.Hash
	LastModified time.Time
	ChunkHashes  []oxenhash.Hash // non-nil for chunked files
	BlobHash     oxenhash.Hash   // valid when ChunkHashes is nil
}

func (f *File) Kind() Kind { return KindFile }

// IsChunked reports whether this file's content is split across FileChunks.
func (f *File) IsChunked() bool { return len(f.ChunkHashes) > 0 }

func (f *File) Encode() []byte {
	buf := make([]byte, 0, 64+len(f.ChunkHashes)*16)
	buf = append(buf, byte(KindFile))
	buf = putString(buf, f.Name)
	buf = putUint64(buf, f.Size)
	buf = putHash(buf, f.LastCommitID)
	buf = putUint64(buf, uint64(f.LastModified.UTC().UnixNano()))
	buf = putBool(buf, f.IsChunked())
	if f.IsChunked() {
		buf = putUint32(buf, uint32(len(f.ChunkHashes)))
		for _, c := range f.ChunkHashes {
			buf = putHash(buf, c)
		}
	} else {
		buf = putHash(buf, f.BlobHash)
	}
	return buf
}

// FileChunk is a fixed-size slice of a large file's content. Unlike the
// other four kinds, its canonical bytes ARE its raw content — chunk
// identity is just "the hash of these bytes", so no header/kind tag is
// embedded in what gets hashed; Kind() exists only so bounded-depth loading
// can tag the in-memory value consistently with the other four kinds.
type FileChunk struct {
	Data []byte
}

func (c *FileChunk) Kind() Kind   { return KindFileChunk }
func (c *FileChunk) Encode() []byte { return c.Data }
