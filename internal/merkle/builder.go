package merkle

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// NodeWriter is the subset of objstore.Store the builder needs; satisfied by
// *objstore.Store. Kept as an interface here so merkle has no hard
// compile-time dependency direction surprises and can be unit-tested with a
// fake.
type NodeWriter interface {
	Put(h oxenhash.Hash, data []byte) error
	Has(h oxenhash.Hash) bool
}

// WorkingFile describes one file to be committed: its repo-relative path
// (forward-slash separated, no leading slash), its full content, and the
// metadata the File node records.
type WorkingFile struct {
	Path         string
	Data         []byte
	ModTime      time.Time
	LastCommitID oxenhash.Hash
}

// dirNode is the in-memory scratch tree built from a flat file list before
// it is encoded bottom-up into real Directory/VNode/File nodes.
type dirNode struct {
	subdirs map[string]*dirNode
	files   map[string]WorkingFile
}

func newDirNode() *dirNode {
	return &dirNode{subdirs: map[string]*dirNode{}, files: map[string]WorkingFile{}}
}

// buildScratchTree groups a flat file list into nested directories by path
// component, rejecting ".." and absolute paths per spec.md §3.1.
func buildScratchTree(files []WorkingFile) (*dirNode, error) {
	root := newDirNode()
	for _, f := range files {
		if f.Path == "" || strings.HasPrefix(f.Path, "/") {
			return nil, fmt.Errorf("merkle: invalid path %q: must be relative, non-empty", f.Path)
		}
		parts := strings.Split(f.Path, "/")
		for _, p := range parts {
			if p == ".." || p == "." || p == "" {
				return nil, fmt.Errorf("merkle: invalid path component in %q", f.Path)
			}
		}
		cur := root
		for _, comp := range parts[:len(parts)-1] {
			next, ok := cur.subdirs[comp]
			if !ok {
				next = newDirNode()
				cur.subdirs[comp] = next
			}
			cur = next
		}
		cur.files[parts[len(parts)-1]] = f
	}
	return root, nil
}

// BuildTree walks a flat working-file set, writes File/FileChunk/VNode/
// Directory nodes in dependency order (leaves first), and returns the root
// Directory hash. Deterministic: identical inputs always produce the same
// root hash (P5/P4).
func BuildTree(w NodeWriter, files []WorkingFile, vnodeSize int, chunker Chunker) (oxenhash.Hash, error) {
	if chunker == nil {
		chunker = NewFixedSizeChunker(DefaultAvgChunkSize)
	}
	if vnodeSize <= 0 {
		vnodeSize = DefaultVNodeSize
	}
	root, err := buildScratchTree(files)
	if err != nil {
		return oxenhash.Hash{}, err
	}
	rootHash, _, _, err := encodeDirNode(w, "", root, vnodeSize, chunker)
	if err != nil {
		return oxenhash.Hash{}, err
	}
	return rootHash, nil
}

// encodeDirNode recursively encodes a scratch dirNode into real nodes,
// returning the Directory node's hash and its aggregate file/byte counts.
// dirPath is the repo-relative path to this directory ("" for root).
func encodeDirNode(w NodeWriter, dirPath string, n *dirNode, vnodeSize int, chunker Chunker) (oxenhash.Hash, uint64, uint64, error) {
	type child struct {
		name     string
		fullPath string
		ck       ChildKind
		hash     oxenhash.Hash
	}
	var children []child
	var fileCount, byteCount uint64

	subdirNames := make([]string, 0, len(n.subdirs))
	for name := range n.subdirs {
		subdirNames = append(subdirNames, name)
	}
	sort.Strings(subdirNames)
	for _, name := range subdirNames {
		sub := n.subdirs[name]
		fullPath := path.Join(dirPath, name)
		h, fc, bc, err := encodeDirNode(w, fullPath, sub, vnodeSize, chunker)
		if err != nil {
			return oxenhash.Hash{}, 0, 0, err
		}
		children = append(children, child{name: name, fullPath: fullPath, ck: ChildDirectory, hash: h})
		fileCount += fc
		byteCount += bc
	}

	fileNames := make([]string, 0, len(n.files))
	for name := range n.files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)
	for _, name := range fileNames {
		wf := n.files[name]
		fullPath := path.Join(dirPath, name)
		fileHash, err := encodeFile(w, wf, chunker)
		if err != nil {
			return oxenhash.Hash{}, 0, 0, err
		}
		children = append(children, child{name: name, fullPath: fullPath, ck: ChildFile, hash: fileHash})
		fileCount++
		byteCount += uint64(len(wf.Data))
	}

	numVNodes := NumVNodes(len(children), vnodeSize)
	buckets := make(map[uint64][]VNodeChild, numVNodes)
	for _, c := range children {
		b := Bucket(c.fullPath, numVNodes)
		buckets[b] = append(buckets[b], VNodeChild{Name: c.name, Kind: c.ck, Hash: c.hash})
	}

	entries := make([]DirEntry, 0, len(buckets))
	for bucket, vnChildren := range buckets {
		vn := &VNode{Children: vnChildren}
		h, err := writeNode(w, vn)
		if err != nil {
			return oxenhash.Hash{}, 0, 0, err
		}
		entries = append(entries, DirEntry{Bucket: bucket, Hash: h})
	}

	name := ""
	if dirPath != "" {
		name = path.Base(dirPath)
	}
	dir := &Directory{Name: name, VNodes: entries, FileCount: fileCount, ByteCount: byteCount}
	h, err := writeNode(w, dir)
	if err != nil {
		return oxenhash.Hash{}, 0, 0, err
	}
	return h, fileCount, byteCount, nil
}

// encodeFile writes a File node (and its backing blob or FileChunks) and
// returns the File node's hash.
func encodeFile(w NodeWriter, wf WorkingFile, chunker Chunker) (oxenhash.Hash, error) {
	f := &File{
		Name:         path.Base(wf.Path),
		Size:         uint64(len(wf.Data)),
		LastCommitID: wf.LastCommitID,
		LastModified: wf.ModTime,
	}
	if chunker.ShouldChunk(len(wf.Data)) {
		for _, chunkData := range chunker.Chunk(wf.Data) {
			ch := &FileChunk{Data: chunkData}
			h, err := writeNode(w, ch)
			if err != nil {
				return oxenhash.Hash{}, err
			}
			f.ChunkHashes = append(f.ChunkHashes, h)
		}
	} else {
		blob := wf.Data
		h := oxenhash.Sum(blob)
		if !w.Has(h) {
			if err := w.Put(h, blob); err != nil {
				return oxenhash.Hash{}, fmt.Errorf("merkle: write blob for %s: %w", wf.Path, err)
			}
		}
		f.BlobHash = h
	}
	return writeNode(w, f)
}

// writeNode hashes and persists a node, skipping the write if the hash is
// already present (structural sharing means most commits rewrite very few
// actual bytes).
func writeNode(w NodeWriter, n Node) (oxenhash.Hash, error) {
	data := n.Encode()
	h := oxenhash.Sum(data)
	if w.Has(h) {
		return h, nil
	}
	if err := w.Put(h, data); err != nil {
		return oxenhash.Hash{}, fmt.Errorf("merkle: write %s node: %w", n.Kind(), err)
	}
	return h, nil
}
