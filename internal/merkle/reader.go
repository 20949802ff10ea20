package merkle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// NodeReader is the subset of objstore.Store needed to read back nodes.
type NodeReader interface {
	Get(h oxenhash.Hash) ([]byte, error)
	Has(h oxenhash.Hash) bool
}

// LoadedDir is a bounded-depth, in-memory view of a Directory and its
// immediate VNode-sharded children, produced by LoadSubtree.
type LoadedDir struct {
	Hash         oxenhash.Hash
	Dir          *Directory
	Subdirs      map[string]*LoadedDir   // populated only within the requested depth
	SubdirHashes map[string]oxenhash.Hash // all known child dir names -> hash, regardless of depth
	Files        map[string]*File
	FileHashes   map[string]oxenhash.Hash
}

// LoadSubtree loads a bounded-depth view rooted at hash. depth == 0 returns
// only the Directory node itself (its immediate children are named and
// hashed, but nested directories are not descended into); depth == -1 loads
// the full subtree. VNode traversal never counts against depth — it is
// internal sharding, invisible at this API.
func LoadSubtree(r NodeReader, hash oxenhash.Hash, depth int) (*LoadedDir, error) {
	dirBytes, err := r.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("merkle: load directory %s: %w", hash, err)
	}
	node, err := DecodeNode(dirBytes)
	if err != nil {
		return nil, err
	}
	dir, ok := node.(*Directory)
	if !ok {
		return nil, fmt.Errorf("merkle: %s is a %s node, not a directory", hash, node.Kind())
	}

	ld := &LoadedDir{
		Hash:         hash,
		Dir:          dir,
		Subdirs:      map[string]*LoadedDir{},
		SubdirHashes: map[string]oxenhash.Hash{},
		Files:        map[string]*File{},
		FileHashes:   map[string]oxenhash.Hash{},
	}

	for _, entry := range dir.VNodes {
		vnBytes, err := r.Get(entry.Hash)
		if err != nil {
			return nil, fmt.Errorf("merkle: load vnode %s: %w", entry.Hash, err)
		}
		vnNode, err := DecodeNode(vnBytes)
		if err != nil {
			return nil, err
		}
		vn, ok := vnNode.(*VNode)
		if !ok {
			return nil, fmt.Errorf("merkle: %s is a %s node, not a vnode", entry.Hash, vnNode.Kind())
		}
		for _, c := range vn.Children {
			switch c.Kind {
			case ChildDirectory:
				ld.SubdirHashes[c.Name] = c.Hash
				if depth != 0 {
					childDepth := depth - 1
					if depth == -1 {
						childDepth = -1
					}
					sub, err := LoadSubtree(r, c.Hash, childDepth)
					if err != nil {
						return nil, err
					}
					ld.Subdirs[c.Name] = sub
				}
			case ChildFile:
				fBytes, err := r.Get(c.Hash)
				if err != nil {
					return nil, fmt.Errorf("merkle: load file %s: %w", c.Hash, err)
				}
				fNode, err := DecodeNode(fBytes)
				if err != nil {
					return nil, err
				}
				f, ok := fNode.(*File)
				if !ok {
					return nil, fmt.Errorf("merkle: %s is a %s node, not a file", c.Hash, fNode.Kind())
				}
				ld.Files[c.Name] = f
				ld.FileHashes[c.Name] = c.Hash
			}
		}
	}
	return ld, nil
}

// GetByPath resolves a repo-relative path against a tree root, descending
// one directory at a time (O(depth) since each LoadSubtree call here is
// depth-0, plus one extra load for the terminal entry).
func GetByPath(r NodeReader, root oxenhash.Hash, p string) (Node, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		ld, err := LoadSubtree(r, root, 0)
		if err != nil {
			return nil, err
		}
		return ld.Dir, nil
	}
	parts := strings.Split(p, "/")
	cur := root
	for i, comp := range parts {
		ld, err := LoadSubtree(r, cur, 0)
		if err != nil {
			return nil, err
		}
		if i == len(parts)-1 {
			if f, ok := ld.Files[comp]; ok {
				return f, nil
			}
			if h, ok := ld.SubdirHashes[comp]; ok {
				sub, err := LoadSubtree(r, h, 0)
				if err != nil {
					return nil, err
				}
				return sub.Dir, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
		}
		h, ok := ld.SubdirHashes[comp]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
		}
		cur = h
	}
	return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
}

// ListDirPaths returns every directory path in the tree (including "" for
// the root), sorted.
func ListDirPaths(r NodeReader, root oxenhash.Hash) ([]string, error) {
	var paths []string
	var walk func(hash oxenhash.Hash, p string) error
	walk = func(hash oxenhash.Hash, p string) error {
		paths = append(paths, p)
		ld, err := LoadSubtree(r, hash, 0)
		if err != nil {
			return err
		}
		for name, h := range ld.SubdirHashes {
			childPath := name
			if p != "" {
				childPath = p + "/" + name
			}
			if err := walk(h, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// DirHashIndex builds the full path → Directory-hash side index for a tree,
// equivalent to a flattened view of the tree's directory nodes (§9's
// "Dir-hashes index" design note); always rebuildable from the tree itself.
func DirHashIndex(r NodeReader, root oxenhash.Hash) (map[string]oxenhash.Hash, error) {
	index := map[string]oxenhash.Hash{}
	var walk func(hash oxenhash.Hash, p string) error
	walk = func(hash oxenhash.Hash, p string) error {
		index[p] = hash
		ld, err := LoadSubtree(r, hash, 0)
		if err != nil {
			return err
		}
		for name, h := range ld.SubdirHashes {
			childPath := name
			if p != "" {
				childPath = p + "/" + name
			}
			if err := walk(h, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return index, nil
}

// GetBlob retrieves a small file's inline content.
func GetBlob(r NodeReader, h oxenhash.Hash) ([]byte, error) {
	return r.Get(h)
}

// GetChunk retrieves one FileChunk's raw content.
func GetChunk(r NodeReader, h oxenhash.Hash) ([]byte, error) {
	return r.Get(h)
}

// ReadFileContent reassembles a File node's full content, concatenating
// chunks in order if chunked, or reading the inline blob otherwise.
func ReadFileContent(r NodeReader, f *File) ([]byte, error) {
	if !f.IsChunked() {
		return GetBlob(r, f.BlobHash)
	}
	out := make([]byte, 0, f.Size)
	for _, ch := range f.ChunkHashes {
		data, err := GetChunk(r, ch)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}
