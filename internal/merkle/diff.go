package merkle

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// EntryStatus classifies one path's change between two tree roots.
type EntryStatus byte

const (
	StatusAdded EntryStatus = iota + 1
	StatusRemoved
	StatusModified
)

func (s EntryStatus) String() string {
	switch s {
	case StatusAdded:
		return "added"
	case StatusRemoved:
		return "removed"
	case StatusModified:
		return "modified"
	default:
		return "unknown"
	}
}

// DiffEntry is one changed path between two tree roots.
type DiffEntry struct {
	Path     string
	Status   EntryStatus
	IsDir    bool
	OldHash  oxenhash.Hash
	NewHash  oxenhash.Hash
}

// DiffTrees computes added/removed/modified entries between two Directory
// roots. Two nodes with the same hash are identical and are not descended
// into; divergent siblings recurse — the same hash-short-circuit strategy
// as 0xlemi-microprolly's pkg/tree/diff.go, generalized from a 2-way KV
// prolly tree to Oxen's five-kind tree.
func DiffTrees(r NodeReader, aRoot, bRoot oxenhash.Hash) ([]DiffEntry, error) {
	var entries []DiffEntry
	if err := diffDirs(r, "", aRoot, bRoot, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func diffDirs(r NodeReader, dirPath string, aHash, bHash oxenhash.Hash, out *[]DiffEntry) error {
	if aHash == bHash {
		return nil // identical subtree: short-circuit, per spec.md §4.2
	}

	var aDir, bDir *LoadedDir
	var err error
	if !aHash.IsZero() {
		aDir, err = LoadSubtree(r, aHash, 0)
		if err != nil {
			return fmt.Errorf("merkle: diff load a-side %s: %w", aHash, err)
		}
	}
	if !bHash.IsZero() {
		bDir, err = LoadSubtree(r, bHash, 0)
		if err != nil {
			return fmt.Errorf("merkle: diff load b-side %s: %w", bHash, err)
		}
	}

	names := map[string]struct{}{}
	if aDir != nil {
		for n := range aDir.Files {
			names[n] = struct{}{}
		}
		for n := range aDir.SubdirHashes {
			names[n] = struct{}{}
		}
	}
	if bDir != nil {
		for n := range bDir.Files {
			names[n] = struct{}{}
		}
		for n := range bDir.SubdirHashes {
			names[n] = struct{}{}
		}
	}

	for name := range names {
		childPath := name
		if dirPath != "" {
			childPath = dirPath + "/" + name
		}

		var aIsDir, bIsDir, aPresent, bPresent bool
		var aFileHash, bFileHash, aDirHash, bDirHash oxenhash.Hash
		if aDir != nil {
			if h, ok := aDir.FileHashes[name]; ok {
				aPresent, aFileHash = true, h
			} else if h, ok := aDir.SubdirHashes[name]; ok {
				aPresent, aIsDir, aDirHash = true, true, h
			}
		}
		if bDir != nil {
			if h, ok := bDir.FileHashes[name]; ok {
				bPresent, bFileHash = true, h
			} else if h, ok := bDir.SubdirHashes[name]; ok {
				bPresent, bIsDir, bDirHash = true, true, h
			}
		}

		switch {
		case aPresent && !bPresent:
			if aIsDir {
				if err := collectAll(r, childPath, aDirHash, StatusRemoved, out); err != nil {
					return err
				}
			} else {
				*out = append(*out, DiffEntry{Path: childPath, Status: StatusRemoved, OldHash: aFileHash})
			}
		case !aPresent && bPresent:
			if bIsDir {
				if err := collectAll(r, childPath, bDirHash, StatusAdded, out); err != nil {
					return err
				}
			} else {
				*out = append(*out, DiffEntry{Path: childPath, Status: StatusAdded, NewHash: bFileHash})
			}
		case aPresent && bPresent:
			switch {
			case aIsDir && bIsDir:
				if err := diffDirs(r, childPath, aDirHash, bDirHash, out); err != nil {
					return err
				}
			case !aIsDir && !bIsDir:
				if aFileHash != bFileHash {
					*out = append(*out, DiffEntry{Path: childPath, Status: StatusModified, OldHash: aFileHash, NewHash: bFileHash})
				}
			default:
				// Kind changed between a file and a directory at the same
				// path: model as a removal of the old kind plus an addition
				// of the new kind.
				if aIsDir {
					if err := collectAll(r, childPath, aDirHash, StatusRemoved, out); err != nil {
						return err
					}
					*out = append(*out, DiffEntry{Path: childPath, Status: StatusAdded, NewHash: bFileHash})
				} else {
					*out = append(*out, DiffEntry{Path: childPath, Status: StatusRemoved, OldHash: aFileHash})
					if err := collectAll(r, childPath, bDirHash, StatusAdded, out); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// collectAll emits every file under a subtree with a uniform status, used
// when an entire directory was added or removed wholesale.
func collectAll(r NodeReader, dirPath string, hash oxenhash.Hash, status EntryStatus, out *[]DiffEntry) error {
	ld, err := LoadSubtree(r, hash, 0)
	if err != nil {
		return fmt.Errorf("merkle: collect subtree %s: %w", hash, err)
	}
	for name, h := range ld.FileHashes {
		p := name
		if dirPath != "" {
			p = dirPath + "/" + name
		}
		e := DiffEntry{Path: p, Status: status}
		if status == StatusAdded {
			e.NewHash = h
		} else {
			e.OldHash = h
		}
		*out = append(*out, e)
	}
	for name, h := range ld.SubdirHashes {
		p := name
		if dirPath != "" {
			p = dirPath + "/" + name
		}
		if err := collectAll(r, p, h, status, out); err != nil {
			return err
		}
	}
	return nil
}
