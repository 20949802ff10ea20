package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/staging"
)

// getFileAtPath resolves relPath against root and requires it to be a File
// node (not a directory).
func getFileAtPath(r *Repository, root oxenhash.Hash, relPath string) (*merkle.File, error) {
	node, err := merkle.GetByPath(r.Objects, root, relPath)
	if err != nil {
		return nil, fmt.Errorf("repo: resolve %s: %w", relPath, err)
	}
	f, ok := node.(*merkle.File)
	if !ok {
		return nil, fmt.Errorf("repo: %s is a directory, not a file", relPath)
	}
	return f, nil
}

// FileStatus classifies one working-tree path for `oxen status` (spec.md
// §4.10).
type FileStatus byte

const (
	WTUnmodified FileStatus = iota
	WTStaged
	WTModified  // tracked, changed on disk, not yet re-staged
	WTUntracked
	WTMissing // tracked or staged, but absent from disk
)

// StatusEntry is one path's working-tree status.
type StatusEntry struct {
	Path   string
	Status FileStatus
}

// Status implements spec.md §4.10's three-step comparison: HEAD-vs-index
// (staged changes), index-vs-disk (unstaged changes, using a size fast-path
// before falling back to a content rehash), and an untracked-file walk.
func (r *Repository) Status() ([]StatusEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked()
}

// statusLocked is Status's body without acquiring mu, for callers (like
// Checkout's would-lose-changes guard) that already hold it.
func (r *Repository) statusLocked() ([]StatusEntry, error) {
	var entries []StatusEntry
	tracked := map[string]bool{}

	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	if hasHead {
		commit, err := r.GetCommit(headHash)
		if err != nil {
			return nil, err
		}
		base, err := r.flattenTree(commit.RootHash)
		if err != nil {
			return nil, err
		}
		for _, f := range base {
			tracked[f.Path] = true
		}
	}

	staged := r.Staging.All()
	stagedByPath := map[string]staging.Entry{}
	for _, e := range staged {
		stagedByPath[e.Path] = e
		entries = append(entries, StatusEntry{Path: e.Path, Status: WTStaged})
	}

	for path := range tracked {
		if _, isStaged := stagedByPath[path]; isStaged {
			continue
		}
		abs := filepath.Join(r.workDir, filepath.FromSlash(path))
		info, statErr := os.Stat(abs)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				entries = append(entries, StatusEntry{Path: path, Status: WTMissing})
				continue
			}
			return nil, fmt.Errorf("repo: stat %s: %w", path, statErr)
		}
		modified, err := r.isModifiedOnDisk(path, abs, info)
		if err != nil {
			return nil, err
		}
		if modified {
			entries = append(entries, StatusEntry{Path: path, Status: WTModified})
		}
	}

	untracked, err := r.untrackedFiles(tracked, stagedByPath)
	if err != nil {
		return nil, err
	}
	for _, path := range untracked {
		entries = append(entries, StatusEntry{Path: path, Status: WTUntracked})
	}

	return entries, nil
}

// isModifiedOnDisk compares a tracked path's on-disk state to HEAD's
// recorded File node: size mismatch is conclusive, a size match falls back
// to a content rehash (mirroring gitcore's stat-then-rehash status check).
func (r *Repository) isModifiedOnDisk(path, abs string, info os.FileInfo) (bool, error) {
	headHash, _, err := r.HeadCommit()
	if err != nil {
		return false, err
	}
	commit, err := r.GetCommit(headHash)
	if err != nil {
		return false, err
	}
	node, err := getFileAtPath(r, commit.RootHash, path)
	if err != nil {
		return false, err
	}
	if uint64(info.Size()) != node.Size {
		return true, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return false, fmt.Errorf("repo: read %s: %w", path, err)
	}
	var recordedHash oxenhash.Hash
	if node.IsChunked() {
		// chunked files carry no whole-file hash: hash the recorded content
		recorded, err := merkle.ReadFileContent(r.Objects, node)
		if err != nil {
			return false, err
		}
		recordedHash = oxenhash.Sum(recorded)
	} else {
		recordedHash = node.BlobHash
	}
	return oxenhash.Sum(data) != recordedHash, nil
}

// untrackedFiles walks the working tree, skipping the .oxen directory,
// returning paths that are neither tracked by HEAD nor staged.
func (r *Repository) untrackedFiles(tracked map[string]bool, staged map[string]staging.Entry) ([]string, error) {
	var out []string
	err := filepath.WalkDir(r.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == r.workDir {
			return nil
		}
		rel, relErr := filepath.Rel(r.workDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == DotDir {
				return filepath.SkipDir
			}
			return nil
		}
		if tracked[rel] {
			return nil
		}
		if _, ok := staged[rel]; ok {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repo: walk working tree: %w", err)
	}
	return out, nil
}
