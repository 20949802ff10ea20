package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/staging"
)

// Add stages a path for the next commit: reads its current working-tree
// content, writes it into the object store as a raw blob keyed by content
// hash (so a later commit is immune to edits made after staging), and
// records an Added or Modified entry depending on whether HEAD already
// tracks the path.
func (r *Repository) Add(relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	abs := filepath.Join(r.workDir, filepath.FromSlash(relPath))
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("repo: stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("repo: %s is a directory, stage individual files", relPath)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("repo: read %s: %w", relPath, err)
	}
	h := oxenhash.Sum(data)
	if !r.Objects.Has(h) {
		if err := r.Objects.Put(h, data); err != nil {
			return fmt.Errorf("repo: stage blob for %s: %w", relPath, err)
		}
	}

	status := staging.Added
	if tracked, err := r.headTracksPath(relPath); err != nil {
		return err
	} else if tracked {
		status = staging.Modified
	}

	return r.Staging.Stage(staging.Entry{
		Path:    relPath,
		Status:  status,
		Hash:    h,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// Remove stages a path's removal for the next commit, without touching the
// working-tree file (callers that also want it deleted from disk do that
// separately, mirroring `git rm --cached`'s split from plain `rm`).
func (r *Repository) Remove(relPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, err := r.headTracksPath(relPath)
	if err != nil {
		return err
	}
	if !tracked {
		if _, staged := r.Staging.Get(relPath); !staged {
			return fmt.Errorf("repo: %s is not tracked", relPath)
		}
	}
	return r.Staging.Stage(staging.Entry{Path: relPath, Status: staging.Removed})
}

// headTracksPath reports whether HEAD's tree currently has a File node at
// relPath.
func (r *Repository) headTracksPath(relPath string) (bool, error) {
	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return false, err
	}
	if !hasHead {
		return false, nil
	}
	commit, err := r.GetCommit(headHash)
	if err != nil {
		return false, err
	}
	node, err := merkle.GetByPath(r.Objects, commit.RootHash, relPath)
	if err != nil {
		if errors.Is(err, merkle.ErrPathNotFound) {
			return false, nil
		}
		return false, err
	}
	_, isFile := node.(*merkle.File)
	return isFile, nil
}
