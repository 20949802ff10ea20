package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// outOfScopeErr wraps ErrOutOfScope with a specific path for a shallow/subtree/depth-limited
// repo's refusal (spec.md §4.7, §7's OutOfScope taxonomy entry).
func outOfScopeErr(p string) error {
	return fmt.Errorf("%w: %s", ErrOutOfScope, p)
}

// InScope reports whether p falls within the repo's current subtree limits.
// A repo with no subtree_paths configured has no restriction.
func (r *Repository) InScope(p string) bool {
	if len(r.Config.SubtreePaths) == 0 {
		return true
	}
	p = strings.Trim(p, "/")
	for _, prefix := range r.Config.SubtreePaths {
		prefix = strings.Trim(prefix, "/")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// ListDirPaths lists every directory path under root, restricted to the
// repo's subtree limits (spec.md §4.7: "restrict what list_dir_paths can
// report").
func (r *Repository) ListDirPaths(root oxenhash.Hash) ([]string, error) {
	all, err := merkle.ListDirPaths(r.Objects, root)
	if err != nil {
		return nil, err
	}
	if len(r.Config.SubtreePaths) == 0 {
		return all, nil
	}
	var filtered []string
	for _, p := range all {
		if r.InScope(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// DirHashes exposes the commit's directory-hash side index (spec.md §4.2's
// get_by_path O(depth) lookup support, and the `commits/{id}/dir_hashes`
// wire endpoint in §6.1), restricted to in-scope paths for a limited repo.
func (r *Repository) DirHashes(root oxenhash.Hash) (map[string]oxenhash.Hash, error) {
	full, err := merkle.DirHashIndex(r.Objects, root)
	if err != nil {
		return nil, err
	}
	if len(r.Config.SubtreePaths) == 0 {
		return full, nil
	}
	out := map[string]oxenhash.Hash{}
	for p, h := range full {
		if r.InScope(p) {
			out[p] = h
		}
	}
	return out, nil
}

// CheckPathsInScope refuses an operation touching any path outside the
// repo's subtree/depth limits (spec.md §4.7: "cause merges involving
// out-of-scope paths to refuse with out_of_scope_path").
func (r *Repository) CheckPathsInScope(paths []string) error {
	for _, p := range paths {
		if !r.InScope(p) {
			return outOfScopeErr(p)
		}
	}
	return nil
}

// ClearScopeLimits resets shallow/subtree/depth limits and persists the
// config, called after a successful full (all_history, no subtree, no
// depth) fetch (spec.md §4.7 / Open Question #3's resolution in SPEC_FULL).
func (r *Repository) ClearScopeLimits() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Config.ClearLimits()
	return r.Config.Save(r.configPath())
}

func (r *Repository) configPath() string {
	return filepath.Join(r.dotDir, ConfigFile)
}
