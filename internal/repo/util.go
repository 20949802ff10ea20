package repo

import (
	"fmt"
	"os"
	"path/filepath"
)

// absPath resolves a repo-relative path against the working directory.
func (r *Repository) absPath(relPath string) string {
	return filepath.Join(r.workDir, filepath.FromSlash(relPath))
}

// removeIfExists deletes a file, treating an already-missing file as
// success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repo: remove %s: %w", path, err)
	}
	return nil
}
