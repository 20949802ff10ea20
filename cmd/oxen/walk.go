package main

import (
	"io/fs"
	"path/filepath"
)

// filepathWalkDirSkippingDot walks root, calling add on every directory
// except dotDir (and anything beneath it).
func filepathWalkDirSkippingDot(root, dotDir string, add func(string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == dotDir {
			return filepath.SkipDir
		}
		return add(path)
	})
}
