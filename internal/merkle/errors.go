package merkle

import "errors"

// ErrPathNotFound is returned by GetByPath when no entry exists at the
// given path within the tree.
var ErrPathNotFound = errors.New("merkle: path not found in tree")
