package merkle

import (
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// DefaultVNodeSize is the per-repo constant controlling how many children a
// directory packs per VNode before sharding into more VNodes.
const DefaultVNodeSize = 1000

// NumVNodes computes ⌈n / vnodeSize⌉, clamped to at least 1 so an empty or
// tiny directory still gets a single VNode.
func NumVNodes(n int, vnodeSize int) int {
	if vnodeSize <= 0 {
		vnodeSize = DefaultVNodeSize
	}
	if n <= 0 {
		return 1
	}
	return (n + vnodeSize - 1) / vnodeSize
}

// Bucket computes the content-insensitive VNode bucket for a child at the
// given path: hash128(path_bytes) mod num_vnodes. Content-insensitive means
// two directory snapshots with identical path sets bucket identically
// regardless of file contents, maximizing VNode reuse across commits.
func Bucket(path string, numVNodes int) uint64 {
	h := oxenhash.Sum([]byte(path))
	return h.Mod(uint64(numVNodes))
}
