// Package merge implements LCA discovery, fast-forward detection, the
// three-way per-path verdict classification, and the tree-conflict oracle
// used by server-side push policy (spec.md §4.8).
package merge

import (
	"container/heap"
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// CommitReader resolves a commit hash to its decoded Commit node; satisfied
// by the repo package's object-store-backed commit loader.
type CommitReader interface {
	GetCommit(h oxenhash.Hash) (*merkle.Commit, error)
}

const (
	sideOurs   = 1
	sideTheirs = 2
)

// commitHeapItem orders commits by timestamp for the bidirectional BFS
// frontier, newest first — same max-heap shape as gitcore's commitHeap.
type commitHeapItem struct {
	hash      oxenhash.Hash
	timestamp int64
}

type commitMaxHeap []commitHeapItem

func (h commitMaxHeap) Len() int            { return len(h) }
func (h commitMaxHeap) Less(i, j int) bool  { return h[i].timestamp > h[j].timestamp }
func (h commitMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *commitMaxHeap) Push(x interface{}) { *h = append(*h, x.(commitHeapItem)) }
func (h *commitMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// FindLCA finds the lowest common ancestor of a and b by walking the parent
// graph outward from both simultaneously and returning the first commit
// reached from both sides, tracked via a visited-side bitmask — the same
// strategy as gitcore.MergeBase.
func FindLCA(r CommitReader, a, b oxenhash.Hash) (oxenhash.Hash, error) {
	if a == b {
		return a, nil
	}
	visited := map[oxenhash.Hash]int{}
	h := &commitMaxHeap{}
	heap.Init(h)

	push := func(hash oxenhash.Hash, side int) error {
		if visited[hash]&side != 0 {
			return nil
		}
		visited[hash] |= side
		c, err := r.GetCommit(hash)
		if err != nil {
			return fmt.Errorf("merge: load commit %s: %w", hash, err)
		}
		var ts int64
		if c != nil {
			ts = c.Timestamp.UnixNano()
		}
		heap.Push(h, commitHeapItem{hash: hash, timestamp: ts})
		return nil
	}

	if err := push(a, sideOurs); err != nil {
		return oxenhash.Hash{}, err
	}
	if err := push(b, sideTheirs); err != nil {
		return oxenhash.Hash{}, err
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(commitHeapItem)
		if visited[item.hash] == (sideOurs | sideTheirs) {
			return item.hash, nil
		}
		c, err := r.GetCommit(item.hash)
		if err != nil {
			return oxenhash.Hash{}, fmt.Errorf("merge: load commit %s: %w", item.hash, err)
		}
		for _, parent := range c.Parents {
			if err := push(parent, visited[item.hash]); err != nil {
				return oxenhash.Hash{}, err
			}
		}
	}
	return oxenhash.Hash{}, fmt.Errorf("merge: no common ancestor between %s and %s", a, b)
}

// IsAncestor reports whether ancestor is reachable from descendant by
// walking parent links (used for push preconditions and fast-forward
// detection).
func IsAncestor(r CommitReader, ancestor, descendant oxenhash.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	visited := map[oxenhash.Hash]bool{}
	queue := []oxenhash.Hash{descendant}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		c, err := r.GetCommit(cur)
		if err != nil {
			return false, fmt.Errorf("merge: load commit %s: %w", cur, err)
		}
		queue = append(queue, c.Parents...)
	}
	return false, nil
}
