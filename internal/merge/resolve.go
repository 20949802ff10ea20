package merge

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Outcome classifies what Resolve determined should happen.
type Outcome byte

const (
	OutcomeUpToDate Outcome = iota + 1
	OutcomeFastForward
	OutcomeThreeWay
)

// Result is the outcome of attempting to merge R (merge source) into L
// (local HEAD), per spec.md §4.8 steps 1-4.
type Result struct {
	Outcome  Outcome
	LCA      oxenhash.Hash
	Verdicts []PathVerdict // populated only for OutcomeThreeWay
}

// Resolve implements spec.md §4.8's merge steps 1-4: find the LCA, detect
// already-up-to-date / fast-forward, or else classify per-path verdicts for
// a three-way merge. rootOf resolves a commit hash to its root Directory
// hash (the repo layer's GetCommit().RootHash lookup).
func Resolve(r CommitReader, nr NodeReader, l, remote oxenhash.Hash, rootOf func(oxenhash.Hash) (oxenhash.Hash, error)) (*Result, error) {
	lca, err := FindLCA(r, l, remote)
	if err != nil {
		return nil, fmt.Errorf("merge: find LCA: %w", err)
	}
	if lca == remote {
		return &Result{Outcome: OutcomeUpToDate, LCA: lca}, nil
	}
	if lca == l {
		return &Result{Outcome: OutcomeFastForward, LCA: lca}, nil
	}

	baseRoot, err := rootOf(lca)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve base root: %w", err)
	}
	oursRoot, err := rootOf(l)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve ours root: %w", err)
	}
	theirsRoot, err := rootOf(remote)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve theirs root: %w", err)
	}

	verdicts, err := ClassifyPaths(nr, baseRoot, oursRoot, theirsRoot)
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeThreeWay, LCA: lca, Verdicts: verdicts}, nil
}
