package merge

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Verdict classifies one path's three-way state, per spec.md §4.8 step 4.
type Verdict byte

const (
	VerdictUnchanged Verdict = iota + 1
	VerdictTakeOurs          // changed on L only (or only L touched this path)
	VerdictTakeTheirs        // changed on R only
	VerdictConvergent        // both changed to the same result
	VerdictConflict          // both changed, to different results
)

func (v Verdict) String() string {
	switch v {
	case VerdictUnchanged:
		return "unchanged"
	case VerdictTakeOurs:
		return "take-ours"
	case VerdictTakeTheirs:
		return "take-theirs"
	case VerdictConvergent:
		return "convergent"
	case VerdictConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// PathVerdict is the classification result for one path.
type PathVerdict struct {
	Path     string
	Verdict  Verdict
	BaseHash oxenhash.Hash
	OursHash oxenhash.Hash // zero hash means deleted
	TheirsHash oxenhash.Hash
}

// NodeReader is the tree-reading capability merge needs; satisfied by
// objstore.Store.
type NodeReader interface {
	Get(h oxenhash.Hash) ([]byte, error)
	Has(h oxenhash.Hash) bool
}

// ClassifyPaths builds the per-path verdict set for a three-way merge of
// base, ours (L), and theirs (R) tree roots — the same conflict
// classification shape as gitcore.classifyConflict, generalized from git's
// diff-status pairs to Oxen's tree-hash diffs.
func ClassifyPaths(r NodeReader, baseRoot, oursRoot, theirsRoot oxenhash.Hash) ([]PathVerdict, error) {
	mr := merkleReader{r}
	oursDiff, err := merkle.DiffTrees(mr, baseRoot, oursRoot)
	if err != nil {
		return nil, fmt.Errorf("merge: diff base->ours: %w", err)
	}
	theirsDiff, err := merkle.DiffTrees(mr, baseRoot, theirsRoot)
	if err != nil {
		return nil, fmt.Errorf("merge: diff base->theirs: %w", err)
	}

	oursByPath := map[string]merkle.DiffEntry{}
	for _, e := range oursDiff {
		oursByPath[e.Path] = e
	}
	theirsByPath := map[string]merkle.DiffEntry{}
	for _, e := range theirsDiff {
		theirsByPath[e.Path] = e
	}

	allPaths := map[string]struct{}{}
	for p := range oursByPath {
		allPaths[p] = struct{}{}
	}
	for p := range theirsByPath {
		allPaths[p] = struct{}{}
	}

	var verdicts []PathVerdict
	for path := range allPaths {
		oe, oChanged := oursByPath[path]
		te, tChanged := theirsByPath[path]

		switch {
		case oChanged && !tChanged:
			verdicts = append(verdicts, PathVerdict{Path: path, Verdict: VerdictTakeOurs, OursHash: oe.NewHash, TheirsHash: oe.OldHash})
		case !oChanged && tChanged:
			verdicts = append(verdicts, PathVerdict{Path: path, Verdict: VerdictTakeTheirs, OursHash: te.OldHash, TheirsHash: te.NewHash})
		case oChanged && tChanged:
			if oe.Status == merkle.StatusRemoved && te.Status == merkle.StatusRemoved {
				verdicts = append(verdicts, PathVerdict{Path: path, Verdict: VerdictConvergent})
			} else if oe.Status == te.Status && oe.NewHash == te.NewHash {
				verdicts = append(verdicts, PathVerdict{Path: path, Verdict: VerdictConvergent, OursHash: oe.NewHash, TheirsHash: te.NewHash})
			} else {
				verdicts = append(verdicts, PathVerdict{Path: path, Verdict: VerdictConflict, OursHash: oe.NewHash, TheirsHash: te.NewHash})
			}
		}
	}
	return verdicts, nil
}

// merkleReader adapts merge's narrower NodeReader to merkle.NodeReader
// (identical method set; kept as distinct named interfaces so each package
// states only the capability it needs).
type merkleReader struct{ NodeReader }

// ConflictPaths filters ClassifyPaths down to just the conflicting paths,
// the shape surfaced to callers per spec.md §4.8 step 4/§7 Conflict error.
func ConflictPaths(verdicts []PathVerdict) []string {
	var paths []string
	for _, v := range verdicts {
		if v.Verdict == VerdictConflict {
			paths = append(paths, v.Path)
		}
	}
	return paths
}

// TreeConflictOracle walks three tree roots and reports whether client and
// server modified overlapping paths in incompatible ways — the stronger
// variant used by server-side push policy (spec.md §4.6 step 2, §4.8's
// "Tree-conflict oracle"). A conflict is any path where both sides modified
// the same file to different hashes, or where one modified and the other
// deleted.
func TreeConflictOracle(r NodeReader, baseRoot, clientRoot, serverRoot oxenhash.Hash) ([]string, error) {
	verdicts, err := ClassifyPaths(r, baseRoot, clientRoot, serverRoot)
	if err != nil {
		return nil, err
	}
	return ConflictPaths(verdicts), nil
}
