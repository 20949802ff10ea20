package repo

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/merge"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// MergeOutcome mirrors merge.Outcome for callers outside the merge package.
type MergeOutcome = merge.Outcome

// MergeResult is returned by Merge: either the merge already completed
// (up-to-date/fast-forward, with no further action needed) or a three-way
// merge was staged and needs StartMerge + conflict resolution + Commit.
type MergeResult struct {
	Outcome    MergeOutcome
	Verdicts   []merge.PathVerdict
	Conflicts  []string
}

// Merge implements spec.md §4.8's local-merge entry point: resolve against
// the current branch's commit, and for a genuine three-way merge, stage the
// merge marker and materialize non-conflicting changes from theirs. Paths
// classified Conflict are left untouched in the working tree; the caller
// must resolve them (edit + Add) before Commit.
func (r *Repository) Merge(theirs oxenhash.Hash) (*MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return nil, err
	}
	if !hasHead {
		return nil, ErrNoHead
	}

	rootOf := func(h oxenhash.Hash) (oxenhash.Hash, error) {
		c, err := r.GetCommit(h)
		if err != nil {
			return oxenhash.Hash{}, err
		}
		return c.RootHash, nil
	}

	result, err := merge.Resolve(r, r.Objects, headHash, theirs, rootOf)
	if err != nil {
		return nil, fmt.Errorf("repo: resolve merge: %w", err)
	}

	switch result.Outcome {
	case merge.OutcomeUpToDate:
		return &MergeResult{Outcome: result.Outcome}, nil
	case merge.OutcomeFastForward:
		if err := r.fastForwardTo(theirs); err != nil {
			return nil, err
		}
		return &MergeResult{Outcome: result.Outcome}, nil
	}

	conflicts := merge.ConflictPaths(result.Verdicts)
	if err := r.startMergeLocked(theirs); err != nil {
		return nil, err
	}
	if err := r.applyNonConflictingVerdicts(theirs, result.Verdicts); err != nil {
		return nil, err
	}
	return &MergeResult{Outcome: result.Outcome, Verdicts: result.Verdicts, Conflicts: conflicts}, nil
}

// fastForwardTo advances the current branch (or detached HEAD) directly to
// theirs and materializes its tree into the working copy, used when
// LCA == local HEAD (spec.md §4.8 step 2). A fast-forward never loses local
// changes by definition (HEAD is an ancestor of theirs), so it always
// forces past the would-lose-changes guard.
func (r *Repository) fastForwardTo(theirs oxenhash.Hash) error {
	branch, attached, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	updateHead := func() error {
		if !attached {
			return r.Refs.SetHeadDetached(theirs)
		}
		return r.Refs.SetBranch(branch, theirs)
	}
	return r.materializeCommitLocked(theirs, true, updateHead)
}

// applyNonConflictingVerdicts materializes TakeTheirs and Convergent paths
// from the theirs tree, leaves TakeOurs/Unchanged as-is, and deletes paths
// theirs removed; Conflict paths are never touched here.
func (r *Repository) applyNonConflictingVerdicts(theirs oxenhash.Hash, verdicts []merge.PathVerdict) error {
	theirsCommit, err := r.GetCommit(theirs)
	if err != nil {
		return err
	}
	for _, v := range verdicts {
		if v.Verdict == merge.VerdictConflict || v.Verdict == merge.VerdictTakeOurs || v.Verdict == merge.VerdictUnchanged {
			continue
		}
		abs := r.absPath(v.Path)
		if v.TheirsHash.IsZero() {
			if err := removeIfExists(abs); err != nil {
				return err
			}
			continue
		}
		if err := r.materializeFile(abs, theirsCommit.RootHash, v.Path); err != nil {
			return err
		}
	}
	return nil
}
