package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/refs"
)

// CheckoutOptions parameterizes Checkout.
type CheckoutOptions struct {
	// Target is a branch name or, if Detach is true, a raw commit hash.
	Target string
	Detach bool
	Force  bool // skip the would-lose-changes guard
}

// Checkout implements spec.md §4.8 steps 1-7: diff HEAD's tree against the
// target commit's tree, refuse to clobber local modifications unless
// forced, materialize added/modified files, remove files the target drops,
// never touch untracked files, and update HEAD.
func (r *Repository) Checkout(opts CheckoutOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targetHash, err := r.resolveCheckoutTarget(opts)
	if err != nil {
		return err
	}

	updateHead := func() error {
		if opts.Detach {
			return r.Refs.SetHeadDetached(targetHash)
		}
		return r.Refs.SetHeadBranch(opts.Target)
	}
	if err := r.materializeCommitLocked(targetHash, opts.Force, updateHead); err != nil {
		return err
	}
	return r.Staging.Clear()
}

// materializeCommitLocked diffs HEAD's tree against target's, refuses to
// clobber local modifications unless force is set, writes added/modified
// files and removes dropped ones, then runs updateHead to point HEAD at the
// new commit. Shared by Checkout and Merge's fast-forward path; the caller
// must already hold mu.
func (r *Repository) materializeCommitLocked(targetHash oxenhash.Hash, force bool, updateHead func() error) error {
	targetCommit, err := r.GetCommit(targetHash)
	if err != nil {
		return err
	}

	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return err
	}

	var headRoot oxenhash.Hash
	if hasHead {
		headCommit, err := r.GetCommit(headHash)
		if err != nil {
			return err
		}
		headRoot = headCommit.RootHash
	}

	diff, err := merkle.DiffTrees(r.Objects, headRoot, targetCommit.RootHash)
	if err != nil {
		return fmt.Errorf("repo: diff for checkout: %w", err)
	}

	if !force {
		if err := r.guardWouldLoseChanges(diff); err != nil {
			return err
		}
	}

	for _, e := range diff {
		if e.IsDir {
			continue
		}
		abs := filepath.Join(r.workDir, filepath.FromSlash(e.Path))
		switch e.Status {
		case merkle.StatusRemoved:
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("repo: remove %s: %w", e.Path, err)
			}
		case merkle.StatusAdded, merkle.StatusModified:
			if err := r.materializeFile(abs, targetCommit.RootHash, e.Path); err != nil {
				return err
			}
		}
	}

	return updateHead()
}

func (r *Repository) resolveCheckoutTarget(opts CheckoutOptions) (oxenhash.Hash, error) {
	if opts.Detach {
		return oxenhash.ParseHash(opts.Target)
	}
	if !r.Refs.BranchExists(opts.Target) {
		return oxenhash.Hash{}, fmt.Errorf("%w: %s", refs.ErrBranchNotFound, opts.Target)
	}
	return r.Refs.GetBranch(opts.Target)
}

// guardWouldLoseChanges refuses the checkout if any path the target would
// modify or remove has uncommitted local changes (staged or unstaged),
// mirroring gitcore's pre-checkout safety check.
func (r *Repository) guardWouldLoseChanges(diff []merkle.DiffEntry) error {
	status, err := r.statusLocked()
	if err != nil {
		return err
	}
	dirty := map[string]bool{}
	for _, s := range status {
		if s.Status == WTStaged || s.Status == WTModified {
			dirty[s.Path] = true
		}
	}
	for _, e := range diff {
		if e.IsDir {
			continue
		}
		if (e.Status == merkle.StatusModified || e.Status == merkle.StatusRemoved) && dirty[e.Path] {
			return fmt.Errorf("%w: %s", ErrWouldLoseChanges, e.Path)
		}
	}
	return nil
}

// materializeFile writes a single file's content from the target tree onto
// disk, creating parent directories as needed.
func (r *Repository) materializeFile(abs string, targetRoot oxenhash.Hash, relPath string) error {
	f, err := getFileAtPath(r, targetRoot, relPath)
	if err != nil {
		return err
	}
	content, err := merkle.ReadFileContent(r.Objects, f)
	if err != nil {
		return fmt.Errorf("repo: read content for %s: %w", relPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("repo: mkdir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("repo: write %s: %w", relPath, err)
	}
	return nil
}

// StartMerge records the merge-source commit and the pre-merge HEAD as
// transient markers (spec.md §4.4's merge marker), so a subsequent Commit
// produces a two-parent merge commit. Called once three-way classification
// has no unresolved conflicts, or after the caller has resolved them.
func (r *Repository) StartMerge(theirs oxenhash.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startMergeLocked(theirs)
}

// startMergeLocked is StartMerge's body without acquiring mu, for callers
// (like Merge) that already hold it.
func (r *Repository) startMergeLocked(theirs oxenhash.Hash) error {
	if _, inMerge, err := r.readMergeHead(); err != nil {
		return err
	} else if inMerge {
		return ErrMergeInProgress
	}
	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return err
	}
	if hasHead {
		if err := os.WriteFile(r.origHeadPath(), []byte(headHash.String()+"\n"), 0o644); err != nil {
			return fmt.Errorf("repo: write orig_head: %w", err)
		}
	}
	return r.writeMergeHead(theirs)
}

// AbortMerge discards an in-progress merge's markers without touching the
// working tree.
func (r *Repository) AbortMerge() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, inMerge, err := r.readMergeHead(); err != nil {
		return err
	} else if !inMerge {
		return ErrNotMerging
	}
	return r.clearMergeHead()
}
