package client

import (
	"context"
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

// PullResult reports what Pull did to the current branch.
type PullResult struct {
	Fetch *FetchResult
	Merge *repo.MergeResult
}

// Pull implements spec.md §4.5's one-line definition: Fetch, then update
// the current branch from its newly-fetched remote-tracking state, fast
// forwarding or three-way merging as Repository.Merge decides. Pull refuses
// to run against a detached HEAD — there is no branch to advance.
func Pull(ctx context.Context, r *repo.Repository, remote *Remote, branchName string, opts FetchOptions) (*PullResult, error) {
	current, attached, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("client: pull: %w", err)
	}
	if !attached {
		return nil, fmt.Errorf("client: pull: HEAD is detached, nothing to update")
	}
	if current != branchName {
		return nil, fmt.Errorf("client: pull: current branch %q does not match %q", current, branchName)
	}

	fetchResult, err := Fetch(ctx, r, remote, branchName, opts)
	if err != nil {
		return nil, fmt.Errorf("client: pull %s: %w", branchName, err)
	}

	mergeResult, err := r.Merge(fetchResult.RemoteCommit)
	if err != nil {
		return nil, fmt.Errorf("client: pull %s: %w", branchName, err)
	}

	return &PullResult{Fetch: fetchResult, Merge: mergeResult}, nil
}
