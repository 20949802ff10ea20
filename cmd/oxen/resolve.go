package main

import (
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/repo"
)

// resolveRev resolves rev as a branch name first, falling back to a raw
// commit hash, and finally to HEAD when rev is empty.
func resolveRev(r *repo.Repository, rev string) (oxenhash.Hash, error) {
	if rev == "" || rev == "HEAD" {
		h, ok, err := r.HeadCommit()
		if err != nil {
			return oxenhash.Hash{}, err
		}
		if !ok {
			return oxenhash.Hash{}, fmt.Errorf("HEAD has no commit yet")
		}
		return h, nil
	}

	if h, err := r.ResolveBranch(rev); err == nil {
		return h, nil
	}

	h, err := oxenhash.ParseHash(rev)
	if err != nil {
		return oxenhash.Hash{}, fmt.Errorf("unknown revision %q", rev)
	}
	return h, nil
}
