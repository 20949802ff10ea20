package repo

import "github.com/oxen-vcs/oxen-core/internal/oxenhash"

// CreateBranch creates name pointing at HEAD's current commit.
func (r *Repository) CreateBranch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return err
	}
	if !hasHead {
		return ErrNoHead
	}
	return r.Refs.CreateBranch(name, headHash)
}

// DeleteBranch removes a branch, refusing to delete the one HEAD currently
// points to (the refs package itself has no concept of HEAD, so this check
// lives here).
func (r *Repository) DeleteBranch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	branch, attached, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if attached && branch == name {
		return ErrIsCurrentBranch
	}
	return r.Refs.DeleteBranch(name)
}

// ListBranches returns all branch names.
func (r *Repository) ListBranches() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Refs.ListBranches()
}

// ResolveBranch returns the commit hash a branch currently points to.
func (r *Repository) ResolveBranch(name string) (oxenhash.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Refs.GetBranch(name)
}
