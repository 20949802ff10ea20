package repo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/refs"
	"github.com/oxen-vcs/oxen-core/internal/staging"
)

// DefaultBranch is the branch a fresh repository's first commit creates and
// attaches HEAD to, mirroring gitcore's "main" default.
const DefaultBranch = "main"

// Signature identifies a commit's author.
type Signature struct {
	Name  string
	Email string
}

// CommitOptions parameterizes Commit.
type CommitOptions struct {
	Message string
	Author  Signature
}

// Commit implements spec.md §4.4's commit engine: merge HEAD's tree with
// staged changes (structural sharing keeps unchanged subtrees' hashes),
// write a Commit node, advance the current branch, clear staging.
//
// P3 (commit idempotence): an empty staging set against HEAD produces no
// new commit.
func (r *Repository) Commit(opts CommitOptions) (oxenhash.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(opts.Message) == "" {
		return oxenhash.Hash{}, ErrEmptyMessage
	}

	staged := r.Staging.All()

	headHash, hasHead, err := r.HeadCommit()
	if err != nil {
		return oxenhash.Hash{}, err
	}

	var parents []oxenhash.Hash
	var baseFiles []merkle.WorkingFile
	if hasHead {
		parents = append(parents, headHash)
		headCommit, err := r.GetCommit(headHash)
		if err != nil {
			return oxenhash.Hash{}, err
		}
		baseFiles, err = r.flattenTree(headCommit.RootHash)
		if err != nil {
			return oxenhash.Hash{}, err
		}
	}

	if mergeHash, inMerge, err := r.readMergeHead(); err != nil {
		return oxenhash.Hash{}, err
	} else if inMerge {
		parents = append(parents, mergeHash)
	}

	if len(staged) == 0 {
		// P3: nothing staged, HEAD already exists, no merge in progress ->
		// committing is a no-op (no new commit).
		if hasHead {
			if _, inMerge, _ := r.readMergeHead(); !inMerge {
				return headHash, nil
			}
		}
	}

	merged, err := r.applyStagedChanges(baseFiles, staged)
	if err != nil {
		return oxenhash.Hash{}, err
	}

	rootHash, err := merkle.BuildTree(r.Objects, merged, r.Config.VNodeSize, merkle.NewFixedSizeChunker(r.Config.AvgChunkSize))
	if err != nil {
		return oxenhash.Hash{}, fmt.Errorf("repo: build tree: %w", err)
	}

	if hasHead && rootHash == mustRootOf(headHash, r) && len(parents) <= 1 {
		// Staged changes round-tripped back to HEAD's exact tree (e.g. an
		// add followed by an equal-content remove): no new commit (P3).
		if err := r.Staging.Clear(); err != nil {
			return oxenhash.Hash{}, err
		}
		return headHash, nil
	}

	commit := &merkle.Commit{
		Parents:     parents,
		AuthorName:  opts.Author.Name,
		AuthorEmail: opts.Author.Email,
		Message:     opts.Message,
		Timestamp:   nowFn(),
		RootHash:    rootHash,
	}
	commitHash := merkle.Hash(commit)
	if !r.Objects.Has(commitHash) {
		if err := r.Objects.Put(commitHash, commit.Encode()); err != nil {
			return oxenhash.Hash{}, fmt.Errorf("repo: write commit node: %w", err)
		}
	}

	head, err := r.Refs.ReadHead()
	switch {
	case errors.Is(err, refs.ErrHeadUnset):
		// Fresh repository's first commit: create the default branch and
		// attach HEAD to it.
		if err := r.Refs.CreateBranch(DefaultBranch, commitHash); err != nil {
			return oxenhash.Hash{}, err
		}
		if err := r.Refs.SetHeadBranch(DefaultBranch); err != nil {
			return oxenhash.Hash{}, err
		}
	case err != nil:
		return oxenhash.Hash{}, err
	case head.Attached:
		if err := r.Refs.SetBranch(head.Branch, commitHash); err != nil {
			return oxenhash.Hash{}, err
		}
	default:
		if err := r.Refs.SetHeadDetached(commitHash); err != nil {
			return oxenhash.Hash{}, err
		}
	}

	if err := r.clearMergeHead(); err != nil {
		return oxenhash.Hash{}, err
	}
	if err := r.Staging.Clear(); err != nil {
		return oxenhash.Hash{}, err
	}
	return commitHash, nil
}

func mustRootOf(h oxenhash.Hash, r *Repository) oxenhash.Hash {
	c, err := r.GetCommit(h)
	if err != nil {
		return oxenhash.Hash{}
	}
	return c.RootHash
}

// flattenTree walks a tree root and returns every file as a WorkingFile,
// used as the base for merging in staged changes.
func (r *Repository) flattenTree(root oxenhash.Hash) ([]merkle.WorkingFile, error) {
	var files []merkle.WorkingFile
	var walk func(hash oxenhash.Hash, prefix string) error
	walk = func(hash oxenhash.Hash, prefix string) error {
		ld, err := merkle.LoadSubtree(r.Objects, hash, 0)
		if err != nil {
			return err
		}
		for name, f := range ld.Files {
			p := name
			if prefix != "" {
				p = prefix + "/" + name
			}
			content, err := merkle.ReadFileContent(r.Objects, f)
			if err != nil {
				return err
			}
			files = append(files, merkle.WorkingFile{
				Path:         p,
				Data:         content,
				ModTime:      f.LastModified,
				LastCommitID: f.LastCommitID,
			})
		}
		for name, h := range ld.SubdirHashes {
			p := name
			if prefix != "" {
				p = prefix + "/" + name
			}
			if err := walk(h, p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return files, nil
}

// applyStagedChanges overlays staged Added/Modified/Removed entries onto
// the base file set read from HEAD. Add/Remove (see stage.go) snapshot
// working-tree content into the object store as a raw blob at staging
// time, keyed by staging.Entry.Hash, so a commit is unaffected by further
// edits made to the working tree after `oxen add`.
func (r *Repository) applyStagedChanges(base []merkle.WorkingFile, staged []staging.Entry) ([]merkle.WorkingFile, error) {
	byPath := map[string]merkle.WorkingFile{}
	for _, f := range base {
		byPath[f.Path] = f
	}
	for _, e := range staged {
		switch e.Status {
		case staging.Removed:
			delete(byPath, e.Path)
		case staging.Added, staging.Modified:
			content, err := r.Objects.Get(e.Hash)
			if err != nil {
				return nil, fmt.Errorf("repo: load staged content for %s: %w", e.Path, err)
			}
			byPath[e.Path] = merkle.WorkingFile{
				Path:    e.Path,
				Data:    content,
				ModTime: e.ModTime,
			}
		}
	}
	out := make([]merkle.WorkingFile, 0, len(byPath))
	for _, f := range byPath {
		out = append(out, f)
	}
	return out, nil
}

// --- merge marker (transient files during an in-progress merge) ----------

// readMergeHead returns the second parent recorded for an in-progress
// merge, if any.
func (r *Repository) readMergeHead() (oxenhash.Hash, bool, error) {
	data, err := os.ReadFile(r.mergeHeadPath())
	if err != nil {
		if os.IsNotExist(err) {
			return oxenhash.Hash{}, false, nil
		}
		return oxenhash.Hash{}, false, fmt.Errorf("repo: read merge_head: %w", err)
	}
	h, err := oxenhash.ParseHash(strings.TrimSpace(string(data)))
	if err != nil {
		return oxenhash.Hash{}, false, fmt.Errorf("repo: parse merge_head: %w", err)
	}
	return h, true, nil
}

// writeMergeHead records the merge-source commit as a transient marker,
// deleted atomically once the resulting merge commit succeeds (spec.md
// §4.4's "merge marker").
func (r *Repository) writeMergeHead(theirs oxenhash.Hash) error {
	return os.WriteFile(r.mergeHeadPath(), []byte(theirs.String()+"\n"), 0o644)
}

func (r *Repository) clearMergeHead() error {
	if err := os.Remove(r.mergeHeadPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repo: remove merge_head: %w", err)
	}
	if err := os.Remove(r.origHeadPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("repo: remove orig_head: %w", err)
	}
	return nil
}

