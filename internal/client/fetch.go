package client

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/progress"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/transport"
)

// FetchOptions parameterizes Fetch's scope limits (spec.md §4.7).
type FetchOptions struct {
	SubtreePaths []string
	Depth        int // -1 = unlimited
	Reporter     progress.Reporter
}

// FetchResult reports what Fetch did.
type FetchResult struct {
	// AlreadyUpToDate is true when the remote branch's commit was already
	// present locally, so nothing was downloaded.
	AlreadyUpToDate bool
	RemoteCommit    oxenhash.Hash
}

// Fetch implements spec.md §4.5's download path: resolve the remote
// branch's commit R, and if R is already present locally, return
// immediately; otherwise download the missing commit/tree/blob graph
// between the caller's known history and R via tree/from or tree/between,
// then update the remote-tracking ref. It never touches the working tree
// or the current branch — that is Pull's job.
func Fetch(ctx context.Context, r *repo.Repository, remote *Remote, branchName string, opts FetchOptions) (*FetchResult, error) {
	info, err := remote.GetBranch(ctx, branchName)
	if err != nil {
		return nil, fmt.Errorf("client: fetch %s: %w", branchName, err)
	}
	remoteCommit, err := oxenhash.ParseHash(info.CommitID)
	if err != nil {
		return nil, fmt.Errorf("client: fetch %s: parse remote commit id: %w", branchName, err)
	}

	if r.Objects.Has(remoteCommit) {
		if err := setTrackingRef(r, branchName, remoteCommit); err != nil {
			return nil, fmt.Errorf("client: fetch %s: update tracking ref: %w", branchName, err)
		}
		return &FetchResult{AlreadyUpToDate: true, RemoteCommit: remoteCommit}, nil
	}

	limited := opts.Depth >= 0 || len(opts.SubtreePaths) > 0

	var bundle map[string][]byte
	if localHead, hasLocal, err := localTrackingHead(r, branchName); err == nil && hasLocal && !limited {
		// Incremental: only fetch what is new since the last fetch of this
		// branch (spec.md §4.5's "incremental" sub-case).
		bundle, err = remote.TreeBetween(ctx, localHead.String(), remoteCommit.String())
		if err != nil {
			return nil, fmt.Errorf("client: fetch %s: tree/between: %w", branchName, err)
		}
	} else {
		// All-history (or first fetch of this branch): walk back to the root.
		bundle, err = remote.TreeFrom(ctx, remoteCommit.String())
		if err != nil {
			return nil, fmt.Errorf("client: fetch %s: tree/from: %w", branchName, err)
		}
	}

	if err := storeNodeBundle(r, bundle); err != nil {
		return nil, fmt.Errorf("client: fetch %s: %w", branchName, err)
	}

	if err := downloadMissingBlobs(ctx, r, remote, remoteCommit, opts); err != nil {
		return nil, fmt.Errorf("client: fetch %s: %w", branchName, err)
	}

	if err := setTrackingRef(r, branchName, remoteCommit); err != nil {
		return nil, fmt.Errorf("client: fetch %s: update tracking ref: %w", branchName, err)
	}

	// A partial fetch always marks the repo shallow; only a subsequent
	// unlimited fetch clears it (SPEC_FULL.md §2, Open Question #3).
	if limited {
		r.Config.IsShallow = true
		r.Config.SubtreePaths = opts.SubtreePaths
		r.Config.Depth = opts.Depth
		if err := r.Config.Save(filepath.Join(r.DotDir(), repo.ConfigFile)); err != nil {
			return nil, fmt.Errorf("client: fetch %s: save scope limits: %w", branchName, err)
		}
	} else {
		if err := r.ClearScopeLimits(); err != nil {
			return nil, fmt.Errorf("client: fetch %s: clear scope limits: %w", branchName, err)
		}
	}

	return &FetchResult{RemoteCommit: remoteCommit}, nil
}

// remoteTrackingName is the local ref name a fetched remote branch is
// recorded under, e.g. "origin/main".
func remoteTrackingName(branchName string) string {
	return "origin/" + branchName
}

// localTrackingHead returns the commit the local "origin/<branch>" tracking
// ref currently points to, or (zero, false, nil) if it has never been
// fetched before.
func localTrackingHead(r *repo.Repository, branchName string) (oxenhash.Hash, bool, error) {
	name := remoteTrackingName(branchName)
	if !r.Refs.BranchExists(name) {
		return oxenhash.Hash{}, false, nil
	}
	h, err := r.ResolveBranch(name)
	if err != nil {
		return oxenhash.Hash{}, false, err
	}
	return h, true, nil
}

// setTrackingRef creates or advances the local "origin/<branch>" ref.
func setTrackingRef(r *repo.Repository, branchName string, commit oxenhash.Hash) error {
	name := remoteTrackingName(branchName)
	if r.Refs.BranchExists(name) {
		return r.Refs.SetBranch(name, commit)
	}
	return r.Refs.CreateBranch(name, commit)
}

// storeNodeBundle persists a downloaded node bundle into the object store,
// skipping entries already present (content-addressed, so re-storing is
// always safe, but skipping avoids redundant disk I/O).
func storeNodeBundle(r *repo.Repository, bundle map[string][]byte) error {
	for hexHash, data := range bundle {
		h, err := oxenhash.ParseHash(hexHash)
		if err != nil {
			return fmt.Errorf("parse node hash %q: %w", hexHash, err)
		}
		if r.Objects.Has(h) {
			continue
		}
		if err := r.Objects.Put(h, data); err != nil {
			return fmt.Errorf("store node %s: %w", h, err)
		}
	}
	return nil
}

// downloadMissingBlobs walks the File nodes reachable from commit's root,
// checks which blob/chunk hashes are absent from the local object store,
// and downloads them: small files via the versions bundle, large
// (chunked) files via transport.Download's chunked worker pool.
func downloadMissingBlobs(ctx context.Context, r *repo.Repository, remote *Remote, commit oxenhash.Hash, opts FetchOptions) error {
	c, err := r.GetCommit(commit)
	if err != nil {
		return fmt.Errorf("load fetched commit: %w", err)
	}

	paths, err := r.ListDirPaths(c.RootHash)
	if err != nil {
		return fmt.Errorf("list fetched tree: %w", err)
	}

	var smallBlobHashes []string
	var chunkedFiles []*merkle.File
	for _, p := range paths {
		if len(opts.SubtreePaths) > 0 && !inSubtree(p, opts.SubtreePaths) {
			continue
		}
		node, err := merkle.GetByPath(r.Objects, c.RootHash, p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		ld, err := merkle.LoadSubtree(r.Objects, merkle.Hash(node), 0)
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		for _, f := range ld.Files {
			if f.IsChunked() {
				chunkedFiles = append(chunkedFiles, f)
			} else if !r.Objects.Has(f.BlobHash) {
				smallBlobHashes = append(smallBlobHashes, f.BlobHash.String())
			}
		}
	}

	if len(smallBlobHashes) > 0 {
		blobs, err := remote.Versions(ctx, smallBlobHashes)
		if err != nil {
			return fmt.Errorf("download small blobs: %w", err)
		}
		for hexHash, data := range blobs {
			h, err := oxenhash.ParseHash(hexHash)
			if err != nil {
				return fmt.Errorf("parse blob hash %q: %w", hexHash, err)
			}
			if err := r.Objects.Put(h, data); err != nil {
				return fmt.Errorf("store blob %s: %w", h, err)
			}
		}
	}

	for _, f := range chunkedFiles {
		if err := downloadChunkedFile(ctx, r, remote, commit, f, opts.Reporter); err != nil {
			return fmt.Errorf("download %s: %w", f.Name, err)
		}
	}
	return nil
}

// chunkBuffer is an in-memory io.WriterAt used as the target of
// transport.Download before chunks are re-split and hashed back into
// individual FileChunk objects — chunk boundaries on the wire need not
// match the boundaries the builder originally cut.
type chunkBuffer struct {
	data []byte
}

func (b *chunkBuffer) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], p)
	return len(p), nil
}

func downloadChunkedFile(ctx context.Context, r *repo.Repository, remote *Remote, commit oxenhash.Hash, f *merkle.File, reporter progress.Reporter) error {
	missing := false
	for _, ch := range f.ChunkHashes {
		if !r.Objects.Has(ch) {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}

	chunkSize := int64(r.Config.AvgChunkSize)
	if chunkSize <= 0 {
		chunkSize = merkle.DefaultAvgChunkSize
	}

	buf := &chunkBuffer{}
	fetcher := chunkFetcher{remote: remote, commit: commit.String(), path: f.Name}
	err := transport.Download(ctx, f.Name, buf, int64(f.Size), fetcher, transport.Options{
		ChunkSize: chunkSize,
		Reporter:  reporter,
	})
	if err != nil {
		return err
	}

	// Re-cut the downloaded bytes along the same fixed-size boundaries
	// merkle.FixedSizeChunker used when building the File node, so each
	// piece can be verified and stored under its declared hash.
	size := int64(f.Size)
	off := int64(0)
	for i, want := range f.ChunkHashes {
		end := off + chunkSize
		if end > size {
			end = size
		}
		piece := buf.data[off:end]
		got := oxenhash.Sum(piece)
		if got != want {
			return fmt.Errorf("chunk %d of %s: hash mismatch after download", i, f.Name)
		}
		if err := r.Objects.Put(want, piece); err != nil {
			return fmt.Errorf("store chunk %d of %s: %w", i, f.Name, err)
		}
		off = end
	}
	return nil
}

func inSubtree(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || len(p) > len(prefix) && p[:len(prefix)] == prefix && p[len(prefix)] == '/' {
			return true
		}
	}
	return false
}
