package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/oxen-vcs/oxen-core/internal/merge"
	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/transport"
	"github.com/oxen-vcs/oxen-core/internal/wireproto"
)

// ErrBranchDiverged is returned when the remote branch has commits the
// local branch does not, so a plain push would silently discard history
// (spec.md §4.6 step 2).
var ErrBranchDiverged = errors.New("client: remote branch has diverged")

// ErrRemoteAdvanced is returned when another push raced this one and won
// the compare-and-swap on the remote branch ref (spec.md §4.6 step 5, P10).
var ErrRemoteAdvanced = errors.New("client: remote branch advanced during push")

// PushResult reports the outcome of a successful Push.
type PushResult struct {
	PushedCommit oxenhash.Hash
	CommitCount  int
}

// Push implements spec.md §4.6's exact 5-step contract: resolve the local
// and remote branch heads, refuse a non-ancestor push unless the server's
// disjoint-tree merge policy accepts it, upload every node/blob the commits
// between them introduce, and finally CAS-advance the remote ref.
func Push(ctx context.Context, r *repo.Repository, remote *Remote, branchName string) (*PushResult, error) {
	localCommit, err := r.ResolveBranch(branchName)
	if err != nil {
		return nil, fmt.Errorf("client: push %s: resolve local branch: %w", branchName, err)
	}

	remoteInfo, err := remote.GetBranch(ctx, branchName)
	var remoteCommit oxenhash.Hash
	remoteBranchExists := true
	if err != nil {
		// A branch absent on the remote is pushed as a brand-new branch;
		// everything reachable from localCommit is new to the remote.
		remoteBranchExists = false
	} else {
		remoteCommit, err = oxenhash.ParseHash(remoteInfo.CommitID)
		if err != nil {
			return nil, fmt.Errorf("client: push %s: parse remote commit id: %w", branchName, err)
		}
	}

	if remoteBranchExists && remoteCommit == localCommit {
		return &PushResult{PushedCommit: localCommit, CommitCount: 0}, nil
	}

	if remoteBranchExists {
		isAncestor, err := merge.IsAncestor(r, remoteCommit, localCommit)
		if err != nil {
			return nil, fmt.Errorf("client: push %s: %w", branchName, err)
		}
		if !isAncestor {
			attempt, err := remote.MergeAttempt(ctx, branchName, wireproto.MergeAttemptRequest{
				ClientCommitID: localCommit.String(),
				ServerCommitID: remoteCommit.String(),
			})
			if err != nil {
				return nil, fmt.Errorf("client: push %s: %w", branchName, err)
			}
			if attempt.Outcome == "conflict" {
				return nil, fmt.Errorf("%w: %s (conflicting paths: %v)", ErrBranchDiverged, branchName, attempt.Conflicts)
			}
			// attempt.Outcome == "disjoint_ok": the server's AllowDisjointPush
			// policy accepts a non-ancestor push with no overlapping paths.
		}
	}

	var stopAt oxenhash.Hash
	if remoteBranchExists {
		stopAt = remoteCommit
	}
	commits, err := commitsSince(r, localCommit, stopAt)
	if err != nil {
		return nil, fmt.Errorf("client: push %s: walk commit history: %w", branchName, err)
	}

	nodes := map[string][]byte{}
	var chunkedFiles []*merkle.File
	var smallBlobHashes []string
	for _, h := range commits {
		c, err := r.GetCommit(h)
		if err != nil {
			return nil, fmt.Errorf("client: push %s: %w", branchName, err)
		}
		nodes[h.String()] = c.Encode()
		if err := collectTreeNodes(r, c.RootHash, nodes, &chunkedFiles, &smallBlobHashes); err != nil {
			return nil, fmt.Errorf("client: push %s: %w", branchName, err)
		}
	}

	missing, err := remote.MissingNodes(ctx, keysOf(nodes))
	if err != nil {
		return nil, fmt.Errorf("client: push %s: %w", branchName, err)
	}
	if len(missing) > 0 {
		toUpload := map[string][]byte{}
		for _, hexHash := range missing {
			toUpload[hexHash] = nodes[hexHash]
		}
		if err := remote.PutNodes(ctx, toUpload); err != nil {
			return nil, fmt.Errorf("client: push %s: upload nodes: %w", branchName, err)
		}
	}

	if len(smallBlobHashes) > 0 {
		missingBlobs, err := remote.MissingNodes(ctx, smallBlobHashes)
		if err != nil {
			return nil, fmt.Errorf("client: push %s: %w", branchName, err)
		}
		if len(missingBlobs) > 0 {
			toUpload := map[string][]byte{}
			for _, hexHash := range missingBlobs {
				h, err := oxenhash.ParseHash(hexHash)
				if err != nil {
					return nil, fmt.Errorf("client: push %s: parse blob hash %q: %w", branchName, hexHash, err)
				}
				data, err := r.Objects.Get(h)
				if err != nil {
					return nil, fmt.Errorf("client: push %s: load blob %s: %w", branchName, h, err)
				}
				toUpload[hexHash] = data
			}
			if err := remote.PutVersions(ctx, toUpload); err != nil {
				return nil, fmt.Errorf("client: push %s: upload blobs: %w", branchName, err)
			}
		}
	}

	for _, f := range chunkedFiles {
		if err := uploadChunkedFile(ctx, r, remote, localCommit, f); err != nil {
			return nil, fmt.Errorf("client: push %s: upload %s: %w", branchName, f.Name, err)
		}
	}

	updateReq := wireproto.UpdateBranchRequest{CommitID: localCommit.String()}
	if remoteBranchExists {
		updateReq.ExpectedCommitID = remoteCommit.String()
		if err := remote.UpdateBranch(ctx, branchName, updateReq); err != nil {
			if isPreconditionFailure(err) {
				return nil, fmt.Errorf("%w: %s", ErrRemoteAdvanced, branchName)
			}
			return nil, fmt.Errorf("client: push %s: advance remote branch: %w", branchName, err)
		}
	} else {
		if err := remote.CreateBranch(ctx, wireproto.CreateBranchRequest{NewName: branchName, CommitID: localCommit.String()}); err != nil {
			return nil, fmt.Errorf("client: push %s: create remote branch: %w", branchName, err)
		}
	}

	return &PushResult{PushedCommit: localCommit, CommitCount: len(commits)}, nil
}

// isPreconditionFailure reports whether err came back from a failed
// compare-and-swap (spec.md §7's PreconditionFailed/Conflict kinds).
func isPreconditionFailure(err error) bool {
	var wireErr *WireError
	if !errors.As(err, &wireErr) {
		return false
	}
	return wireErr.Kind == wireproto.KindPreconditionFailed || wireErr.Kind == wireproto.KindConflict
}

// commitsSince walks parent links back from head, collecting every commit
// not equal to stop (the zero hash means "walk to the root"), and halting
// descent the moment stop is reached so a linear ancestor push never reads
// history the remote already has.
func commitsSince(r *repo.Repository, head, stop oxenhash.Hash) ([]oxenhash.Hash, error) {
	var out []oxenhash.Hash
	visited := map[oxenhash.Hash]bool{}
	var walk func(h oxenhash.Hash) error
	walk = func(h oxenhash.Hash) error {
		if h.IsZero() || h == stop || visited[h] {
			return nil
		}
		visited[h] = true
		c, err := r.GetCommit(h)
		if err != nil {
			return err
		}
		out = append(out, h)
		for _, p := range c.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(head); err != nil {
		return nil, err
	}
	return out, nil
}

// collectTreeNodes walks every Directory/VNode/File node reachable from
// root and records its canonical bytes into nodes, keyed by hex hash. File
// nodes needing blob transfer are appended to chunkedFiles/smallBlobHashes
// rather than inlined here, since their content moves over a different
// wire path (versions bundle / chunked PUT) than tree metadata.
func collectTreeNodes(r *repo.Repository, root oxenhash.Hash, nodes map[string][]byte, chunkedFiles *[]*merkle.File, smallBlobHashes *[]string) error {
	if _, ok := nodes[root.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(root)
	if err != nil {
		return fmt.Errorf("load directory %s: %w", root, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return err
	}
	dir, ok := node.(*merkle.Directory)
	if !ok {
		return fmt.Errorf("%s is a %s node, not a directory", root, node.Kind())
	}
	nodes[root.String()] = data

	for _, entry := range dir.VNodes {
		if err := collectVNode(r, entry.Hash, nodes, chunkedFiles, smallBlobHashes); err != nil {
			return err
		}
	}
	return nil
}

func collectVNode(r *repo.Repository, h oxenhash.Hash, nodes map[string][]byte, chunkedFiles *[]*merkle.File, smallBlobHashes *[]string) error {
	if _, ok := nodes[h.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(h)
	if err != nil {
		return fmt.Errorf("load vnode %s: %w", h, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return err
	}
	vn, ok := node.(*merkle.VNode)
	if !ok {
		return fmt.Errorf("%s is a %s node, not a vnode", h, node.Kind())
	}
	nodes[h.String()] = data

	for _, c := range vn.Children {
		switch c.Kind {
		case merkle.ChildDirectory:
			if err := collectTreeNodes(r, c.Hash, nodes, chunkedFiles, smallBlobHashes); err != nil {
				return err
			}
		case merkle.ChildFile:
			if err := collectFile(r, c.Hash, nodes, chunkedFiles, smallBlobHashes); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectFile(r *repo.Repository, h oxenhash.Hash, nodes map[string][]byte, chunkedFiles *[]*merkle.File, smallBlobHashes *[]string) error {
	if _, ok := nodes[h.String()]; ok {
		return nil
	}
	data, err := r.Objects.Get(h)
	if err != nil {
		return fmt.Errorf("load file %s: %w", h, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return err
	}
	f, ok := node.(*merkle.File)
	if !ok {
		return fmt.Errorf("%s is a %s node, not a file", h, node.Kind())
	}
	nodes[h.String()] = data

	if f.IsChunked() {
		*chunkedFiles = append(*chunkedFiles, f)
	} else {
		*smallBlobHashes = append(*smallBlobHashes, f.BlobHash.String())
	}
	return nil
}

func uploadChunkedFile(ctx context.Context, r *repo.Repository, remote *Remote, commit oxenhash.Hash, f *merkle.File) error {
	chunkSize := int64(r.Config.AvgChunkSize)
	if chunkSize <= 0 {
		chunkSize = merkle.DefaultAvgChunkSize
	}
	src := &chunkReaderAt{store: r.Objects, chunks: f.ChunkHashes, chunkSize: chunkSize}
	pusher := chunkPusher{remote: remote, commit: commit.String(), path: f.Name}
	return transport.Upload(ctx, f.Name, src, int64(f.Size), pusher, transport.Options{ChunkSize: chunkSize})
}

// chunkReaderAt presents a file's already-stored FileChunks as one
// contiguous ReaderAt, so transport.Upload can slice it into wire-sized
// pieces independent of the original fixed chunk boundaries.
type chunkReaderAt struct {
	store interface {
		Get(oxenhash.Hash) ([]byte, error)
	}
	chunks    []oxenhash.Hash
	chunkSize int64
}

func (c *chunkReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		idx := int((off + int64(n)) / c.chunkSize)
		if idx >= len(c.chunks) {
			return n, nil
		}
		data, err := c.store.Get(c.chunks[idx])
		if err != nil {
			return n, fmt.Errorf("read chunk %d: %w", idx, err)
		}
		withinChunk := int((off + int64(n)) % c.chunkSize)
		if withinChunk >= len(data) {
			return n, nil
		}
		copied := copy(p[n:], data[withinChunk:])
		n += copied
	}
	return n, nil
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
