package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/oxen-vcs/oxen-core/internal/merge"
	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/refs"
	"github.com/oxen-vcs/oxen-core/internal/server/lockstore"
	"github.com/oxen-vcs/oxen-core/internal/server/refwatch"
	"github.com/oxen-vcs/oxen-core/internal/wireproto"
)

// maxChunkUpload bounds a single PUT chunk body; well above any blob chunk
// size internal/client actually produces (spec.md §4.9's chunk-size ladder).
const maxChunkUpload = 64 << 20

// writeJSON writes v as the response body with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes spec.md §7's error taxonomy as the response body,
// picking an HTTP status that internal/client's statusToKind can invert.
func writeError(w http.ResponseWriter, kind, message string) {
	writeJSON(w, kindToStatus(kind), wireproto.ErrorResponse{Kind: kind, Message: message})
}

func kindToStatus(kind string) int {
	switch kind {
	case wireproto.KindNotFound:
		return http.StatusNotFound
	case wireproto.KindAlreadyExists:
		return http.StatusConflict
	case wireproto.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case wireproto.KindConflict:
		return http.StatusConflict
	case wireproto.KindCorruption:
		return http.StatusUnprocessableEntity
	case wireproto.KindOutOfScope:
		return http.StatusForbidden
	case wireproto.KindUnauthorized:
		return http.StatusUnauthorized
	case wireproto.KindForbidden:
		return http.StatusForbidden
	case wireproto.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) notFound(w http.ResponseWriter, err error) {
	writeError(w, wireproto.KindNotFound, err.Error())
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeError(w, wireproto.KindInvalidInput, err.Error())
}

func parseHashParam(w http.ResponseWriter, raw string) (oxenhash.Hash, bool) {
	h, err := oxenhash.ParseHash(raw)
	if err != nil {
		writeError(w, wireproto.KindInvalidInput, fmt.Sprintf("invalid hash %q: %v", raw, err))
		return oxenhash.Hash{}, false
	}
	return h, true
}

func newBranchUpdate(name string, commit oxenhash.Hash) refwatch.BranchUpdate {
	return refwatch.BranchUpdate{Branch: name, CommitID: commit.String()}
}

func branchUpdateDeleted(name string) refwatch.BranchUpdate {
	return refwatch.BranchUpdate{Branch: name, Deleted: true}
}

// handleGetBranch implements GET branches/{name}.
func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	h, err := s.repo.ResolveBranch(name)
	if err != nil {
		s.notFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wireproto.BranchInfo{Name: name, CommitID: h.String()})
}

// handleListBranches implements GET branches.
func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.ListBranches()
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out := make([]wireproto.BranchInfo, 0, len(names))
	for _, name := range names {
		h, err := s.repo.ResolveBranch(name)
		if err != nil {
			continue
		}
		out = append(out, wireproto.BranchInfo{Name: name, CommitID: h.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateBranch implements POST branches.
func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req wireproto.CreateBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}

	var source oxenhash.Hash
	var err error
	switch {
	case req.CommitID != "":
		source, err = oxenhash.ParseHash(req.CommitID)
	case req.FromName != "":
		source, err = s.repo.ResolveBranch(req.FromName)
	default:
		err = fmt.Errorf("create branch %q: neither commit_id nor from_name given", req.NewName)
	}
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if !s.repo.Objects.Has(source) {
		s.notFound(w, fmt.Errorf("commit %s not found", source))
		return
	}

	if err := s.repo.Refs.CreateBranch(req.NewName, source); err != nil {
		if errors.Is(err, refs.ErrBranchExists) {
			writeError(w, wireproto.KindAlreadyExists, err.Error())
			return
		}
		s.badRequest(w, err)
		return
	}
	s.hub.Broadcast(newBranchUpdate(req.NewName, source))
	writeJSON(w, http.StatusCreated, wireproto.BranchInfo{Name: req.NewName, CommitID: source.String()})
}

// handleUpdateBranch implements PUT branches/{name}, the push CAS
// (spec.md §4.6 step 5 / P10).
func (s *Server) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req wireproto.UpdateBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	newCommit, err := oxenhash.ParseHash(req.CommitID)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if !s.repo.Objects.Has(newCommit) {
		writeError(w, wireproto.KindNotFound, fmt.Sprintf("commit %s not uploaded", newCommit))
		return
	}

	if !s.repo.Refs.BranchExists(name) {
		if req.ExpectedCommitID != "" {
			writeError(w, wireproto.KindPreconditionFailed, fmt.Sprintf("branch %q does not exist", name))
			return
		}
		if err := s.repo.Refs.CreateBranch(name, newCommit); err != nil {
			s.badRequest(w, err)
			return
		}
	} else {
		current, err := s.repo.Refs.GetBranch(name)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		if current.String() != req.ExpectedCommitID {
			writeError(w, wireproto.KindPreconditionFailed,
				fmt.Sprintf("branch %q is at %s, not %s", name, current, req.ExpectedCommitID))
			return
		}
		if err := s.repo.Refs.SetBranch(name, newCommit); err != nil {
			s.badRequest(w, err)
			return
		}
	}

	if err := s.lockstore.SetLatestSynced(name, newCommit.String()); err != nil {
		s.logger.Error("record latest synced commit failed", "branch", name, "err", err)
	}
	s.hub.Broadcast(newBranchUpdate(name, newCommit))
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteBranch implements DELETE branches/{name}.
func (s *Server) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.repo.Refs.DeleteBranch(name); err != nil {
		if errors.Is(err, refs.ErrBranchNotFound) {
			s.notFound(w, err)
			return
		}
		s.badRequest(w, err)
		return
	}
	s.hub.Broadcast(branchUpdateDeleted(name))
	w.WriteHeader(http.StatusNoContent)
}

// lockHolder identifies the caller requesting a lock, from a client-supplied
// header since this server has no authentication layer of its own.
func lockHolder(r *http.Request) string {
	if h := r.Header.Get("X-Oxen-Client-Id"); h != "" {
		return h
	}
	return getClientIP(r)
}

// handleLockBranch implements POST branches/{name}/lock.
func (s *Server) handleLockBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	holder := lockHolder(r)
	if err := s.lockstore.Lock(name, holder); err != nil {
		if errors.Is(err, lockstore.ErrAlreadyLocked) {
			writeError(w, wireproto.KindConflict, err.Error())
			return
		}
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnlockBranch implements POST branches/{name}/unlock.
func (s *Server) handleUnlockBranch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.lockstore.Unlock(name); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIsLocked implements GET branches/{name}/lock.
func (s *Server) handleIsLocked(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	locked, holder, err := s.lockstore.IsLocked(name)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wireproto.LockStatus{IsLocked: locked, Holder: holder})
}

// handleLatestSyncedCommit implements GET branches/{name}/latest_synced_commit.
// A miss (no push has ever CAS-succeeded against this branch) falls back to
// the branch's current ref rather than any notion of an in-flight value.
func (s *Server) handleLatestSyncedCommit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	commit, ok, err := s.lockstore.LatestSynced(name)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if !ok {
		h, err := s.repo.ResolveBranch(name)
		if err != nil {
			s.notFound(w, err)
			return
		}
		commit = h.String()
	}
	writeJSON(w, http.StatusOK, wireproto.LatestSyncedCommitResponse{CommitID: commit})
}

// handleGetCommit implements GET commits/{id}.
func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHashParam(w, r.PathValue("id"))
	if !ok {
		return
	}
	c, err := s.repo.GetCommit(h)
	if err != nil {
		s.notFound(w, err)
		return
	}
	parents := make([]string, len(c.Parents))
	for i, p := range c.Parents {
		parents[i] = p.String()
	}
	writeJSON(w, http.StatusOK, wireproto.CommitInfo{
		ID:          h.String(),
		Parents:     parents,
		AuthorName:  c.AuthorName,
		AuthorEmail: c.AuthorEmail,
		Message:     c.Message,
		TimestampNS: c.Timestamp.UnixNano(),
		RootHash:    c.RootHash.String(),
	})
}

// handleDirHashes implements GET commits/{id}/dir_hashes, restoring
// original_source's dir-hashes side index (SPEC_FULL.md §2).
func (s *Server) handleDirHashes(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHashParam(w, r.PathValue("id"))
	if !ok {
		return
	}
	c, err := s.repo.GetCommit(h)
	if err != nil {
		s.notFound(w, err)
		return
	}
	idx, err := merkle.DirHashIndex(s.repo.Objects, c.RootHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	out := make(map[string]string, len(idx))
	for path, hash := range idx {
		out[path] = hash.String()
	}
	writeJSON(w, http.StatusOK, wireproto.DirHashesResponse{DirHashes: out})
}

// handleMissingNodes implements POST tree/missing.
func (s *Server) handleMissingNodes(w http.ResponseWriter, r *http.Request) {
	var req wireproto.MissingNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	var missing []string
	for _, hex := range req.Hashes {
		h, err := oxenhash.ParseHash(hex)
		if err != nil || !s.repo.Objects.Has(h) {
			missing = append(missing, hex)
		}
	}
	writeJSON(w, http.StatusOK, wireproto.MissingNodesResponse{Missing: missing})
}

// handlePutNodes implements PUT tree/nodes: stores a batch of uploaded node
// bytes in whatever order the client sent them — content addressing makes
// dependency order irrelevant to storage.
func (s *Server) handlePutNodes(w http.ResponseWriter, r *http.Request) {
	var req wireproto.NodeBundle
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	for hex, data := range req.Nodes {
		h, err := oxenhash.ParseHash(hex)
		if err != nil {
			s.badRequest(w, fmt.Errorf("parse node hash %q: %w", hex, err))
			return
		}
		if s.repo.Objects.Has(h) {
			continue
		}
		if err := s.repo.Objects.Put(h, data); err != nil {
			writeError(w, wireproto.KindCorruption, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTreeBetween implements GET tree/between/{base}/{head}.
func (s *Server) handleTreeBetween(w http.ResponseWriter, r *http.Request) {
	base, ok := parseHashParam(w, r.PathValue("base"))
	if !ok {
		return
	}
	head, ok := parseHashParam(w, r.PathValue("head"))
	if !ok {
		return
	}
	nodes, err := nodeBundleBetween(s.repo, base, head)
	if err != nil {
		s.notFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wireproto.NodeBundle{Nodes: nodes})
}

// handleTreeFrom implements GET tree/from/{head}.
func (s *Server) handleTreeFrom(w http.ResponseWriter, r *http.Request) {
	head, ok := parseHashParam(w, r.PathValue("head"))
	if !ok {
		return
	}
	nodes, err := nodeBundleFrom(s.repo, head)
	if err != nil {
		s.notFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wireproto.NodeBundle{Nodes: nodes})
}

// handleVersionsGet implements POST versions: bundles several small blobs'
// content in one round trip (spec.md §4.9). POST carries the content-ID list
// as a body rather than relying on a GET-with-body, which many HTTP
// intermediaries mishandle; PUT versions remains the symmetric upload.
func (s *Server) handleVersionsGet(w http.ResponseWriter, r *http.Request) {
	var req wireproto.VersionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	blobs := make(map[string][]byte, len(req.ContentIDs))
	for _, hex := range req.ContentIDs {
		h, err := oxenhash.ParseHash(hex)
		if err != nil {
			continue
		}
		data, err := s.repo.Objects.Get(h)
		if err != nil {
			continue
		}
		blobs[hex] = data
	}
	writeJSON(w, http.StatusOK, wireproto.VersionsResponse{Blobs: blobs})
}

// handleVersionsPut implements PUT versions: uploads a batch of small blobs.
func (s *Server) handleVersionsPut(w http.ResponseWriter, r *http.Request) {
	var req wireproto.VersionsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	for hex, data := range req.Blobs {
		h, err := oxenhash.ParseHash(hex)
		if err != nil {
			s.badRequest(w, fmt.Errorf("parse blob hash %q: %w", hex, err))
			return
		}
		if s.repo.Objects.Has(h) {
			continue
		}
		if err := s.repo.Objects.Put(h, data); err != nil {
			writeError(w, wireproto.KindCorruption, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseChunkRange(r *http.Request) (start, size int64) {
	q := r.URL.Query()
	start, _ = strconv.ParseInt(q.Get("chunk_start"), 10, 64)
	size, _ = strconv.ParseInt(q.Get("chunk_size"), 10, 64)
	return start, size
}

// handleChunkGet implements GET chunk/{commit}/{path}?chunk_start=&chunk_size=.
// The requested byte range need not align with the commit's own File-node
// chunk layout; content is reassembled first, then sliced.
func (s *Server) handleChunkGet(w http.ResponseWriter, r *http.Request) {
	commitHash, ok := parseHashParam(w, r.PathValue("commit"))
	if !ok {
		return
	}
	path := r.PathValue("path")
	start, size := parseChunkRange(r)

	c, err := s.repo.GetCommit(commitHash)
	if err != nil {
		s.notFound(w, err)
		return
	}
	node, err := merkle.GetByPath(s.repo.Objects, c.RootHash, path)
	if err != nil {
		s.notFound(w, err)
		return
	}
	f, ok := node.(*merkle.File)
	if !ok {
		s.badRequest(w, fmt.Errorf("%s is a %s node, not a file", path, node.Kind()))
		return
	}

	content, err := merkle.ReadFileContent(s.repo.Objects, f)
	if err != nil {
		writeError(w, wireproto.KindCorruption, err.Error())
		return
	}
	if start < 0 || start > int64(len(content)) {
		start = int64(len(content))
	}
	end := start + size
	if size <= 0 || end > int64(len(content)) {
		end = int64(len(content))
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content[start:end])
}

// handleChunkPut implements PUT chunk/{commit}/{path}?chunk_start=&chunk_size=.
// Storage is purely content-addressed (objstore keys on the hash of the
// bytes, never on commit/path), so this hashes and stores the body directly;
// commit/path only route the request to the right handler.
func (s *Server) handleChunkPut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkUpload))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	h := oxenhash.Sum(data)
	if !s.repo.Objects.Has(h) {
		if err := s.repo.Objects.Put(h, data); err != nil {
			writeError(w, wireproto.KindCorruption, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMergeAttempt implements PUT branches/{name}/merge: the server-side
// push conflict check (spec.md §4.6 step 2's stronger variant), gated by the
// opt-in AllowDisjointPush setting (SPEC_FULL.md §2's Open Question: ancestor
// -only is the default policy, disjoint-tree mode is never silently enabled).
func (s *Server) handleMergeAttempt(w http.ResponseWriter, r *http.Request) {
	var req wireproto.MergeAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	clientHash, err := oxenhash.ParseHash(req.ClientCommitID)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	serverHash, err := oxenhash.ParseHash(req.ServerCommitID)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	if isFF, err := merge.IsAncestor(s.repo, serverHash, clientHash); err == nil && isFF {
		writeJSON(w, http.StatusOK, wireproto.MergeAttemptResponse{Outcome: "fast_forward"})
		return
	}

	if !s.repo.Config.AllowDisjointPush {
		writeJSON(w, http.StatusOK, wireproto.MergeAttemptResponse{Outcome: "conflict"})
		return
	}

	lcaHash, err := merge.FindLCA(s.repo, clientHash, serverHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	lca, err := s.repo.GetCommit(lcaHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	clientCommit, err := s.repo.GetCommit(clientHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	serverCommit, err := s.repo.GetCommit(serverHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	conflicts, err := merge.TreeConflictOracle(s.repo.Objects, lca.RootHash, clientCommit.RootHash, serverCommit.RootHash)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if len(conflicts) == 0 {
		writeJSON(w, http.StatusOK, wireproto.MergeAttemptResponse{Outcome: "disjoint_ok"})
		return
	}
	writeJSON(w, http.StatusOK, wireproto.MergeAttemptResponse{Outcome: "conflict", Conflicts: conflicts})
}

// handleConfig implements the supplemental GET config endpoint: clients must
// not assume AllowDisjointPush without the server advertising it here.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wireproto.ServerConfigResponse{AllowDisjointPush: s.repo.Config.AllowDisjointPush})
}
