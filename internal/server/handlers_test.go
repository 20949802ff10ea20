package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/wireproto"
)

// testRepoWithCommit initializes a repository at a temp dir with one file
// committed on DefaultBranch, returning the repo and that commit's hash.
func testRepoWithCommit(t *testing.T, content string) (*repo.Repository, oxenhash.Hash) {
	t.Helper()
	dir := t.TempDir()
	r, err := repo.Init(dir, silentLogger())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(repo.CommitOptions{Message: "init", Author: repo.Signature{Name: "t", Email: "t@example.com"}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return r, h
}

func newTestServerWithRepo(t *testing.T, r *repo.Repository) *Server {
	t.Helper()
	s, err := NewServer(r, "127.0.0.1:0", filepath.Join(t.TempDir(), "locks.db"), silentLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleGetBranch(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/branches/"+repo.DefaultBranch, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var info wireproto.BranchInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.CommitID != h.String() {
		t.Errorf("commit_id = %q, want %q", info.CommitID, h.String())
	}
}

func TestHandleGetBranch_NotFound(t *testing.T) {
	r, _ := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/branches/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleCreateBranch(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodPost, "/branches", wireproto.CreateBranchRequest{
		NewName:  "feature",
		FromName: repo.DefaultBranch,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got, err := r.ResolveBranch("feature")
	if err != nil || got != h {
		t.Errorf("ResolveBranch(feature) = %v, %v; want %v, nil", got, err, h)
	}
}

func TestHandleUpdateBranch_CASMismatch(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodPut, "/branches/"+repo.DefaultBranch, wireproto.UpdateBranchRequest{
		CommitID:         h.String(),
		ExpectedCommitID: oxenhash.Sum([]byte("not the real parent")).String(),
	})
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleUpdateBranch_RejectsUnknownCommit(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	unknown := oxenhash.Sum([]byte("never uploaded"))
	w := doJSON(t, s.Handler(), http.MethodPut, "/branches/"+repo.DefaultBranch, wireproto.UpdateBranchRequest{
		CommitID:         unknown.String(),
		ExpectedCommitID: h.String(),
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleDeleteBranch_NotFound(t *testing.T) {
	r, _ := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodDelete, "/branches/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLockUnlockRoundTrip(t *testing.T) {
	r, _ := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/branches/"+repo.DefaultBranch+"/lock", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("lock status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/branches/"+repo.DefaultBranch+"/lock", nil)
	var status wireproto.LockStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !status.IsLocked {
		t.Fatal("expected branch to be locked")
	}

	w = doJSON(t, h, http.MethodPost, "/branches/"+repo.DefaultBranch+"/unlock", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unlock status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/branches/"+repo.DefaultBranch+"/lock", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.IsLocked {
		t.Fatal("expected branch to be unlocked")
	}
}

func TestHandleGetCommit(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/commits/"+h.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var info wireproto.CommitInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.ID != h.String() {
		t.Errorf("id = %q, want %q", info.ID, h.String())
	}
	if info.Message != "init" {
		t.Errorf("message = %q, want %q", info.Message, "init")
	}
}

func TestHandleMissingNodes(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	unknown := oxenhash.Sum([]byte("not stored"))
	w := doJSON(t, s.Handler(), http.MethodPost, "/tree/missing", wireproto.MissingNodesRequest{
		Hashes: []string{h.String(), unknown.String()},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp wireproto.MissingNodesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Missing) != 1 || resp.Missing[0] != unknown.String() {
		t.Errorf("missing = %v, want [%s]", resp.Missing, unknown.String())
	}
}

func TestHandleTreeFrom(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/tree/from/"+h.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp wireproto.NodeBundle
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := resp.Nodes[h.String()]; !ok {
		t.Error("node bundle missing the commit itself")
	}
}

func TestHandlePutAndGetVersions(t *testing.T) {
	r, _ := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)
	hh := s.Handler()

	blob := []byte("small file contents")
	id := oxenhash.Sum(blob).String()

	w := doJSON(t, hh, http.MethodPut, "/versions", wireproto.VersionsResponse{
		Blobs: map[string][]byte{id: blob},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("PUT versions status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, hh, http.MethodPost, "/versions", wireproto.VersionsRequest{ContentIDs: []string{id}})
	if w.Code != http.StatusOK {
		t.Fatalf("POST versions status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp wireproto.VersionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(resp.Blobs[id], blob) {
		t.Errorf("blob round-trip mismatch: got %q", resp.Blobs[id])
	}
}

func TestHandleChunkPutAndGet(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello world")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/chunk/"+h.String()+"/a.txt?chunk_start=0&chunk_size=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello" {
		t.Errorf("chunk content = %q, want %q", w.Body.String(), "hello")
	}

	chunk := []byte("fresh chunk")
	req := httptest.NewRequest(http.MethodPut, "/chunk/"+h.String()+"/a.txt?chunk_start=0&chunk_size=11", bytes.NewReader(chunk))
	pw := httptest.NewRecorder()
	s.Handler().ServeHTTP(pw, req)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("PUT chunk status = %d, body = %s", pw.Code, pw.Body.String())
	}
	if !r.Objects.Has(oxenhash.Sum(chunk)) {
		t.Error("PUT chunk did not store the body under its content hash")
	}
}

func TestHandleMergeAttempt_FastForward(t *testing.T) {
	r, h := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodPut, "/branches/"+repo.DefaultBranch+"/merge", wireproto.MergeAttemptRequest{
		ClientCommitID: h.String(),
		ServerCommitID: h.String(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp wireproto.MergeAttemptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Outcome != "fast_forward" {
		t.Errorf("outcome = %q, want fast_forward", resp.Outcome)
	}
}

func TestHandleConfig(t *testing.T) {
	r, _ := testRepoWithCommit(t, "hello")
	s := newTestServerWithRepo(t, r)

	w := doJSON(t, s.Handler(), http.MethodGet, "/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp wireproto.ServerConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AllowDisjointPush {
		t.Error("AllowDisjointPush should default to false")
	}
}
