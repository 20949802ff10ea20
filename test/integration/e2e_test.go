// Package integration drives cmd/oxen's library layer against a real
// internal/server instance over HTTP, exercising spec.md §8.2's scenarios
// that need two independent repositories and a network round trip (S5's
// push compare-and-swap and S6's chunked transfer) rather than a single
// in-process repo.Repository.
package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxen-vcs/oxen-core/internal/client"
	"github.com/oxen-vcs/oxen-core/internal/merge"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/progress"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/server"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sig() repo.Signature {
	return repo.Signature{Name: "tester", Email: "tester@example.com"}
}

// newTestRemote initializes a repository with one commit (a.txt="hello\n")
// and fronts it with a real server.Server wired to an httptest.Server.
func newTestRemote(t *testing.T) (*repo.Repository, *client.Remote, func()) {
	t.Helper()
	dir := t.TempDir()
	r, err := repo.Init(dir, silentLogger())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(repo.CommitOptions{Message: "init", Author: sig()}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	srv, err := server.NewServer(r, "127.0.0.1:0", filepath.Join(dir, "locks.db"), silentLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())

	remote, err := client.NewRemote(httpSrv.URL)
	if err != nil {
		httpSrv.Close()
		t.Fatalf("NewRemote: %v", err)
	}

	return r, remote, httpSrv.Close
}

// cloneInto fetches the remote's main branch into a fresh repository at dir
// and checks it out, simulating what a future `oxen clone` would do.
func cloneInto(t *testing.T, dir string, remote *client.Remote) *repo.Repository {
	t.Helper()
	r, err := repo.Init(dir, silentLogger())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}

	result, err := client.Fetch(context.Background(), r, remote, repo.DefaultBranch, client.FetchOptions{
		Depth:    -1,
		Reporter: progress.NoopReporter{},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if err := r.Refs.CreateBranch(repo.DefaultBranch, result.RemoteCommit); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.Checkout(repo.CheckoutOptions{Target: repo.DefaultBranch}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	return r
}

// TestS5_PushCompareAndSwap reproduces spec.md §8.2's S5: two clones at R0,
// one pushes to R1 and succeeds, the other's push based on the stale R0
// fails, and a fetch+merge+push afterward succeeds.
func TestS5_PushCompareAndSwap(t *testing.T) {
	_, remote, closeRemote := newTestRemote(t)
	defer closeRemote()

	c1 := cloneInto(t, t.TempDir(), remote)
	c2 := cloneInto(t, t.TempDir(), remote)

	// C1 commits and pushes -> remote advances to R1.
	if err := os.WriteFile(filepath.Join(c1.WorkDir(), "c.txt"), []byte("c\n"), 0o644); err != nil {
		t.Fatalf("write c.txt: %v", err)
	}
	if err := c1.Add("c.txt"); err != nil {
		t.Fatalf("c1 Add: %v", err)
	}
	if _, err := c1.Commit(repo.CommitOptions{Message: "add c", Author: sig()}); err != nil {
		t.Fatalf("c1 Commit: %v", err)
	}
	if _, err := client.Push(context.Background(), c1, remote, repo.DefaultBranch); err != nil {
		t.Fatalf("c1 Push: %v", err)
	}

	// C2 commits on top of the now-stale R0 and tries to push; it must fail.
	if err := os.WriteFile(filepath.Join(c2.WorkDir(), "d.txt"), []byte("d\n"), 0o644); err != nil {
		t.Fatalf("write d.txt: %v", err)
	}
	if err := c2.Add("d.txt"); err != nil {
		t.Fatalf("c2 Add: %v", err)
	}
	if _, err := c2.Commit(repo.CommitOptions{Message: "add d", Author: sig()}); err != nil {
		t.Fatalf("c2 Commit: %v", err)
	}
	if _, err := client.Push(context.Background(), c2, remote, repo.DefaultBranch); err == nil {
		t.Fatal("expected c2's push against a stale base to fail")
	}

	// C2 fetches, merges, and pushes again: must succeed.
	fetchResult, err := client.Fetch(context.Background(), c2, remote, repo.DefaultBranch, client.FetchOptions{
		Depth:    -1,
		Reporter: progress.NoopReporter{},
	})
	if err != nil {
		t.Fatalf("c2 Fetch (retry): %v", err)
	}
	mergeResult, err := c2.Merge(fetchResult.RemoteCommit)
	if err != nil {
		t.Fatalf("c2 Merge: %v", err)
	}
	if len(mergeResult.Conflicts) > 0 {
		t.Fatalf("unexpected conflicts merging disjoint additions: %v", mergeResult.Conflicts)
	}
	if mergeResult.Outcome == merge.OutcomeThreeWay {
		if _, err := c2.Commit(repo.CommitOptions{Message: "merge", Author: sig()}); err != nil {
			t.Fatalf("c2 merge Commit: %v", err)
		}
	}

	if _, err := client.Push(context.Background(), c2, remote, repo.DefaultBranch); err != nil {
		t.Fatalf("c2 Push (retry): %v", err)
	}
}

// TestS6_ChunkedDownload reproduces spec.md §8.2's S6: a file spanning 10
// chunks downloads correctly and its content hash matches what was
// committed, even scaled down to a chunk size small enough to run as a
// unit test.
func TestS6_ChunkedDownload(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir, silentLogger())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	r.Config.AvgChunkSize = 16

	content := make([]byte, 10*r.Config.AvgChunkSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), content, 0o644); err != nil {
		t.Fatalf("write big.bin: %v", err)
	}
	if err := r.Add("big.bin"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(repo.CommitOptions{Message: "add big file", Author: sig()}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	srv, err := server.NewServer(r, "127.0.0.1:0", filepath.Join(dir, "locks.db"), silentLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	remote, err := client.NewRemote(httpSrv.URL)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}

	clientRepo := cloneInto(t, t.TempDir(), remote)

	got, err := os.ReadFile(filepath.Join(clientRepo.WorkDir(), "big.bin"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if oxenhash.Sum(got) != oxenhash.Sum(content) {
		t.Fatalf("downloaded content hash mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}
