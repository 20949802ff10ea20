package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	r, err := Init(dir, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func writeWorkingFile(t *testing.T, r *Repository, relPath, content string) {
	t.Helper()
	abs := filepath.Join(r.WorkDir(), relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
}

func TestInitThenFirstCommitCreatesDefaultBranch(t *testing.T) {
	r := newTestRepo(t)
	writeWorkingFile(t, r, "a.txt", "hello\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	commitHash, err := r.Commit(CommitOptions{Message: "first"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	branch, attached, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if !attached || branch != DefaultBranch {
		t.Fatalf("CurrentBranch = (%q, %v), want (%q, true)", branch, attached, DefaultBranch)
	}

	head, _, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if head != commitHash {
		t.Fatalf("HeadCommit = %v, want %v", head, commitHash)
	}
}

// TestP3EmptyCommitIsNoOp mirrors spec.md's commit-idempotence invariant:
// committing with nothing staged against an existing HEAD produces no new
// commit.
func TestP3EmptyCommitIsNoOp(t *testing.T) {
	r := newTestRepo(t)
	writeWorkingFile(t, r, "a.txt", "hello\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	first, err := r.Commit(CommitOptions{Message: "first"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	second, err := r.Commit(CommitOptions{Message: "empty"})
	if err != nil {
		t.Fatalf("Commit (empty): %v", err)
	}
	if second != first {
		t.Fatalf("empty commit produced a new commit: %v != %v", second, first)
	}
}

// TestS2StructuralSharing mirrors spec.md scenario S2: editing one file
// leaves an untouched sibling directory's hash unchanged across commits.
func TestS2StructuralSharing(t *testing.T) {
	r := newTestRepo(t)
	writeWorkingFile(t, r, "a.txt", "hello\n")
	writeWorkingFile(t, r, "dir/b.txt", "world\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add a.txt: %v", err)
	}
	if err := r.Add("dir/b.txt"); err != nil {
		t.Fatalf("Add dir/b.txt: %v", err)
	}
	c1, err := r.Commit(CommitOptions{Message: "initial"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	commit1, err := r.GetCommit(c1)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	dirHashes1, err := r.DirHashes(commit1.RootHash)
	if err != nil {
		t.Fatalf("DirHashes: %v", err)
	}

	writeWorkingFile(t, r, "a.txt", "hello!\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add a.txt (edit): %v", err)
	}
	c2, err := r.Commit(CommitOptions{Message: "edit a"})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	commit2, err := r.GetCommit(c2)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	dirHashes2, err := r.DirHashes(commit2.RootHash)
	if err != nil {
		t.Fatalf("DirHashes: %v", err)
	}

	if dirHashes1["dir"] != dirHashes2["dir"] {
		t.Fatalf("dir subtree hash changed despite no edits under it: %v != %v", dirHashes1["dir"], dirHashes2["dir"])
	}
	if commit1.RootHash == commit2.RootHash {
		t.Fatal("root hash did not change after editing a.txt")
	}
}

func TestStatusReportsUntrackedStagedAndModified(t *testing.T) {
	r := newTestRepo(t)
	writeWorkingFile(t, r, "a.txt", "hello\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "first"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeWorkingFile(t, r, "a.txt", "changed\n")
	writeWorkingFile(t, r, "b.txt", "new\n")

	entries, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	var sawModified, sawUntracked bool
	for _, e := range entries {
		switch {
		case e.Path == "a.txt" && e.Status == WTModified:
			sawModified = true
		case e.Path == "b.txt" && e.Status == WTUntracked:
			sawUntracked = true
		}
	}
	if !sawModified {
		t.Error("expected a.txt to be reported modified")
	}
	if !sawUntracked {
		t.Error("expected b.txt to be reported untracked")
	}
}

func TestCheckoutRefusesToLoseChanges(t *testing.T) {
	r := newTestRepo(t)
	writeWorkingFile(t, r, "a.txt", "v1\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "v1"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("feature"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	writeWorkingFile(t, r, "a.txt", "v2\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "v2"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeWorkingFile(t, r, "a.txt", "dirty, uncommitted\n")
	if err := r.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := r.Checkout(CheckoutOptions{Target: "feature"})
	if err == nil {
		t.Fatal("expected Checkout to refuse losing staged changes")
	}

	if err := r.Checkout(CheckoutOptions{Target: "feature", Force: true}); err != nil {
		t.Fatalf("forced Checkout: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(r.WorkDir(), "a.txt"))
	if err != nil {
		t.Fatalf("read a.txt: %v", err)
	}
	if string(data) != "v1\n" {
		t.Fatalf("a.txt = %q, want v1 content after checkout", data)
	}
}

func TestRemoveRequiresTrackedOrStagedPath(t *testing.T) {
	r := newTestRepo(t)
	if err := r.Remove("nope.txt"); err == nil {
		t.Fatal("expected Remove of an untracked path to fail")
	}
}
