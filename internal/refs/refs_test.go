package refs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "refs"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func h(s string) oxenhash.Hash { return oxenhash.Sum([]byte(s)) }

func TestCreateAndGetBranch(t *testing.T) {
	s := newStore(t)
	commit := h("commit1")
	if err := s.CreateBranch("main", commit); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	got, err := s.GetBranch("main")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if got != commit {
		t.Fatalf("GetBranch = %v, want %v", got, commit)
	}
}

func TestCreateBranchAlreadyExists(t *testing.T) {
	s := newStore(t)
	commit := h("c")
	if err := s.CreateBranch("main", commit); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := s.CreateBranch("main", commit); !errors.Is(err, ErrBranchExists) {
		t.Fatalf("CreateBranch duplicate: got %v, want ErrBranchExists", err)
	}
}

func TestBranchNameRejectsDotDot(t *testing.T) {
	s := newStore(t)
	if err := s.CreateBranch("../escape", h("c")); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("CreateBranch with .. : got %v, want ErrInvalidName", err)
	}
}

func TestNestedBranchPathConflict(t *testing.T) {
	s := newStore(t)
	if err := s.CreateBranch("feature", h("a")); err != nil {
		t.Fatalf("CreateBranch feature: %v", err)
	}
	if err := s.CreateBranch("feature/foo", h("b")); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("CreateBranch feature/foo: got %v, want ErrPathConflict", err)
	}
}

func TestNestedBranchPathConflictReverse(t *testing.T) {
	s := newStore(t)
	if err := s.CreateBranch("feature/foo", h("a")); err != nil {
		t.Fatalf("CreateBranch feature/foo: %v", err)
	}
	if err := s.CreateBranch("feature", h("b")); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("CreateBranch feature: got %v, want ErrPathConflict", err)
	}
}

func TestListBranchesSorted(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.CreateBranch(name, h(name)); err != nil {
			t.Fatalf("CreateBranch %s: %v", name, err)
		}
	}
	branches, err := s.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 3 {
		t.Fatalf("ListBranches = %v, want 3 entries", branches)
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if branches[i] != want {
			t.Errorf("ListBranches[%d] = %q, want %q", i, branches[i], want)
		}
	}
}

func TestDeleteBranch(t *testing.T) {
	s := newStore(t)
	if err := s.CreateBranch("gone", h("c")); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := s.DeleteBranch("gone"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if s.BranchExists("gone") {
		t.Fatal("branch still exists after delete")
	}
}

func TestDeleteBranchNotFound(t *testing.T) {
	s := newStore(t)
	if err := s.DeleteBranch("nope"); !errors.Is(err, ErrBranchNotFound) {
		t.Fatalf("DeleteBranch missing: got %v, want ErrBranchNotFound", err)
	}
}

func TestHeadAttachedAndDetached(t *testing.T) {
	s := newStore(t)
	commit := h("c1")
	if err := s.CreateBranch("main", commit); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := s.SetHeadBranch("main"); err != nil {
		t.Fatalf("SetHeadBranch: %v", err)
	}
	head, err := s.ReadHead()
	if err != nil {
		t.Fatalf("ReadHead: %v", err)
	}
	if !head.Attached || head.Branch != "main" || head.Commit != commit {
		t.Fatalf("ReadHead = %+v, want attached main @ %v", head, commit)
	}

	other := h("other")
	if err := s.SetHeadDetached(other); err != nil {
		t.Fatalf("SetHeadDetached: %v", err)
	}
	head, err = s.ReadHead()
	if err != nil {
		t.Fatalf("ReadHead detached: %v", err)
	}
	if head.Attached || head.Commit != other {
		t.Fatalf("ReadHead = %+v, want detached @ %v", head, other)
	}
}

func TestReadHeadUnset(t *testing.T) {
	s := newStore(t)
	if _, err := s.ReadHead(); !errors.Is(err, ErrHeadUnset) {
		t.Fatalf("ReadHead on empty repo: got %v, want ErrHeadUnset", err)
	}
}
