package merge

import (
	"errors"
	"testing"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/objstore"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

var errCommitNotFound = errors.New("merge_test: commit not found")

// fakeCommitStore stores Commit nodes by hash in memory and reads File/Dir
// trees from a real objstore.Store, enough to exercise LCA/classification
// without dragging in the repo package (avoiding an import cycle, since
// repo will depend on merge).
type fakeCommitStore struct {
	commits map[oxenhash.Hash]*merkle.Commit
}

func newFakeCommitStore() *fakeCommitStore {
	return &fakeCommitStore{commits: map[oxenhash.Hash]*merkle.Commit{}}
}

func (f *fakeCommitStore) GetCommit(h oxenhash.Hash) (*merkle.Commit, error) {
	c, ok := f.commits[h]
	if !ok {
		return nil, errCommitNotFound
	}
	return c, nil
}

func (f *fakeCommitStore) add(parents []oxenhash.Hash, root oxenhash.Hash, ts int64) oxenhash.Hash {
	c := &merkle.Commit{Parents: parents, RootHash: root, Timestamp: time.Unix(ts, 0)}
	h := merkle.Hash(c)
	f.commits[h] = c
	return h
}

func TestFindLCALinearHistory(t *testing.T) {
	f := newFakeCommitStore()
	root := oxenhash.Sum([]byte("root"))
	c1 := f.add(nil, root, 1)
	c2 := f.add([]oxenhash.Hash{c1}, root, 2)
	c3 := f.add([]oxenhash.Hash{c2}, root, 3)

	lca, err := FindLCA(f, c3, c1)
	if err != nil {
		t.Fatalf("FindLCA: %v", err)
	}
	if lca != c1 {
		t.Fatalf("FindLCA(c3, c1) = %v, want c1 %v", lca, c1)
	}
}

func TestFindLCADivergentBranches(t *testing.T) {
	f := newFakeCommitStore()
	root := oxenhash.Sum([]byte("root"))
	base := f.add(nil, root, 1)
	left := f.add([]oxenhash.Hash{base}, root, 2)
	right := f.add([]oxenhash.Hash{base}, root, 3)

	lca, err := FindLCA(f, left, right)
	if err != nil {
		t.Fatalf("FindLCA: %v", err)
	}
	if lca != base {
		t.Fatalf("FindLCA(left, right) = %v, want base %v", lca, base)
	}
}

func TestIsAncestor(t *testing.T) {
	f := newFakeCommitStore()
	root := oxenhash.Sum([]byte("root"))
	c1 := f.add(nil, root, 1)
	c2 := f.add([]oxenhash.Hash{c1}, root, 2)

	ok, err := IsAncestor(f, c1, c2)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !ok {
		t.Fatal("expected c1 to be an ancestor of c2")
	}
	ok, err = IsAncestor(f, c2, c1)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if ok {
		t.Fatal("c2 should not be an ancestor of c1")
	}
}

func newTreeStore(t *testing.T) *objstore.Store {
	t.Helper()
	s, err := objstore.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("objstore.Open: %v", err)
	}
	return s
}

func build(t *testing.T, s *objstore.Store, files map[string]string) oxenhash.Hash {
	t.Helper()
	var wfs []merkle.WorkingFile
	for p, content := range files {
		wfs = append(wfs, merkle.WorkingFile{Path: p, Data: []byte(content), ModTime: time.Unix(1000, 0)})
	}
	root, err := merkle.BuildTree(s, wfs, merkle.DefaultVNodeSize, nil)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	return root
}

// TestS3ThreeWayMergeNoConflict mirrors spec.md scenario S3.
func TestS3ThreeWayMergeNoConflict(t *testing.T) {
	s := newTreeStore(t)
	base := build(t, s, map[string]string{"a.txt": "hello\n", "dir/b.txt": "world\n"})
	ours := build(t, s, map[string]string{"a.txt": "hello\n", "dir/b.txt": "world\n", "c.txt": "c\n"})
	theirs := build(t, s, map[string]string{"a.txt": "hello\n", "dir/b.txt": "world\n", "d.txt": "d\n"})

	verdicts, err := ClassifyPaths(s, base, ours, theirs)
	if err != nil {
		t.Fatalf("ClassifyPaths: %v", err)
	}
	if len(ConflictPaths(verdicts)) != 0 {
		t.Fatalf("expected no conflicts, got %v", ConflictPaths(verdicts))
	}
}

// TestS4ThreeWayMergeConflict mirrors spec.md scenario S4.
func TestS4ThreeWayMergeConflict(t *testing.T) {
	s := newTreeStore(t)
	base := build(t, s, map[string]string{"a.txt": "hello\n"})
	ours := build(t, s, map[string]string{"a.txt": "A\n"})
	theirs := build(t, s, map[string]string{"a.txt": "B\n"})

	verdicts, err := ClassifyPaths(s, base, ours, theirs)
	if err != nil {
		t.Fatalf("ClassifyPaths: %v", err)
	}
	conflicts := ConflictPaths(verdicts)
	if len(conflicts) != 1 || conflicts[0] != "a.txt" {
		t.Fatalf("conflicts = %v, want [a.txt]", conflicts)
	}
}

// TestP9MergeSymmetry verifies the conflict set for merge(A into B) equals
// the set for merge(B into A).
func TestP9MergeSymmetry(t *testing.T) {
	s := newTreeStore(t)
	base := build(t, s, map[string]string{"a.txt": "base"})
	a := build(t, s, map[string]string{"a.txt": "A-version"})
	b := build(t, s, map[string]string{"a.txt": "B-version"})

	v1, err := ClassifyPaths(s, base, a, b)
	if err != nil {
		t.Fatalf("ClassifyPaths a,b: %v", err)
	}
	v2, err := ClassifyPaths(s, base, b, a)
	if err != nil {
		t.Fatalf("ClassifyPaths b,a: %v", err)
	}
	c1 := ConflictPaths(v1)
	c2 := ConflictPaths(v2)
	if len(c1) != len(c2) {
		t.Fatalf("conflict sets differ in size: %v vs %v", c1, c2)
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("conflict sets differ: %v vs %v", c1, c2)
		}
	}
}

func TestConvergentChangeNotAConflict(t *testing.T) {
	s := newTreeStore(t)
	base := build(t, s, map[string]string{"a.txt": "base"})
	ours := build(t, s, map[string]string{"a.txt": "same-change"})
	theirs := build(t, s, map[string]string{"a.txt": "same-change"})

	verdicts, err := ClassifyPaths(s, base, ours, theirs)
	if err != nil {
		t.Fatalf("ClassifyPaths: %v", err)
	}
	for _, v := range verdicts {
		if v.Path == "a.txt" && v.Verdict != VerdictConvergent {
			t.Fatalf("a.txt verdict = %v, want convergent", v.Verdict)
		}
	}
}
