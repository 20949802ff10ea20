package staging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "staging"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.All()) != 0 {
		t.Fatalf("expected empty staging area, got %v", s.All())
	}
}

func TestStageAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	e := Entry{Path: "a.txt", Status: Added, Hash: oxenhash.Sum([]byte("x")), Size: 1, ModTime: time.Unix(1000, 0)}
	if err := s.Stage(e); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reloaded.Get("a.txt")
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if got.Status != Added || got.Hash != e.Hash || got.Size != 1 {
		t.Fatalf("reloaded entry = %+v, want %+v", got, e)
	}
}

func TestClearEmptiesStagingArea(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Stage(Entry{Path: "a.txt", Status: Added}); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reloaded.All()) != 0 {
		t.Fatalf("expected empty after Clear, got %v", reloaded.All())
	}
}

func TestUnstage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Stage(Entry{Path: "a.txt", Status: Added}); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := s.Unstage("a.txt"); err != nil {
		t.Fatalf("Unstage: %v", err)
	}
	if _, ok := s.Get("a.txt"); ok {
		t.Fatal("entry still present after Unstage")
	}
}

func TestAllSortedByPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, p := range []string{"z.txt", "a.txt", "m.txt"} {
		if err := s.Stage(Entry{Path: p, Status: Added}); err != nil {
			t.Fatalf("Stage %s: %v", p, err)
		}
	}
	entries := s.All()
	if len(entries) != 3 || entries[0].Path != "a.txt" || entries[2].Path != "z.txt" {
		t.Fatalf("All() = %v, want sorted a,m,z", entries)
	}
}
