package lockstore

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "locks.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLockUnlock(t *testing.T) {
	s := newTestStore(t)

	if locked, _, err := s.IsLocked("main"); err != nil || locked {
		t.Fatalf("expected unlocked, got locked=%v err=%v", locked, err)
	}

	if err := s.Lock("main", "client-a"); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	locked, holder, err := s.IsLocked("main")
	if err != nil || !locked || holder != "client-a" {
		t.Fatalf("expected locked by client-a, got locked=%v holder=%q err=%v", locked, holder, err)
	}

	if err := s.Lock("main", "client-b"); err != ErrAlreadyLocked {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	// Re-locking by the same holder is idempotent.
	if err := s.Lock("main", "client-a"); err != nil {
		t.Fatalf("re-lock by same holder: %v", err)
	}

	if err := s.Unlock("main"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if locked, _, _ := s.IsLocked("main"); locked {
		t.Fatal("expected unlocked after Unlock")
	}

	if err := s.Lock("main", "client-b"); err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
}

func TestLatestSynced(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.LatestSynced("main"); err != nil || ok {
		t.Fatalf("expected no record, got ok=%v err=%v", ok, err)
	}

	if err := s.SetLatestSynced("main", "aaaa"); err != nil {
		t.Fatalf("SetLatestSynced: %v", err)
	}
	commit, ok, err := s.LatestSynced("main")
	if err != nil || !ok || commit != "aaaa" {
		t.Fatalf("expected aaaa, got %q ok=%v err=%v", commit, ok, err)
	}

	if err := s.SetLatestSynced("main", "bbbb"); err != nil {
		t.Fatalf("SetLatestSynced update: %v", err)
	}
	commit, ok, err = s.LatestSynced("main")
	if err != nil || !ok || commit != "bbbb" {
		t.Fatalf("expected bbbb, got %q ok=%v err=%v", commit, ok, err)
	}
}
