package objstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello\n")
	h := oxenhash.Sum(data)

	if err := s.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Has(h) {
		t.Fatal("Has returned false after Put")
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
}

func TestPutIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("idempotent")
	h := oxenhash.Sum(data)
	if err := s.Put(h, data); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := s.Put(h, data); err != nil {
		t.Fatalf("second Put (same bytes) should succeed: %v", err)
	}
}

func TestPutMismatchIsCorruption(t *testing.T) {
	s := newTestStore(t)
	data := []byte("original")
	h := oxenhash.Sum(data)
	if err := s.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(h, []byte("different bytes, same claimed hash")); err == nil {
		t.Fatal("expected error writing differing bytes under existing hash")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(oxenhash.Sum([]byte("never written"))); err == nil {
		t.Fatal("expected ErrNotFound")
	}
}

func TestGetDetectsCorruption(t *testing.T) {
	s := newTestStore(t)
	data := []byte("will be corrupted")
	h := oxenhash.Sum(data)
	if err := s.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Simulate on-disk bit rot by overwriting the stored file directly.
	hex := h.String()
	p := filepath.Join(s.baseDir, hex[:2], hex[2:])
	if err := os.WriteFile(p, []byte("corrupted bytes"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}
	if _, err := s.Get(h); err == nil {
		t.Fatal("expected corruption error after tampering with stored bytes")
	}
}

func TestPutStreamMatchesPut(t *testing.T) {
	s := newTestStore(t)
	data := []byte("streamed content")
	h, err := s.PutStream(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("PutStream: %v", err)
	}
	if want := oxenhash.Sum(data); h != want {
		t.Fatalf("PutStream hash = %v, want %v", h, want)
	}
	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get after PutStream: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get after PutStream = %q, want %q", got, data)
	}
}

func TestShardedLayout(t *testing.T) {
	s := newTestStore(t)
	data := []byte("shard me")
	h := oxenhash.Sum(data)
	if err := s.Put(h, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	hex := h.String()
	if _, err := os.Stat(filepath.Join(s.baseDir, hex[:2])); err != nil {
		t.Fatalf("expected shard directory %s to exist: %v", hex[:2], err)
	}
}
