// Package objstore implements the content-addressed store that underlies
// every Merkle node and file blob: put is idempotent and crash-safe via a
// write-to-temp-then-rename discipline, and get detects corruption by
// re-hashing on read.
package objstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Errors surfaced to callers; see spec's error taxonomy (NotFound, Corruption).
var (
	ErrNotFound  = errors.New("objstore: object not found")
	ErrCorrupt   = errors.New("objstore: stored object hash mismatch")
	ErrMismatch  = errors.New("objstore: put with differing bytes for existing hash")
	shardPrefLen = 2
)

// Store is a file-backed content-addressed object store, sharded by hash
// prefix to avoid single-directory explosion.
type Store struct {
	baseDir string
	log     *slog.Logger
}

// Open creates (if needed) and returns a Store rooted at baseDir, which is
// typically "<repo>/.oxen/object_store".
func Open(baseDir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create base dir: %w", err)
	}
	return &Store{baseDir: baseDir, log: log.With("component", "objstore")}, nil
}

func (s *Store) path(h oxenhash.Hash) string {
	hex := h.String()
	return filepath.Join(s.baseDir, hex[:shardPrefLen], hex[shardPrefLen:])
}

// Has reports whether h is already stored.
func (s *Store) Has(h oxenhash.Hash) bool {
	_, err := os.Stat(s.path(h))
	return err == nil
}

// Put stores data under its content hash, which must equal Sum(data); this
// is enforced by construction since callers always derive the key the same
// way they derive the bytes. Put is idempotent: writing already-present
// bytes for an existing hash is a no-op success. Writing differing bytes for
// an existing hash is the one case genuinely unreachable outside of a
// manufactured hash collision or disk corruption, and is reported as
// ErrMismatch rather than silently accepted.
func (s *Store) Put(h oxenhash.Hash, data []byte) error {
	dest := s.path(h)
	if existing, err := os.ReadFile(dest); err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrMismatch, h)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("objstore: stat existing object %s: %w", h, err)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objstore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("objstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("objstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("objstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("objstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return fmt.Errorf("objstore: rename into place: %w", err)
	}
	return nil
}

// Get reads back the bytes for h, verifying stored_hash == hash(bytes) on
// every read (P1 of the invariants).
func (s *Store) Get(h oxenhash.Hash) ([]byte, error) {
	data, err := os.ReadFile(s.path(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return nil, fmt.Errorf("objstore: read %s: %w", h, err)
	}
	if got := oxenhash.Sum(data); got != h {
		s.log.Error("content hash mismatch on read", "want", h, "got", got)
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, h)
	}
	return data, nil
}

// OpenRead opens a streaming reader for large blobs, avoiding a full
// in-memory load. Callers that need corruption detection for streamed data
// hash while reading, e.g. in transport when reassembling file chunks.
func (s *Store) OpenRead(h oxenhash.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.path(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return nil, fmt.Errorf("objstore: open %s: %w", h, err)
	}
	return f, nil
}

// PutStream consumes r fully, hashing as it writes a temp file, and renames
// into place only once the write is complete; it returns the computed hash.
// Used by the chunked transfer layer to avoid buffering whole large blobs.
func (s *Store) PutStream(r io.Reader) (oxenhash.Hash, error) {
	tmp, err := os.CreateTemp(s.baseDir, ".stream-*")
	if err != nil {
		return oxenhash.Hash{}, fmt.Errorf("objstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	hasher := newStreamHasher()
	mw := io.MultiWriter(tmp, hasher)
	if _, err := io.Copy(mw, r); err != nil {
		tmp.Close()
		cleanup()
		return oxenhash.Hash{}, fmt.Errorf("objstore: copy stream: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return oxenhash.Hash{}, fmt.Errorf("objstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oxenhash.Hash{}, fmt.Errorf("objstore: close temp: %w", err)
	}

	h := hasher.Sum()
	dest := s.path(h)
	if s.Has(h) {
		cleanup()
		return h, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		cleanup()
		return oxenhash.Hash{}, fmt.Errorf("objstore: mkdir: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return oxenhash.Hash{}, fmt.Errorf("objstore: rename into place: %w", err)
	}
	return h, nil
}

// Remove deletes a stored object; used only by chunk-abort cleanup paths,
// never by normal operation (objects are otherwise immutable/GC'd externally).
func (s *Store) Remove(h oxenhash.Hash) error {
	if err := os.Remove(s.path(h)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objstore: remove %s: %w", h, err)
	}
	return nil
}
