// Package staging implements the small embedded KV store mapping path to
// pending-change status for the next commit (spec.md §9 "Staging store").
package staging

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// Status is one of the four staging states a path can be in.
type Status byte

const (
	Unmodified Status = iota
	Added
	Modified
	Removed
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unmodified"
	}
}

func parseStatus(s string) (Status, error) {
	switch s {
	case "added":
		return Added, nil
	case "modified":
		return Modified, nil
	case "removed":
		return Removed, nil
	case "unmodified":
		return Unmodified, nil
	default:
		return 0, fmt.Errorf("staging: unknown status %q", s)
	}
}

// Entry is one staged path's recorded state.
type Entry struct {
	Path    string
	Status  Status
	Hash    oxenhash.Hash
	Size    int64
	ModTime time.Time
}

// Store is the staging area: a line-oriented record file under
// ".oxen/staging", read fully into memory (staging sets are small relative
// to the whole repo) and rewritten atomically on every mutation, following
// the same write-to-temp-then-rename discipline used everywhere else in the
// repo. A missing staging file means "empty staging area", not an error —
// the same convention gitcore.ReadIndex uses for a missing git index.
type Store struct {
	path    string
	entries map[string]Entry
}

// Open loads (or initializes empty) the staging store at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]Entry{}}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("staging: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		s.entries[e.Path] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("staging: scan %s: %w", path, err)
	}
	return s, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.SplitN(line, "\t", 5)
	if len(fields) != 5 {
		return Entry{}, fmt.Errorf("staging: malformed record %q", line)
	}
	status, err := parseStatus(fields[1])
	if err != nil {
		return Entry{}, err
	}
	var hash oxenhash.Hash
	if fields[2] != "-" {
		hash, err = oxenhash.ParseHash(fields[2])
		if err != nil {
			return Entry{}, fmt.Errorf("staging: bad hash in %q: %w", line, err)
		}
	}
	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("staging: bad size in %q: %w", line, err)
	}
	nanos, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("staging: bad mtime in %q: %w", line, err)
	}
	return Entry{
		Path:    fields[0],
		Status:  status,
		Hash:    hash,
		Size:    size,
		ModTime: time.Unix(0, nanos).UTC(),
	}, nil
}

func (e Entry) format() string {
	hashStr := "-"
	if !e.Hash.IsZero() {
		hashStr = e.Hash.String()
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%d", e.Path, e.Status, hashStr, e.Size, e.ModTime.UTC().UnixNano())
}

// Stage records a pending change for path.
func (s *Store) Stage(e Entry) error {
	s.entries[e.Path] = e
	return s.flush()
}

// Unstage removes a path from the staging area without writing a Removed
// record for it (used by `oxen reset`-style operations, not by commit).
func (s *Store) Unstage(path string) error {
	delete(s.entries, path)
	return s.flush()
}

// Get returns the staged entry for path, if any.
func (s *Store) Get(path string) (Entry, bool) {
	e, ok := s.entries[path]
	return e, ok
}

// All returns every staged entry, sorted by path.
func (s *Store) All() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// Clear empties the staging area; called by the commit engine once a commit
// succeeds (spec.md §4.4 step 6).
func (s *Store) Clear() error {
	s.entries = map[string]Entry{}
	return s.flush()
}

func (s *Store) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("staging: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".staging-tmp-*")
	if err != nil {
		return fmt.Errorf("staging: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, e := range s.All() {
		if _, err := w.WriteString(e.format() + "\n"); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("staging: write temp: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("staging: flush temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("staging: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("staging: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("staging: rename into place: %w", err)
	}
	return nil
}
