// Package lockstore is the server's small SQLite-backed table recording,
// per branch, a lock holder and the last commit a push's CAS actually
// accepted (spec.md §6.1's lock/unlock/is-locked/latest-synced-commit
// endpoints; the concrete resolution of the Open Question in spec.md §9 on
// where server-side push-serialization state lives).
//
// The locked commit itself is never exposed over the wire — only whether a
// lock is held, and by whom — while latest_synced_commit only advances once
// a push's compare-and-swap against internal/refs actually succeeds.
package lockstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrAlreadyLocked is returned by Lock when another holder already holds
// the branch's lock.
var ErrAlreadyLocked = errors.New("lockstore: branch is already locked")

// Store is a goose-migrated SQLite database tracking branch locks and
// sync state. Safe for concurrent use; SQLite itself serializes writers.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lockstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no native locking; serialize writers in-process

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lockstore: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lockstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lock acquires branch's lock for holder. Returns ErrAlreadyLocked if a
// different holder currently holds it; re-locking by the same holder is a
// no-op success (idempotent retry after a dropped connection).
func (s *Store) Lock(branch, holder string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("lockstore: begin: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT holder FROM branch_locks WHERE branch = ?`, branch).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`INSERT INTO branch_locks (branch, holder, locked_at) VALUES (?, ?, strftime('%s','now'))`, branch, holder); err != nil {
			return fmt.Errorf("lockstore: insert lock: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lockstore: query lock: %w", err)
	case existing != holder:
		return ErrAlreadyLocked
	}
	return tx.Commit()
}

// Unlock releases branch's lock unconditionally.
func (s *Store) Unlock(branch string) error {
	_, err := s.db.Exec(`DELETE FROM branch_locks WHERE branch = ?`, branch)
	if err != nil {
		return fmt.Errorf("lockstore: unlock %s: %w", branch, err)
	}
	return nil
}

// IsLocked reports whether branch is currently locked, and by whom.
func (s *Store) IsLocked(branch string) (locked bool, holder string, err error) {
	err = s.db.QueryRow(`SELECT holder FROM branch_locks WHERE branch = ?`, branch).Scan(&holder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, "", nil
	case err != nil:
		return false, "", fmt.Errorf("lockstore: query lock %s: %w", branch, err)
	default:
		return true, holder, nil
	}
}

// SetLatestSynced records commitID as the last commit a push's CAS accepted
// onto branch.
func (s *Store) SetLatestSynced(branch, commitID string) error {
	_, err := s.db.Exec(`
		INSERT INTO branch_sync_state (branch, latest_synced_commit, synced_at)
		VALUES (?, ?, strftime('%s','now'))
		ON CONFLICT(branch) DO UPDATE SET latest_synced_commit = excluded.latest_synced_commit, synced_at = excluded.synced_at
	`, branch, commitID)
	if err != nil {
		return fmt.Errorf("lockstore: set latest synced %s: %w", branch, err)
	}
	return nil
}

// LatestSynced returns the last commit CAS-accepted onto branch, and
// whether any push has ever recorded one.
func (s *Store) LatestSynced(branch string) (commitID string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT latest_synced_commit FROM branch_sync_state WHERE branch = ?`, branch).Scan(&commitID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("lockstore: query latest synced %s: %w", branch, err)
	default:
		return commitID, true, nil
	}
}
