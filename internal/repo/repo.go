// Package repo orchestrates a single Oxen repository: object store, refs,
// staging, the commit engine, checkout, status, and shallow/subtree/
// depth-limit bookkeeping (spec.md §3-§4, grounded on gitcore.Repository's
// overall shape).
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/config"
	"github.com/oxen-vcs/oxen-core/internal/merkle"
	"github.com/oxen-vcs/oxen-core/internal/objstore"
	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/refs"
	"github.com/oxen-vcs/oxen-core/internal/staging"
)

// Layout constants for the hidden repo directory (spec.md §6.2).
const (
	DotDir        = ".oxen"
	ObjectStoreDir = "object_store"
	RefsDir       = "refs"
	StagingFile   = "staging"
	MergeHeadFile = "merge_head"
	OrigHeadFile  = "orig_head"
	ConfigFile    = "config"
)

var (
	ErrAlreadyInitialized = errors.New("repo: already an oxen repository")
	ErrNotARepository     = errors.New("repo: not an oxen repository")
	ErrEmptyMessage       = errors.New("repo: commit message must not be empty")
	ErrNoHead             = errors.New("repo: HEAD is unset")
	ErrWouldLoseChanges   = errors.New("repo: checkout would lose local changes")
	ErrOutOfScope         = errors.New("repo: operation needs data excluded by a shallow/subtree/depth limit")
	ErrNotMerging         = errors.New("repo: no merge is in progress")
	ErrMergeInProgress    = errors.New("repo: a merge is already in progress")
	ErrIsCurrentBranch    = errors.New("repo: cannot delete the branch HEAD points to")
)

// Repository is the top-level handle a CLI or server opens once per working
// tree; all operations are methods on it, guarded by mu the way
// gitcore.Repository guards its loaded-state fields.
type Repository struct {
	workDir string
	dotDir  string

	mu      sync.RWMutex
	Objects *objstore.Store
	Refs    *refs.Store
	Staging *staging.Store
	Config  *config.Config

	log *slog.Logger
}

// Init creates a new, empty repository at workDir (spec.md §8.3 "Clone of
// an empty remote: succeeds; HEAD is unset").
func Init(workDir string, log *slog.Logger) (*Repository, error) {
	if log == nil {
		log = slog.Default()
	}
	dotDir := filepath.Join(workDir, DotDir)
	if _, err := os.Stat(dotDir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, workDir)
	}
	if err := os.MkdirAll(dotDir, 0o755); err != nil {
		return nil, fmt.Errorf("repo: mkdir %s: %w", dotDir, err)
	}

	objects, err := objstore.Open(filepath.Join(dotDir, ObjectStoreDir), log)
	if err != nil {
		return nil, err
	}
	refStore, err := refs.Open(filepath.Join(dotDir, RefsDir))
	if err != nil {
		return nil, err
	}
	stagingStore, err := staging.Open(filepath.Join(dotDir, StagingFile))
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if err := cfg.Save(filepath.Join(dotDir, ConfigFile)); err != nil {
		return nil, err
	}

	return &Repository{
		workDir: workDir,
		dotDir:  dotDir,
		Objects: objects,
		Refs:    refStore,
		Staging: stagingStore,
		Config:  cfg,
		log:     log.With("component", "repo", "path", workDir),
	}, nil
}

// Open loads an existing repository rooted at or above workDir, walking
// upward the way gitcore.findGitDirectory does for ".git".
func Open(workDir string, log *slog.Logger) (*Repository, error) {
	if log == nil {
		log = slog.Default()
	}
	root, dotDir, err := findRepoRoot(workDir)
	if err != nil {
		return nil, err
	}

	objects, err := objstore.Open(filepath.Join(dotDir, ObjectStoreDir), log)
	if err != nil {
		return nil, err
	}
	refStore, err := refs.Open(filepath.Join(dotDir, RefsDir))
	if err != nil {
		return nil, err
	}
	stagingStore, err := staging.Open(filepath.Join(dotDir, StagingFile))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(dotDir, ConfigFile))
	if err != nil {
		return nil, err
	}

	return &Repository{
		workDir: root,
		dotDir:  dotDir,
		Objects: objects,
		Refs:    refStore,
		Staging: stagingStore,
		Config:  cfg,
		log:     log.With("component", "repo", "path", root),
	}, nil
}

func findRepoRoot(start string) (root, dotDir string, err error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", "", fmt.Errorf("repo: resolve absolute path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, DotDir)
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			return dir, candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", fmt.Errorf("%w: %s", ErrNotARepository, start)
		}
		dir = parent
	}
}

// WorkDir returns the repository's working-tree root.
func (r *Repository) WorkDir() string { return r.workDir }

// DotDir returns the hidden ".oxen" directory path.
func (r *Repository) DotDir() string { return r.dotDir }

func (r *Repository) mergeHeadPath() string { return filepath.Join(r.dotDir, MergeHeadFile) }
func (r *Repository) origHeadPath() string  { return filepath.Join(r.dotDir, OrigHeadFile) }

// GetCommit loads and decodes a Commit node by hash; implements
// merge.CommitReader.
func (r *Repository) GetCommit(h oxenhash.Hash) (*merkle.Commit, error) {
	data, err := r.Objects.Get(h)
	if err != nil {
		return nil, fmt.Errorf("repo: load commit %s: %w", h, err)
	}
	node, err := merkle.DecodeNode(data)
	if err != nil {
		return nil, err
	}
	c, ok := node.(*merkle.Commit)
	if !ok {
		return nil, fmt.Errorf("repo: %s is a %s node, not a commit", h, node.Kind())
	}
	return c, nil
}

// HeadCommit resolves HEAD to its current commit hash, or (zero, false, nil)
// for a fresh empty repository.
func (r *Repository) HeadCommit() (oxenhash.Hash, bool, error) {
	head, err := r.Refs.ReadHead()
	if err != nil {
		if errors.Is(err, refs.ErrHeadUnset) {
			return oxenhash.Hash{}, false, nil
		}
		return oxenhash.Hash{}, false, err
	}
	if head.Commit.IsZero() {
		return oxenhash.Hash{}, false, nil
	}
	return head.Commit, true, nil
}

// CurrentBranch returns the attached branch name, or ("", false) if HEAD is
// detached or unset.
func (r *Repository) CurrentBranch() (string, bool, error) {
	head, err := r.Refs.ReadHead()
	if err != nil {
		if errors.Is(err, refs.ErrHeadUnset) {
			return "", false, nil
		}
		return "", false, err
	}
	return head.Branch, head.Attached, nil
}

// nowFn is overridable in tests that need deterministic timestamps; real
// code always uses time.Now.
var nowFn = time.Now
