package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
	"github.com/oxen-vcs/oxen-core/internal/repo"
	"github.com/oxen-vcs/oxen-core/internal/server/lockstore"
	"github.com/oxen-vcs/oxen-core/internal/server/refwatch"
)

// branchPollInterval is how often Start's background loop diffs the
// repository's branch set against its last-seen snapshot to feed
// refwatch.Hub.Broadcast. internal/refs has no native change-notification
// hook (unlike gitvista's fsnotify-driven repo reload), so polling plays the
// same role the teacher's watcher.go played for a much smaller, append-only
// state space: N branch->commit pairs instead of an entire working tree.
const branchPollInterval = 2 * time.Second

// Server serves spec.md §6.1's wire protocol over a single *repo.Repository.
// Unlike the teacher's SaaS mode, Oxen's server is a thin demonstration
// remote: one repository, one address, no multi-tenant repo manager.
type Server struct {
	addr        string
	repo        *repo.Repository
	lockstore   *lockstore.Store
	hub         *refwatch.Hub
	rateLimiter *rateLimiter
	httpServer  *http.Server
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Server fronting r, persisting its lock/sync-state
// database at dbPath (see internal/server/lockstore).
func NewServer(r *repo.Repository, addr, dbPath string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ls, err := lockstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("server: open lockstore: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:        addr,
		repo:        r,
		lockstore:   ls,
		hub:         refwatch.NewHub(logger),
		rateLimiter: newRateLimiter(100, 200, time.Second),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Handler builds the full route table as an http.Handler, without binding a
// listener. Exported for tests that want to drive requests through the real
// mux and middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)

	const writeDL = 30 * time.Second
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return writeDeadline(writeDL, s.rateLimiter.middleware(h))
	}

	mux.HandleFunc("GET /branches", limited(s.handleListBranches))
	mux.HandleFunc("POST /branches", limited(s.handleCreateBranch))
	mux.HandleFunc("GET /branches/{name}", limited(s.handleGetBranch))
	mux.HandleFunc("PUT /branches/{name}", limited(s.handleUpdateBranch))
	mux.HandleFunc("DELETE /branches/{name}", limited(s.handleDeleteBranch))
	mux.HandleFunc("PUT /branches/{name}/merge", limited(s.handleMergeAttempt))
	mux.HandleFunc("POST /branches/{name}/lock", limited(s.handleLockBranch))
	mux.HandleFunc("POST /branches/{name}/unlock", limited(s.handleUnlockBranch))
	mux.HandleFunc("GET /branches/{name}/lock", limited(s.handleIsLocked))
	mux.HandleFunc("GET /branches/{name}/latest_synced_commit", limited(s.handleLatestSyncedCommit))

	mux.HandleFunc("GET /commits/{id}", limited(s.handleGetCommit))
	mux.HandleFunc("GET /commits/{id}/dir_hashes", limited(s.handleDirHashes))

	mux.HandleFunc("POST /tree/missing", limited(s.handleMissingNodes))
	mux.HandleFunc("PUT /tree/nodes", limited(s.handlePutNodes))
	mux.HandleFunc("GET /tree/between/{base}/{head}", limited(s.handleTreeBetween))
	mux.HandleFunc("GET /tree/from/{head}", limited(s.handleTreeFrom))

	mux.HandleFunc("POST /versions", limited(s.handleVersionsGet))
	mux.HandleFunc("PUT /versions", limited(s.handleVersionsPut))

	mux.HandleFunc("GET /chunk/{commit}/{path...}", limited(s.handleChunkGet))
	mux.HandleFunc("PUT /chunk/{commit}/{path...}", limited(s.handleChunkPut))

	mux.HandleFunc("GET /watch", s.rateLimiter.middleware(s.hub.HandleWebSocket))

	return requestLogger(s.logger, mux)
}

// Start binds s.addr and blocks until the server exits or encounters a fatal
// error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout must remain 0 because /watch is a long-lived
		// WebSocket; non-WebSocket handlers get a per-response deadline via
		// writeDeadline instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.hub.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollBranches()
	}()

	s.logger.Info("oxen server starting", "addr", "http://"+s.addr, "repo", s.repo.WorkDir())
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// pollBranches watches for branch advances/creations/deletions and feeds
// them to the watch hub, since internal/refs has no push-notification hook
// of its own.
func (s *Server) pollBranches() {
	ticker := time.NewTicker(branchPollInterval)
	defer ticker.Stop()

	last := s.snapshotBranches()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			current := s.snapshotBranches()
			for name, h := range current {
				if prev, ok := last[name]; !ok || prev != h {
					s.hub.Broadcast(newBranchUpdate(name, h))
				}
			}
			for name := range last {
				if _, ok := current[name]; !ok {
					s.hub.Broadcast(branchUpdateDeleted(name))
				}
			}
			last = current
		}
	}
}

func (s *Server) snapshotBranches() map[string]oxenhash.Hash {
	names, err := s.repo.ListBranches()
	if err != nil {
		s.logger.Error("poll: list branches failed", "err", err)
		return map[string]oxenhash.Hash{}
	}
	snap := make(map[string]oxenhash.Hash, len(names))
	for _, name := range names {
		if h, err := s.repo.ResolveBranch(name); err == nil {
			snap[name] = h
		}
	}
	return snap
}

// Shutdown gracefully stops the HTTP listener, the watch hub, and the poll
// loop, then closes the lockstore.
func (s *Server) Shutdown() {
	start := time.Now()
	s.logger.Info("server shutting down")

	if s.httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "err", err)
		}
	}

	s.cancel()
	s.rateLimiter.Close()
	s.wg.Wait()
	s.hub.Close()

	if err := s.lockstore.Close(); err != nil {
		s.logger.Error("lockstore close error", "err", err)
	}

	s.logger.Info("server shutdown complete", "elapsed", time.Since(start).Round(time.Millisecond))
}
