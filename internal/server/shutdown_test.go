package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oxen-vcs/oxen-core/internal/repo"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(noopWriter{}, nil))
}

// newTestServer constructs a Server backed by a freshly initialized
// repository and lockstore in a temp directory, without calling Start().
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	r, err := repo.Init(dir, silentLogger())
	if err != nil {
		t.Fatalf("repo.Init: %v", err)
	}
	s, err := NewServer(r, "127.0.0.1:0", filepath.Join(dir, "locks.db"), silentLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// TestShutdown_BeforeStart verifies that calling Shutdown() when httpServer is
// nil does not panic and returns promptly.
func TestShutdown_BeforeStart(t *testing.T) {
	s := newTestServer(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Shutdown()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown() blocked indefinitely when called before Start()")
	}
}

// TestShutdown_CancelsContext verifies that after Shutdown() the server's
// internal context is canceled.
func TestShutdown_CancelsContext(t *testing.T) {
	s := newTestServer(t)

	select {
	case <-s.ctx.Done():
		t.Fatal("context was already canceled before Shutdown()")
	default:
	}

	s.Shutdown()

	select {
	case <-s.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not canceled after Shutdown()")
	}
}

func TestShutdown_ClosesRateLimiterOnce(t *testing.T) {
	s := newTestServer(t)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Shutdown() panicked (double-close of rateLimiter): %v", r)
		}
	}()

	s.Shutdown()
}

// TestNewServer_InitialisesFields verifies that NewServer sets up all fields
// that Shutdown() depends on.
func TestNewServer_InitialisesFields(t *testing.T) {
	s := newTestServer(t)

	if s.ctx == nil {
		t.Error("ctx is nil after NewServer()")
	}
	if s.cancel == nil {
		t.Error("cancel is nil after NewServer()")
	}
	if s.rateLimiter == nil {
		t.Error("rateLimiter is nil after NewServer()")
	}
	if s.hub == nil {
		t.Error("hub is nil after NewServer()")
	}
	if s.lockstore == nil {
		t.Error("lockstore is nil after NewServer()")
	}
	if s.httpServer != nil {
		t.Error("httpServer should be nil before Start() is called")
	}

	s.Shutdown()
}

func TestHTTPServer_TimeoutConfiguration(t *testing.T) {
	addr := freePort(t)
	s := newTestServer(t)
	s.addr = addr

	startErr := make(chan error, 1)
	go func() {
		startErr <- s.Start()
	}()

	url := fmt.Sprintf("http://%s/health", addr)
	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := httpGetNoKeepalive(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	if lastErr != nil && time.Now().After(deadline) {
		s.Shutdown()
		t.Fatalf("server never responded on %s: %v", url, lastErr)
	}

	s.Shutdown()

	select {
	case err := <-startErr:
		if err != nil {
			t.Errorf("Start() returned unexpected error after Shutdown(): %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Start() did not return within 5 s of Shutdown() being called")
	}

	if s.httpServer.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", s.httpServer.ReadTimeout)
	}
	if s.httpServer.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, want 0 (long-lived /watch connections)", s.httpServer.WriteTimeout)
	}
	if s.httpServer.IdleTimeout != 120*time.Second {
		t.Errorf("IdleTimeout = %v, want 120s", s.httpServer.IdleTimeout)
	}
}

func httpGetNoKeepalive(url string) (*http.Response, error) {
	client := &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   2 * time.Second,
	}
	return client.Get(url) //nolint:noctx
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer ln.Close()
	return fmt.Sprintf("127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)
}

func TestShutdown_Concurrent(t *testing.T) {
	const goroutines = 4
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			s := newTestServer(t)
			s.Shutdown()
		}()
	}
	wg.Wait()
}
