// Package progress provides terminal progress indicators: a braille spinner
// for indeterminate waits, and a Reporter the chunked transfer layer
// (internal/transport) feeds byte/file counts into during fetch/pull/push.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/oxen-vcs/oxen-core/internal/termcolor"
)

// Spinner displays an animated braille spinner on stderr while a long-running
// operation is in progress. It is only displayed when stderr is a TTY;
// in non-interactive environments (piped output, CI, E2E tests) it is silent.
type Spinner struct {
	msg  string
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{
		msg:  msg,
		done: make(chan struct{}),
	}
}

// Start begins the spinner animation in a background goroutine.
// It writes to stderr so it never pollutes stdout.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-s.done:
				// Clear the spinner line.
				fmt.Fprintf(os.Stderr, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(os.Stderr, "\r%s %s", frames[i%len(frames)], s.msg)
				i++
			}
		}
	}()
}

// Stop halts the spinner animation and clears the line.
func (s *Spinner) Stop() {
	select {
	case <-s.done:
		// Already stopped.
	default:
		close(s.done)
	}
	s.wg.Wait()
}

// Reporter receives progress events from a chunked transfer (spec.md §4.9).
// Implementations must be safe for concurrent use: the transport layer's
// worker pool reports from multiple goroutines at once.
type Reporter interface {
	// StartFile announces that a file of totalBytes is about to transfer.
	StartFile(path string, totalBytes int64)
	// AddBytes records n more bytes transferred for the most recently
	// started file.
	AddBytes(n int64)
	// FinishFile marks path complete.
	FinishFile(path string)
	// Done finalizes the reporter once every file has been transferred.
	Done()
}

// NoopReporter discards every event; used by the server and by non-TTY CLI
// invocations (piped output, CI, E2E tests).
type NoopReporter struct{}

func (NoopReporter) StartFile(string, int64) {}
func (NoopReporter) AddBytes(int64)          {}
func (NoopReporter) FinishFile(string)       {}
func (NoopReporter) Done()                   {}

// BarReporter renders a pterm progress bar on stderr, one bar per transfer
// session tracking cumulative bytes across every file. Only meaningful on a
// terminal; construct via NewBarReporter, which falls back to NoopReporter
// automatically when stderr isn't a TTY.
type BarReporter struct {
	mu  sync.Mutex
	bar *pterm.ProgressbarPrinter
}

// NewBarReporter returns a Reporter for a transfer moving totalBytes across
// fileCount files, or NoopReporter{} when stderr is not a terminal or
// totalBytes is not positive.
func NewBarReporter(fileCount int, totalBytes int64) Reporter {
	if !termcolor.IsTerminal(os.Stderr.Fd()) || totalBytes <= 0 {
		return NoopReporter{}
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(int(totalBytes)).
		WithTitle(fmt.Sprintf("transferring %d files", fileCount)).
		WithShowCount(false).
		Start()
	if err != nil {
		return NoopReporter{}
	}
	return &BarReporter{bar: bar}
}

func (r *BarReporter) StartFile(path string, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar.UpdateTitle(path)
}

func (r *BarReporter) AddBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar.Add(int(n))
}

func (r *BarReporter) FinishFile(string) {}

func (r *BarReporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar.IsActive {
		_, _ = r.bar.Stop()
	}
}
