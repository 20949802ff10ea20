// Package transport implements spec.md §4.9's chunked parallel transfer: a
// worker pool moving byte-range chunks of a single large file concurrently,
// each independently retried with a quadratic backoff, with the first chunk
// fetched synchronously so auth/not-found failures short-circuit before any
// workers spawn. Small files (below the chunk threshold) go through the same
// entry points as a single whole-file transfer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/oxen-vcs/oxen-core/internal/progress"
)

// DefaultMaxAttempts bounds the number of retries per chunk before the
// whole file transfer is aborted (spec.md §4.9: "retryable ... up to a
// fixed maximum").
const DefaultMaxAttempts = 5

// DefaultMaxBackoff caps an individual retry's wait, even once attempt²
// would exceed it.
const DefaultMaxBackoff = 30 * time.Second

// DefaultMaxWorkers bounds how many chunk requests run concurrently for one
// file, independent of how many chunks the file has.
const DefaultMaxWorkers = 8

// TerminalError marks an error that must never be retried — spec.md §7's
// Unauthorized/Forbidden/NotFound kinds. Transports that implement
// RangeFetcher/RangePusher must wrap such failures in TerminalError so the
// retry loop gives up immediately instead of burning through attempts.
type TerminalError struct{ Err error }

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// IsTerminal reports whether err (or something it wraps) is a TerminalError.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}

// RangeFetcher downloads exactly size bytes starting at start. Implemented
// by internal/client against the `GET chunk/{commit}/{path}` wire endpoint.
type RangeFetcher interface {
	FetchRange(ctx context.Context, start, size int64) ([]byte, error)
}

// RangePusher uploads exactly len(data) bytes starting at start. Implemented
// by internal/client against the `PUT chunk/{commit}/{path}` wire endpoint.
type RangePusher interface {
	PutRange(ctx context.Context, start int64, data []byte) error
}

type chunkRange struct {
	start, size int64
}

func splitRanges(totalSize, chunkSize int64) []chunkRange {
	if chunkSize <= 0 {
		chunkSize = totalSize
	}
	if totalSize <= 0 {
		return nil
	}
	var ranges []chunkRange
	for off := int64(0); off < totalSize; off += chunkSize {
		size := chunkSize
		if off+size > totalSize {
			size = totalSize - off
		}
		ranges = append(ranges, chunkRange{start: off, size: size})
	}
	return ranges
}

// quadraticBackoff implements spec.md §4.9's "attempt² seconds up to a fixed
// maximum", grounded on go-retry's Backoff function type.
func quadraticBackoff(maxAttempts uint64, cap time.Duration) retry.Backoff {
	var attempt uint64
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt > maxAttempts {
			return 0, false
		}
		d := time.Duration(attempt*attempt) * time.Second
		if d > cap {
			d = cap
		}
		return d, true
	})
}

// Options tunes a transfer; the zero value uses every Default* constant.
type Options struct {
	ChunkSize   int64
	MaxWorkers  int
	MaxAttempts uint64
	MaxBackoff  time.Duration
	Reporter    progress.Reporter
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 4 << 20
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.Reporter == nil {
		o.Reporter = progress.NoopReporter{}
	}
	return o
}

// Download fetches totalSize bytes of path via fetch, writing each chunk to
// its offset in dst, and reports progress to opts.Reporter. The first chunk
// is fetched synchronously; only once it succeeds does Download spawn a
// worker pool (sized min(MaxWorkers, remaining chunk count)) for the rest.
// Any chunk that exhausts its retries aborts the whole transfer; callers are
// responsible for discarding/cleaning up dst on error (spec.md §4.9: "the
// entire file is aborted and its temp chunks are removed").
func Download(ctx context.Context, path string, dst io.WriterAt, totalSize int64, fetch RangeFetcher, opts Options) error {
	opts = opts.withDefaults()
	ranges := splitRanges(totalSize, opts.ChunkSize)
	if len(ranges) == 0 {
		return nil
	}
	opts.Reporter.StartFile(path, totalSize)
	defer opts.Reporter.FinishFile(path)

	writeChunk := func(ctx context.Context, r chunkRange) error {
		data, err := fetchRangeWithRetry(ctx, fetch, r, opts)
		if err != nil {
			return err
		}
		if int64(len(data)) != r.size {
			return fmt.Errorf("transport: short chunk at offset %d: got %d bytes, want %d", r.start, len(data), r.size)
		}
		if _, err := dst.WriteAt(data, r.start); err != nil {
			return fmt.Errorf("transport: write chunk at offset %d: %w", r.start, err)
		}
		opts.Reporter.AddBytes(int64(len(data)))
		return nil
	}

	// First chunk synchronous: auth/not-found failures surface immediately,
	// before any worker goroutines are spawned (spec.md §4.9).
	if err := writeChunk(ctx, ranges[0]); err != nil {
		return fmt.Errorf("transport: download %s: %w", path, err)
	}
	rest := ranges[1:]
	if len(rest) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(opts.MaxWorkers, len(rest)))
	for _, r := range rest {
		r := r
		g.Go(func() error { return writeChunk(gctx, r) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("transport: download %s: %w", path, err)
	}
	return nil
}

// Upload is Download's mirror: reads totalSize bytes of src in chunks and
// pushes each via push, same synchronous-first-chunk + worker-pool shape.
func Upload(ctx context.Context, path string, src io.ReaderAt, totalSize int64, push RangePusher, opts Options) error {
	opts = opts.withDefaults()
	ranges := splitRanges(totalSize, opts.ChunkSize)
	if len(ranges) == 0 {
		return nil
	}
	opts.Reporter.StartFile(path, totalSize)
	defer opts.Reporter.FinishFile(path)

	readAt := func(r chunkRange) ([]byte, error) {
		buf := make([]byte, r.size)
		if _, err := src.ReadAt(buf, r.start); err != nil && err != io.EOF {
			return nil, fmt.Errorf("transport: read chunk at offset %d: %w", r.start, err)
		}
		return buf, nil
	}

	pushChunk := func(ctx context.Context, r chunkRange) error {
		data, err := readAt(r)
		if err != nil {
			return err
		}
		if err := putRangeWithRetry(ctx, push, r, data, opts); err != nil {
			return err
		}
		opts.Reporter.AddBytes(int64(len(data)))
		return nil
	}

	if err := pushChunk(ctx, ranges[0]); err != nil {
		return fmt.Errorf("transport: upload %s: %w", path, err)
	}
	rest := ranges[1:]
	if len(rest) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(opts.MaxWorkers, len(rest)))
	for _, r := range rest {
		r := r
		g.Go(func() error { return pushChunk(gctx, r) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("transport: upload %s: %w", path, err)
	}
	return nil
}

func fetchRangeWithRetry(ctx context.Context, fetch RangeFetcher, r chunkRange, opts Options) ([]byte, error) {
	b := quadraticBackoff(opts.MaxAttempts, opts.MaxBackoff)
	var data []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		d, err := fetch.FetchRange(ctx, r.start, r.size)
		if err != nil {
			if IsTerminal(err) {
				return err // not wrapped in RetryableError: go-retry stops immediately
			}
			return retry.RetryableError(err)
		}
		data = d
		return nil
	})
	return data, err
}

func putRangeWithRetry(ctx context.Context, push RangePusher, r chunkRange, data []byte, opts Options) error {
	b := quadraticBackoff(opts.MaxAttempts, opts.MaxBackoff)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := push.PutRange(ctx, r.start, data)
		if err != nil {
			if IsTerminal(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

// BatchResult pairs a work item with the error (if any) its transfer
// produced, for FanOut's caller to inspect per-item outcomes.
type BatchResult[T any] struct {
	Item T
	Err  error
}

// FanOut runs fn(item) for every item with up to maxWorkers concurrent, and
// aggregates every error with multierr rather than stopping at the first
// failure, so one bad item does not block the rest. Nothing in this
// repository calls it.
func FanOut[T any](ctx context.Context, items []T, maxWorkers int, fn func(context.Context, T) error) ([]BatchResult[T], error) {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	results := make([]BatchResult[T], len(items))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(min(maxWorkers, max(len(items), 1)))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			err := fn(gctx, item)
			results[i] = BatchResult[T]{Item: item, Err: err}
			return nil // never abort siblings; errors are aggregated below
		})
	}
	_ = g.Wait()

	var agg error
	for _, r := range results {
		if r.Err != nil {
			agg = multierr.Append(agg, r.Err)
		}
	}
	return results, agg
}
