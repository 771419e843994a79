// ABOUTME: Generic FIFO batch buffer with snapshot-isolated chunked flushing.
// ABOUTME: Sequential chunk upload by default, parallel opt-in via errgroup.

package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Defaults applied when the corresponding option is zero.
const (
	DefaultBatchSize = 10
	DefaultChunkSize = 100
)

// Uploader delivers one chunk of items to the collection API. The buffer
// attempts each chunk exactly once per flush; retry policy lives inside
// the uploader, not here.
type Uploader[T any] interface {
	Upload(ctx context.Context, chunk []T) (inserted int, err error)
}

// UploaderFunc adapts a function to the Uploader interface.
type UploaderFunc[T any] func(ctx context.Context, chunk []T) (int, error)

// Upload implements Uploader.
func (f UploaderFunc[T]) Upload(ctx context.Context, chunk []T) (int, error) {
	return f(ctx, chunk)
}

// ChunkFailure reports one chunk that could not be uploaded.
type ChunkFailure struct {
	ChunkIndex int
	Items      int
	Err        error
}

// UploadSummary aggregates the outcome of one flush. A flush never fails
// outright: partial success is expressed here, and callers that need
// delivery guarantees must inspect Failures and re-submit.
type UploadSummary struct {
	TotalItems    int
	TotalInserted int
	Failures      []ChunkFailure
}

// FailedItems returns the number of items in failed chunks.
func (s UploadSummary) FailedItems() int {
	n := 0
	for _, f := range s.Failures {
		n += f.Items
	}
	return n
}

// Options configures a Buffer. The zero value is usable: defaults are
// applied and auto-upload is enabled via New.
type Options[T any] struct {
	// BatchSize is the queue length that triggers an automatic flush.
	BatchSize int
	// ChunkSize caps how many items go into a single upload call.
	ChunkSize int
	// DisableAutoUpload turns off threshold-triggered flushing; items
	// then accumulate until a manual Flush.
	DisableAutoUpload bool
	// Parallel uploads the chunks of one flush concurrently. Cross-chunk
	// completion order is relaxed; item order within a chunk is kept.
	Parallel bool
	// OnFailure, when set, receives the items of each failed chunk, e.g.
	// for spooling to durable storage. Called outside the buffer lock.
	OnFailure func(items []T, err error)
	Logger    *slog.Logger
}

// Buffer is a FIFO queue of pending items with threshold-based flushing.
// Safe for concurrent use; only the uploader call happens outside the
// critical section.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T

	uploader   Uploader[T]
	batchSize  int
	chunkSize  int
	autoUpload bool
	parallel   bool
	onFailure  func(items []T, err error)
	logger     *slog.Logger
}

// New creates a buffer draining into uploader. Returns an error for
// nonsensical configuration (negative sizes): programmer error fails
// fast instead of degrading silently.
func New[T any](uploader Uploader[T], opts Options[T]) (*Buffer[T], error) {
	if uploader == nil {
		return nil, fmt.Errorf("buffer: uploader is required")
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("buffer: batch size must be >= 1, got %d", opts.BatchSize)
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("buffer: chunk size must be >= 1, got %d", opts.ChunkSize)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer[T]{
		uploader:   uploader,
		batchSize:  opts.BatchSize,
		chunkSize:  opts.ChunkSize,
		autoUpload: !opts.DisableAutoUpload,
		parallel:   opts.Parallel,
		onFailure:  opts.OnFailure,
		logger:     logger.With("component", "buffer"),
	}, nil
}

// Len returns the number of items currently queued.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Enqueue appends an item. When auto-upload is enabled and the queue has
// reached the batch size, the queued items are flushed before returning
// and the summary of that flush is returned; otherwise the result is nil.
func (b *Buffer[T]) Enqueue(ctx context.Context, item T) *UploadSummary {
	b.mu.Lock()
	b.items = append(b.items, item)
	shouldFlush := b.autoUpload && len(b.items) >= b.batchSize
	var snapshot []T
	if shouldFlush {
		snapshot = b.takeLocked()
	}
	b.mu.Unlock()

	if !shouldFlush {
		return nil
	}
	summary := b.upload(ctx, snapshot)
	return &summary
}

// Flush drains everything currently queued, regardless of the batch-size
// threshold, and uploads it in chunks. Items enqueued while the upload is
// in flight are not part of this flush.
func (b *Buffer[T]) Flush(ctx context.Context) UploadSummary {
	b.mu.Lock()
	snapshot := b.takeLocked()
	b.mu.Unlock()

	return b.upload(ctx, snapshot)
}

// takeLocked captures and clears the current queue. Must be called with
// the mutex held.
func (b *Buffer[T]) takeLocked() []T {
	snapshot := b.items
	b.items = nil
	return snapshot
}

// upload partitions the snapshot into chunks and delivers them. Every item
// ends up either counted as inserted or reported in a failure; nothing is
// dropped silently.
func (b *Buffer[T]) upload(ctx context.Context, snapshot []T) UploadSummary {
	summary := UploadSummary{TotalItems: len(snapshot)}
	if len(snapshot) == 0 {
		return summary
	}

	chunks := partition(snapshot, b.chunkSize)
	inserted := make([]int, len(chunks))
	errs := make([]error, len(chunks))

	if b.parallel && len(chunks) > 1 {
		var g errgroup.Group
		for i, chunk := range chunks {
			g.Go(func() error {
				inserted[i], errs[i] = b.uploader.Upload(ctx, chunk)
				return nil
			})
		}
		// Closures never return errors; failures land in errs.
		_ = g.Wait()
	} else {
		for i, chunk := range chunks {
			inserted[i], errs[i] = b.uploader.Upload(ctx, chunk)
		}
	}

	for i, chunk := range chunks {
		if errs[i] != nil {
			summary.Failures = append(summary.Failures, ChunkFailure{
				ChunkIndex: i,
				Items:      len(chunk),
				Err:        errs[i],
			})
			b.logger.Warn("chunk upload failed",
				"chunk_index", i,
				"items", len(chunk),
				"error", errs[i],
			)
			if b.onFailure != nil {
				b.onFailure(chunk, errs[i])
			}
			continue
		}
		summary.TotalInserted += inserted[i]
	}
	return summary
}

// partition splits items into chunks of at most size elements, preserving
// order.
func partition[T any](items []T, size int) [][]T {
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
