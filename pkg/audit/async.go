package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncOptions controls buffering and batching of the async writer.
type AsyncOptions struct {
	BufferSize     int           // Records queued in memory before new ones are dropped.
	BatchSize      int           // Target records per storage write.
	BatchTimeout   time.Duration // Max time a partial batch waits before flushing.
	StorageTimeout time.Duration // Per-flush storage timeout.
}

// Async decouples audit writes from the request path. Records are queued to
// a background worker that flushes them in batches; when the buffer is full,
// new records are dropped with a warning rather than blocking the caller.
type Async struct {
	storage Storage
	log     *slog.Logger
	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	opts    AsyncOptions
	dropped atomic.Int64
}

// NewAsync wraps storage with a background batch writer. If storage also
// implements BatchStorage, flushes use bulk writes.
// It panics if storage is nil.
func NewAsync(storage Storage, log *slog.Logger, opts AsyncOptions) *Async {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 100 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}

	a := &Async{
		storage: storage,
		log:     log,
		records: make(chan Record, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

// Store implements Storage. It never blocks on a slow store: if the buffer
// is full the record is counted as dropped and the caller proceeds.
func (a *Async) Store(ctx context.Context, rec Record) error {
	select {
	case <-a.done:
		return ErrSinkClosed
	default:
	}

	select {
	case a.records <- rec:
		return nil
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.WarnContext(ctx, "audit buffer full, dropping records",
				slog.Int64("dropped_total", n))
		}
		return nil
	}
}

// Dropped returns the number of records lost to buffer overflow.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) worker() {
	defer a.wg.Done()

	batch := make([]Record, 0, a.opts.BatchSize)
	ticker := time.NewTicker(a.opts.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case rec := <-a.records:
			batch = append(batch, rec)
			if len(batch) >= a.opts.BatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.done:
			// Drain whatever is already buffered, then exit.
			for {
				select {
				case rec := <-a.records:
					batch = append(batch, rec)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch with a background context so a cancelled request
// context cannot abandon records already accepted into the buffer.
func (a *Async) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.StorageTimeout)
	defer cancel()

	var err error
	if bs, ok := a.storage.(BatchStorage); ok {
		err = bs.StoreBatch(ctx, batch)
	} else {
		for _, rec := range batch {
			if storeErr := a.storage.Store(ctx, rec); storeErr != nil {
				err = storeErr
				break
			}
		}
	}
	if err != nil {
		a.log.WarnContext(ctx, "audit batch write failed",
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err),
		)
	}
}

// Close stops accepting records and drains the buffer. The context bounds
// the drain; on timeout some records may be lost.
func (a *Async) Close(ctx context.Context) error {
	close(a.done)

	drained := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
