package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ratekit/pkg/audit"
)

type fakeBatchStorage struct {
	mu      sync.Mutex
	batches [][]audit.Record
}

func (s *fakeBatchStorage) Store(ctx context.Context, rec audit.Record) error {
	return s.StoreBatch(ctx, []audit.Record{rec})
}

func (s *fakeBatchStorage) StoreBatch(ctx context.Context, recs []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]audit.Record(nil), recs...))
	return nil
}

func (s *fakeBatchStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func testRecord(path string) audit.Record {
	return audit.Record{
		Product:   "productA",
		Path:      path,
		Outcome:   audit.OutcomeAdmitted,
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestAsync_FlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := &fakeBatchStorage{}
	async := audit.NewAsync(storage, nil, audit.AsyncOptions{
		BufferSize:   10,
		BatchSize:    3,
		BatchTimeout: time.Hour, // only the size trigger should fire
	})
	t.Cleanup(func() { _ = async.Close(context.Background()) })

	for range 3 {
		require.NoError(t, async.Store(ctx, testRecord("/foo")))
	}

	assert.Eventually(t, func() bool { return storage.total() == 3 },
		time.Second, 10*time.Millisecond)
}

func TestAsync_FlushesOnTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := &fakeBatchStorage{}
	async := audit.NewAsync(storage, nil, audit.AsyncOptions{
		BufferSize:   10,
		BatchSize:    100,
		BatchTimeout: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = async.Close(context.Background()) })

	require.NoError(t, async.Store(ctx, testRecord("/foo")))

	assert.Eventually(t, func() bool { return storage.total() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestAsync_CloseDrainsBuffer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := &fakeBatchStorage{}
	async := audit.NewAsync(storage, nil, audit.AsyncOptions{
		BufferSize:   100,
		BatchSize:    100,
		BatchTimeout: time.Hour,
	})

	for range 7 {
		require.NoError(t, async.Store(ctx, testRecord("/foo")))
	}

	require.NoError(t, async.Close(context.Background()))
	assert.Equal(t, 7, storage.total())

	err := async.Store(ctx, testRecord("/foo"))
	assert.ErrorIs(t, err, audit.ErrSinkClosed)
}

func TestAsync_DropsOnFullBuffer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// blockingStorage never completes, so the worker stays busy and the
	// buffer fills up.
	release := make(chan struct{})
	storage := &blockingStorage{release: release}
	async := audit.NewAsync(storage, nil, audit.AsyncOptions{
		BufferSize:   1,
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
	})
	t.Cleanup(func() {
		close(release)
		_ = async.Close(context.Background())
	})

	deadline := time.Now().Add(time.Second)
	for async.Dropped() == 0 && time.Now().Before(deadline) {
		require.NoError(t, async.Store(ctx, testRecord("/foo")))
	}
	assert.Positive(t, async.Dropped(), "overflow must drop, never block")
}

type blockingStorage struct {
	release chan struct{}
}

func (s *blockingStorage) Store(ctx context.Context, rec audit.Record) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}
