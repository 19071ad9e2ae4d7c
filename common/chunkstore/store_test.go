package chunkstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

// stores runs fn against every Store implementation
func stores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()
		fn(t, store)
	})
	t.Run("badger", func(t *testing.T) {
		store, err := OpenBadgerStore("")
		require.NoError(t, err)
		defer store.Close()
		fn(t, store)
	})
}

func chunk(id string, index, total int, data string) Chunk {
	return Chunk{
		UploadID:    id,
		Index:       index,
		TotalChunks: total,
		FileName:    "report.pdf",
		FileHash:    "abc123",
		Data:        []byte(data),
	}
}

func TestStore_PutCreatesEntryAndCounts(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		res, err := store.Put(ctx, chunk("u1", 0, 3, "a"))
		require.NoError(t, err)
		assert.Equal(t, PutResult{Received: 1, Total: 3}, res)

		res, err = store.Put(ctx, chunk("u1", 2, 3, "c"))
		require.NoError(t, err)
		assert.Equal(t, PutResult{Received: 2, Total: 3}, res)

		complete, err := store.IsComplete(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, complete)

		status, err := store.Status(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2}, status.Received)
		assert.Equal(t, []int{1}, status.Missing())
		assert.Equal(t, "report.pdf", status.FileName)
		assert.Equal(t, "abc123", status.FileHash)
	})
}

func TestStore_DuplicateIndexOverwrites(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Put(ctx, chunk("u1", 0, 2, "first"))
		require.NoError(t, err)
		res, err := store.Put(ctx, chunk("u1", 0, 2, "second"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Received)

		_, err = store.Put(ctx, chunk("u1", 1, 2, "-tail"))
		require.NoError(t, err)

		chunks, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "second-tail", string(bytes.Join(chunks, nil)))
	})
}

func TestStore_OrderIndependentOfArrival(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for _, idx := range []int{2, 0, 1} {
			_, err := store.Put(ctx, chunk("late", idx, 3, fmt.Sprintf("[%d]", idx)))
			require.NoError(t, err)
		}
		for _, idx := range []int{0, 1, 2} {
			_, err := store.Put(ctx, chunk("early", idx, 3, fmt.Sprintf("[%d]", idx)))
			require.NoError(t, err)
		}

		late, err := store.Claim(ctx, "late")
		require.NoError(t, err)
		early, err := store.Claim(ctx, "early")
		require.NoError(t, err)

		assert.Equal(t, bytes.Join(early, nil), bytes.Join(late, nil))
		assert.Equal(t, "[0][1][2]", string(bytes.Join(late, nil)))
	})
}

func TestStore_IndexOutOfRange(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Put(ctx, chunk("u1", 3, 3, "x"))
		assert.ErrorIs(t, err, ErrIndexOutOfRange)

		_, err = store.Put(ctx, chunk("u1", -1, 3, "x"))
		assert.ErrorIs(t, err, ErrIndexOutOfRange)

		_, err = store.Put(ctx, chunk("u1", 0, 3, "x"))
		require.NoError(t, err)

		// total is fixed by the first chunk
		_, err = store.Put(ctx, chunk("u1", 4, 10, "x"))
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})
}

func TestStore_NotFound(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.Status(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.Claim(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.IsComplete(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, store.Evict(ctx, "missing"))
	})
}

func TestStore_ClaimIncompleteKeepsEntry(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Put(ctx, chunk("u1", 0, 2, "a"))
		require.NoError(t, err)

		_, err = store.Claim(ctx, "u1")
		assert.ErrorIs(t, err, ErrIncomplete)

		status, err := store.Status(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []int{0}, status.Received)
	})
}

func TestStore_ClaimEvicts(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Put(ctx, chunk("u1", 0, 1, "only"))
		require.NoError(t, err)

		chunks, err := store.Claim(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, chunks, 1)

		_, err = store.Status(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)

		// a new upload under the same id starts fresh
		res, err := store.Put(ctx, chunk("u1", 0, 2, "again"))
		require.NoError(t, err)
		assert.Equal(t, PutResult{Received: 1, Total: 2}, res)
	})
}

func TestStore_ConcurrentPutsSameUpload(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		const total = 64

		var wg sync.WaitGroup
		for i := 0; i < total; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, err := store.Put(ctx, chunk("busy", idx, total, fmt.Sprintf("%02d", idx)))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		complete, err := store.IsComplete(ctx, "busy")
		require.NoError(t, err)
		assert.True(t, complete)

		status, err := store.Status(ctx, "busy")
		require.NoError(t, err)
		assert.Len(t, status.Received, total)
		assert.Empty(t, status.Missing())
	})
}

func TestStore_SweepEvictsOldEntries(t *testing.T) {
	stores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Put(ctx, chunk("old", 0, 2, "a"))
		require.NoError(t, err)

		evicted, err := store.Sweep(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, evicted)

		evicted, err = store.Sweep(ctx, time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, evicted)

		_, err = store.Get(ctx, "old")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMissingIndices(t *testing.T) {
	assert.Equal(t, []int{1}, MissingIndices(3, []int{0, 2}))
	assert.Equal(t, []int{0, 1, 2}, MissingIndices(3, nil))
	assert.Empty(t, MissingIndices(2, []int{1, 0}))
	assert.Empty(t, MissingIndices(0, nil))
}
