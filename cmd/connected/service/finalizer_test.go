package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
)

const chunkSize = 512 * 1024

func splitBytes(data []byte, size int) [][]byte {
	var out [][]byte
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end])
	}
	return out
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func putChunks(t *testing.T, store chunkstore.Store, uploadID string, parts [][]byte, order ...int) {
	t.Helper()
	for _, idx := range order {
		_, err := store.Put(context.Background(), chunkstore.Chunk{
			UploadID:    uploadID,
			Index:       idx,
			TotalChunks: len(parts),
			FileName:    "photo.bin",
			Data:        parts[idx],
		})
		require.NoError(t, err)
	}
}

func newFinalizer(store chunkstore.Store, st *fakeStorage) *Finalizer {
	f := NewFinalizer(store, st, logger.New("error", "text"))
	f.now = newClock().Now
	return f
}

func TestFinalizer_ReportsMissingChunk(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	st := newFakeStorage()
	fin := newFinalizer(store, st)

	data := randomBytes(t, 1300*1024)
	parts := splitBytes(data, chunkSize)
	require.Len(t, parts, 3)

	putChunks(t, store, "up-1", parts, 0, 2)

	_, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-1", FileName: "photo.bin", TotalChunks: 3,
	})
	var incomplete *models.IncompleteUploadError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []int{1}, incomplete.Missing)
	assert.Equal(t, []int{0, 2}, incomplete.Received)

	// entry survives, so the missing chunk can be resent
	putChunks(t, store, "up-1", parts, 1)
	artifact, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-1", FileName: "photo.bin", TotalChunks: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), artifact.Size)
	assert.True(t, bytes.Equal(data, st.only(t)))

	// second finalize finds nothing
	_, err = fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-1", FileName: "photo.bin", TotalChunks: 3,
	})
	assert.ErrorIs(t, err, models.ErrUploadExpired)
}

func TestFinalizer_ArrivalOrderDoesNotMatter(t *testing.T) {
	data := randomBytes(t, 1300*1024)
	parts := splitBytes(data, chunkSize)

	for _, order := range [][]int{{2, 0, 1}, {0, 1, 2}} {
		store := chunkstore.NewMemoryStore()
		st := newFakeStorage()
		fin := newFinalizer(store, st)

		putChunks(t, store, "up-order", parts, order...)
		_, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
			UploadID: "up-order", FileName: "photo.bin", TotalChunks: 3,
		})
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, st.only(t)), "order %v", order)
		store.Close()
	}
}

func TestFinalizer_UnknownUpload(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	fin := newFinalizer(store, newFakeStorage())

	_, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "never-seen", FileName: "x", TotalChunks: 1,
	})
	assert.ErrorIs(t, err, models.ErrUploadExpired)
}

func TestFinalizer_StorageFailureIsTerminal(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	st := newFakeStorage()
	st.err = errStorageDown
	fin := newFinalizer(store, st)

	parts := splitBytes(randomBytes(t, 1000), chunkSize)
	putChunks(t, store, "up-s3", parts, 0)

	_, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-s3", FileName: "a.bin", TotalChunks: 1,
	})
	require.ErrorIs(t, err, models.ErrStorageFailure)

	_, err = store.Status(context.Background(), "up-s3")
	assert.True(t, errors.Is(err, chunkstore.ErrNotFound))
}

func TestFinalizer_CancelledContextKeepsEntry(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	fin := newFinalizer(store, newFakeStorage())

	parts := splitBytes(randomBytes(t, 1000), chunkSize)
	putChunks(t, store, "up-ctx", parts, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fin.Finalize(ctx, "alice", &models.FinalizeRequest{
		UploadID: "up-ctx", FileName: "a.bin", TotalChunks: 1,
	})
	require.ErrorIs(t, err, context.Canceled)

	status, err := store.Status(context.Background(), "up-ctx")
	require.NoError(t, err)
	assert.True(t, status.Complete())
}

func TestFinalizer_DeclaredTotalMismatch(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	fin := newFinalizer(store, newFakeStorage())

	parts := splitBytes(randomBytes(t, 3*chunkSize), chunkSize)
	putChunks(t, store, "up-n", parts, 0, 1, 2)

	_, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-n", FileName: "a.bin", TotalChunks: 2,
	})
	assert.ErrorIs(t, err, ErrChunkCountMismatch)
}

func TestFinalizer_DetectsContentType(t *testing.T) {
	store := chunkstore.NewMemoryStore()
	defer store.Close()
	st := newFakeStorage()
	fin := newFinalizer(store, st)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	putChunks(t, store, "up-png", [][]byte{png}, 0)

	artifact, err := fin.Finalize(context.Background(), "alice", &models.FinalizeRequest{
		UploadID: "up-png", FileName: "pixel.png", TotalChunks: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", artifact.ContentType)
	assert.Equal(t, models.KindImage, KindForContentType(artifact.ContentType))
}

func TestKindForContentType(t *testing.T) {
	assert.Equal(t, models.KindImage, KindForContentType("image/jpeg"))
	assert.Equal(t, models.KindVideo, KindForContentType("video/mp4"))
	assert.Equal(t, models.KindFile, KindForContentType("application/pdf"))
}
