package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/common/cache"
	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/pubsub"
)

func newUploadService(t *testing.T, f *fixture, st *fakeStorage) *UploadService {
	t.Helper()
	store := chunkstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	log := logger.New("error", "text")
	results := cache.NewMemoryCache(log)
	t.Cleanup(func() { results.Close() })

	svc := NewUploadService(store, newFinalizer(store, st), st, f.distributor, UploadLimits{
		MaxFileSize:   100 << 20,
		MaxDirectSize: 1 << 20,
		MaxChunkSize:  1 << 20,
	}, results, log)
	svc.now = f.clock.Now
	return svc
}

func TestUploadService_ChunkedUploadPublishesTransfer(t *testing.T) {
	f := newFixture(t)
	st := newFakeStorage()
	svc := newUploadService(t, f, st)
	ctx := context.Background()

	session, err := f.pairing.Create(ctx, "alice", nil)
	require.NoError(t, err)
	watcher := f.subscribe(t, pubsub.SessionScope(session.SessionKey).Topic())

	data := randomBytes(t, 1300*1024)
	parts := splitBytes(data, chunkSize)
	for _, idx := range []int{2, 0} {
		receipt, err := svc.PutChunk(ctx, chunkstore.Chunk{
			UploadID: "up-svc", Index: idx, TotalChunks: len(parts), FileName: "clip.bin", Data: parts[idx],
		})
		require.NoError(t, err)
		assert.True(t, receipt.Success)
	}

	status, err := svc.Status(ctx, "up-svc")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, status.MissingChunks)
	assert.False(t, status.IsComplete)
	assert.InDelta(t, 66.67, status.Progress, 0.01)

	req := &models.FinalizeRequest{
		UploadID: "up-svc", FileName: "clip.bin", FileSize: int64(len(data)),
		TotalChunks: 3, FileHash: "abc", SessionKey: session.SessionKey, StreamID: "vid-1",
	}
	_, err = svc.Finalize(ctx, "alice", req)
	var incomplete *models.IncompleteUploadError
	require.ErrorAs(t, err, &incomplete)

	_, err = svc.PutChunk(ctx, chunkstore.Chunk{UploadID: "up-svc", Index: 1, TotalChunks: 3, Data: parts[1]})
	require.NoError(t, err)

	res, err := svc.Finalize(ctx, "alice", req)
	require.NoError(t, err)
	require.NotNil(t, res.Transfer)
	assert.Equal(t, int64(len(data)), res.FileSize)
	assert.Equal(t, models.KindFile, res.Transfer.Kind)
	assert.Equal(t, "abc", res.Transfer.Metadata["file_hash"])
	assert.Equal(t, true, res.Transfer.Metadata["streaming"])
	assert.Equal(t, "vid-1", res.Transfer.Metadata["video_id"])

	require.Eventually(t, func() bool { return watcher.count() == 1 }, time.Second, 5*time.Millisecond)

	// a retry after a lost response gets the same artifact and publishes nothing new
	again, err := svc.Finalize(ctx, "alice", req)
	require.NoError(t, err)
	assert.Equal(t, res.Transfer.ID, again.Transfer.ID)
	assert.Equal(t, res.StoragePath, again.StoragePath)

	_, err = svc.Finalize(ctx, "mallory", req)
	assert.ErrorIs(t, err, models.ErrUploadExpired)

	assert.Never(t, func() bool { return watcher.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestUploadService_ChunkLimits(t *testing.T) {
	f := newFixture(t)
	svc := newUploadService(t, f, newFakeStorage())
	ctx := context.Background()

	_, err := svc.PutChunk(ctx, chunkstore.Chunk{UploadID: "u", Index: 0, TotalChunks: 1, Data: make([]byte, 2<<20)})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.PutChunk(ctx, chunkstore.Chunk{UploadID: "", Index: 0, TotalChunks: 1, Data: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidTransfer)

	_, err = svc.PutChunk(ctx, chunkstore.Chunk{UploadID: "u", Index: 5, TotalChunks: 2, Data: []byte("x")})
	assert.ErrorIs(t, err, chunkstore.ErrIndexOutOfRange)

	_, err = svc.Status(ctx, "nope")
	assert.ErrorIs(t, err, chunkstore.ErrNotFound)
}

func TestUploadService_Direct(t *testing.T) {
	f := newFixture(t)
	st := newFakeStorage()
	svc := newUploadService(t, f, st)
	ctx := context.Background()

	res, err := svc.DirectUpload(ctx, "alice", "note.txt", "", []byte("plain text body"), "", "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain text body"), st.only(t))
	assert.Contains(t, res.ContentType, "text/plain")
	assert.Equal(t, "bob", *res.Transfer.ReceiverID)

	_, err = svc.DirectUpload(ctx, "alice", "big.bin", "", make([]byte, 2<<20), "", "")
	assert.ErrorIs(t, err, ErrTooLarge)

	st.err = errStorageDown
	_, err = svc.DirectUpload(ctx, "alice", "x.txt", "text/plain", []byte("x"), "", "")
	assert.ErrorIs(t, err, models.ErrStorageFailure)
}
