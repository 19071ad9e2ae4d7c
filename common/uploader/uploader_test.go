package uploader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/retry"
)

type fakeTransport struct {
	mu        sync.Mutex
	chunks    map[int][]byte
	calls     []int
	failures  map[int]int // chunk index -> failures left
	permanent map[int]bool
	finalizes []*models.FinalizeRequest
	directs   []*DirectUpload
	dropOnce  map[int]bool // chunk accepted but lost before finalize
	onChunk   func(index int)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		chunks:    make(map[int][]byte),
		failures:  make(map[int]int),
		permanent: make(map[int]bool),
		dropOnce:  make(map[int]bool),
	}
}

func (f *fakeTransport) UploadChunk(ctx context.Context, c *Chunk) (*models.ChunkReceipt, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		if f.onChunk != nil {
			f.onChunk(c.Index)
		}
	}()

	f.calls = append(f.calls, c.Index)
	if f.permanent[c.Index] {
		return nil, retry.Permanent(errors.New("chunk rejected"))
	}
	if f.failures[c.Index] > 0 {
		f.failures[c.Index]--
		return nil, errors.New("connection reset")
	}
	if f.dropOnce[c.Index] {
		delete(f.dropOnce, c.Index)
	} else {
		f.chunks[c.Index] = append([]byte(nil), c.Data...)
	}
	return &models.ChunkReceipt{Success: true, UploadID: c.UploadID, ChunkIndex: c.Index, UploadedChunks: len(f.chunks), TotalChunks: c.TotalChunks}, nil
}

func (f *fakeTransport) Finalize(ctx context.Context, req *models.FinalizeRequest) (*models.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finalizes = append(f.finalizes, req)
	var missing []int
	for i := 0; i < req.TotalChunks; i++ {
		if _, ok := f.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, retry.Permanent(&models.IncompleteUploadError{UploadID: req.UploadID, Total: req.TotalChunks, Missing: missing})
	}
	return &models.FinalizeResult{FileURL: "http://files/" + req.UploadID, FileName: req.FileName, FileSize: req.FileSize}, nil
}

func (f *fakeTransport) UploadDirect(ctx context.Context, u *DirectUpload) (*models.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directs = append(f.directs, u)
	return &models.FinalizeResult{FileURL: "http://files/direct", FileName: u.FileName, FileSize: int64(len(u.Data))}, nil
}

func (f *fakeTransport) assembled() []byte {
	var out []byte
	for i := 0; i < len(f.chunks); i++ {
		out = append(out, f.chunks[i]...)
	}
	return out
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = retry.Policy{MaxAttempts: 3, Backoff: retry.Constant(0)}
	return opts
}

func randomFile(name string, size int) *File {
	data := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(data)
	return &File{Name: name, ContentType: "application/octet-stream", Data: data}
}

var testLog = logger.New("error", "text")

func TestSplit(t *testing.T) {
	size := 1300 * 1024
	chunks := Split(make([]byte, size), DefaultChunkSize)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 512*1024)
	assert.Len(t, chunks[1], 512*1024)
	assert.Len(t, chunks[2], size-1024*1024)

	assert.Len(t, Split([]byte("abc"), 2), 2)
	assert.Len(t, Split(nil, 2), 1)
}

func TestJob_ChunkedUpload(t *testing.T) {
	tr := newFakeTransport()
	file := randomFile("video.bin", 1300*1024)

	var progress []float64
	opts := testOptions()
	opts.SessionKey = "K"
	opts.OnProgress = func(p Progress) { progress = append(progress, p.Percent) }

	job := NewJob(tr, file, opts, testLog)
	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalChunks)
	assert.False(t, res.Direct)
	assert.Equal(t, []int{0, 1, 2}, tr.calls)
	assert.Equal(t, file.Data, tr.assembled())

	require.Len(t, tr.finalizes, 1)
	req := tr.finalizes[0]
	assert.Equal(t, job.UploadID(), req.UploadID)
	assert.Equal(t, 3, req.TotalChunks)
	assert.Equal(t, file.Hash(), req.FileHash)
	assert.Equal(t, "K", req.SessionKey)
	assert.Equal(t, "http://files/"+job.UploadID(), res.Finalize.FileURL)

	require.Len(t, progress, 3)
	assert.InDelta(t, 33.33, progress[0], 0.01)
	assert.InDelta(t, 66.67, progress[1], 0.01)
	assert.InDelta(t, 100, progress[2], 0.001)
}

func TestJob_SmallFileGoesDirect(t *testing.T) {
	tr := newFakeTransport()
	file := randomFile("note.pdf", 10*1024)

	res, err := NewJob(tr, file, testOptions(), testLog).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Direct)
	assert.Empty(t, tr.calls)
	require.Len(t, tr.directs, 1)
	assert.Equal(t, "note.pdf", tr.directs[0].FileName)
}

func TestJob_RetriesTransientChunkFailures(t *testing.T) {
	tr := newFakeTransport()
	tr.failures[1] = 2

	_, err := NewJob(tr, randomFile("a.bin", 1300*1024), testOptions(), testLog).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1, 2}, tr.calls)
}

func TestJob_FailsAfterRetryCeiling(t *testing.T) {
	tr := newFakeTransport()
	tr.failures[1] = 5

	_, err := NewJob(tr, randomFile("a.bin", 1300*1024), testOptions(), testLog).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, []int{0, 1, 1, 1}, tr.calls)
	assert.Empty(t, tr.finalizes)
}

func TestJob_PermanentChunkErrorNotRetried(t *testing.T) {
	tr := newFakeTransport()
	tr.permanent[0] = true

	_, err := NewJob(tr, randomFile("a.bin", 1300*1024), testOptions(), testLog).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int{0}, tr.calls)
}

func TestJob_ResendsMissingChunksReportedByFinalize(t *testing.T) {
	tr := newFakeTransport()
	tr.dropOnce[1] = true

	file := randomFile("a.bin", 1300*1024)
	_, err := NewJob(tr, file, testOptions(), testLog).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 1}, tr.calls)
	assert.Len(t, tr.finalizes, 2)
	assert.Equal(t, file.Data, tr.assembled())
}

func TestJob_AbortStopsBeforeNextChunk(t *testing.T) {
	tr := newFakeTransport()
	job := NewJob(tr, randomFile("a.bin", 1300*1024), testOptions(), testLog)
	tr.onChunk = func(index int) {
		if index == 0 {
			job.Abort()
		}
	}

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, []int{0}, tr.calls)
	assert.Empty(t, tr.finalizes)
}

func TestJob_AbortBeforeFinalize(t *testing.T) {
	tr := newFakeTransport()
	job := NewJob(tr, randomFile("a.bin", 1300*1024), testOptions(), testLog)
	tr.onChunk = func(index int) {
		if index == 2 {
			job.Abort()
		}
	}

	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, ErrAborted)
	assert.Len(t, tr.calls, 3)
	assert.Empty(t, tr.finalizes)
}

func TestJob_RejectsInvalidFiles(t *testing.T) {
	tr := newFakeTransport()

	_, err := NewJob(tr, randomFile("setup.exe", 10), testOptions(), testLog).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".exe is not allowed")

	opts := testOptions()
	opts.MaxFileSize = 100
	_, err = NewJob(tr, randomFile("big.bin", 101), opts, testLog).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestJob_CompressesLargeImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3000, 2000))
	r := rand.New(rand.NewSource(7))
	for y := 0; y < 2000; y++ {
		for x := 0; x < 3000; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(x), uint8(y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), 1<<20)

	tr := newFakeTransport()
	file := &File{Name: "photo.png", ContentType: "image/png", Data: buf.Bytes()}

	res, err := NewJob(tr, file, testOptions(), testLog).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Compressed)

	req := tr.finalizes[0]
	assert.True(t, req.Compressed)
	assert.Equal(t, "image/jpeg", req.FileType)
	assert.Equal(t, file.Size(), req.OriginalSize)
	assert.Less(t, req.FileSize, file.Size())

	decoded, _, err := image.Decode(bytes.NewReader(tr.assembled()))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), 1920)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), 1080)
}

func TestJob_CompressionFailureFallsBackToOriginal(t *testing.T) {
	tr := newFakeTransport()
	file := randomFile("broken.png", 1300*1024)
	file.ContentType = "image/png"

	res, err := NewJob(tr, file, testOptions(), testLog).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Compressed)
	assert.Equal(t, file.Data, tr.assembled())
}

func TestVideoStreamOptions(t *testing.T) {
	opts := VideoStreamOptions()
	assert.Equal(t, 500*1024, opts.ChunkSize)
	assert.Equal(t, MaxVideoStreamSize, opts.MaxFileSize)
	assert.NotEmpty(t, opts.StreamID)

	tr := newFakeTransport()
	opts.Retry = retry.Policy{MaxAttempts: 1}
	_, err := NewJob(tr, randomFile("clip.mp4", 100), opts, testLog).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, tr.calls)
	assert.Equal(t, opts.StreamID, tr.finalizes[0].StreamID)
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(3840, 2160, 1920, 1080)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	w, h = fitWithin(1000, 3000, 1920, 1080)
	assert.Equal(t, 360, w)
	assert.Equal(t, 1080, h)

	w, h = fitWithin(800, 600, 1920, 1080)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestFileHelpers(t *testing.T) {
	f := &File{Name: "Report.PDF", Data: []byte("abc")}
	assert.Equal(t, "pdf", f.Extension())
	assert.Equal(t, CategoryDocument, f.Category())
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", f.Hash())

	assert.Equal(t, CategoryImage, (&File{Name: "x", ContentType: "image/heic"}).Category())
	assert.Equal(t, CategoryOther, (&File{Name: "x.bin"}).Category())

	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "100 MB", FormatSize(100<<20))
	assert.Equal(t, "0 Bytes", FormatSize(0))
}
