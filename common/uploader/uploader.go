// Package uploader drives a file from the local device into the chunk registry:
// validation, optional image compression, sequential chunk submission with
// retries, and finalize.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/retry"
)

const (
	// DefaultChunkSize is used for generic uploads
	DefaultChunkSize = 512 << 10

	// VideoChunkSize is used for the video streaming path
	VideoChunkSize = 500 << 10

	// DirectThreshold is the size below which a file is sent in one request
	DirectThreshold int64 = 1 << 20

	// MaxVideoStreamSize caps files sent through the streaming path
	MaxVideoStreamSize int64 = 500 << 20
)

// ErrAborted is returned once Abort has been called
var ErrAborted = errors.New("upload aborted")

// Chunk is one slice of a file on its way to the registry
type Chunk struct {
	UploadID    string
	Index       int
	TotalChunks int
	FileName    string
	FileHash    string
	Data        []byte
}

// DirectUpload is a small file sent in a single request
type DirectUpload struct {
	FileName    string
	ContentType string
	Data        []byte
	SessionKey  string
	ReceiverID  string
}

// Transport is the network boundary. Implementations wrap errors that must
// not be retried with retry.Permanent.
type Transport interface {
	UploadChunk(ctx context.Context, chunk *Chunk) (*models.ChunkReceipt, error)
	Finalize(ctx context.Context, req *models.FinalizeRequest) (*models.FinalizeResult, error)
	UploadDirect(ctx context.Context, upload *DirectUpload) (*models.FinalizeResult, error)
}

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Progress is reported after every acknowledged chunk
type Progress struct {
	UploadID    string
	Percent     float64
	ChunksDone  int
	TotalChunks int
}

// Options configures an upload
type Options struct {
	ChunkSize       int
	MaxFileSize     int64
	DirectThreshold int64
	Image           ImageOptions

	// CompressImages enables best-effort image compression
	CompressImages bool

	// Retry applies to each chunk and to finalize independently
	Retry retry.Policy

	// CallTimeout bounds every single network call; zero means no bound
	CallTimeout time.Duration

	SessionKey string
	ReceiverID string

	// StreamID tags the upload as part of a video stream
	StreamID string

	OnProgress func(Progress)
}

// DefaultOptions returns the generic upload settings
func DefaultOptions() Options {
	return Options{
		ChunkSize:       DefaultChunkSize,
		MaxFileSize:     DefaultMaxFileSize,
		DirectThreshold: DirectThreshold,
		Image:           DefaultImageOptions,
		CompressImages:  true,
		Retry:           retry.DefaultPolicy,
		CallTimeout:     60 * time.Second,
	}
}

// VideoStreamOptions returns settings for the video streaming path.
// Every video goes through chunks so receivers can follow the stream.
func VideoStreamOptions() Options {
	opts := DefaultOptions()
	opts.ChunkSize = VideoChunkSize
	opts.MaxFileSize = MaxVideoStreamSize
	opts.DirectThreshold = 0
	opts.CompressImages = false
	opts.StreamID = uuid.NewString()
	return opts
}

// Result is what a finished upload produced
type Result struct {
	UploadID    string
	Direct      bool
	TotalChunks int
	Compressed  bool
	Finalize    *models.FinalizeResult
}

// Job uploads one file. Jobs share no state, so many can run at once.
type Job struct {
	transport Transport
	file      *File
	opts      Options
	logger    Logger
	uploadID  string

	aborted atomic.Bool

	mu           sync.Mutex
	lastProgress float64
}

// NewJob prepares an upload of file
func NewJob(transport Transport, file *File, opts Options, logger Logger) *Job {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultPolicy
	}
	return &Job{
		transport: transport,
		file:      file,
		opts:      opts,
		logger:    logger,
		uploadID:  fmt.Sprintf("upload-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
	}
}

// UploadID returns the client-generated upload identifier
func (j *Job) UploadID() string {
	return j.uploadID
}

// Abort stops the job before its next network call. A call already in flight
// completes or fails on its own.
func (j *Job) Abort() {
	j.aborted.Store(true)
}

// Run validates, optionally compresses, and uploads the file
func (j *Job) Run(ctx context.Context) (*Result, error) {
	if j.aborted.Load() {
		return nil, ErrAborted
	}
	if err := Validate(j.file, j.opts.MaxFileSize); err != nil {
		return nil, err
	}

	if j.file.Size() < j.opts.DirectThreshold {
		return j.direct(ctx)
	}
	return j.chunked(ctx)
}

func (j *Job) direct(ctx context.Context) (*Result, error) {
	upload := &DirectUpload{
		FileName:    j.file.Name,
		ContentType: j.file.ContentType,
		Data:        j.file.Data,
		SessionKey:  j.opts.SessionKey,
		ReceiverID:  j.opts.ReceiverID,
	}

	res, err := retry.DoValue(ctx, j.opts.Retry, func(ctx context.Context) (*models.FinalizeResult, error) {
		if j.aborted.Load() {
			return nil, retry.Permanent(ErrAborted)
		}
		callCtx, cancel := j.callContext(ctx)
		defer cancel()
		return j.transport.UploadDirect(callCtx, upload)
	})
	if err != nil {
		return nil, fmt.Errorf("direct upload of %s: %w", j.file.Name, err)
	}

	j.report(1, 1)
	return &Result{UploadID: j.uploadID, Direct: true, TotalChunks: 1, Finalize: res}, nil
}

func (j *Job) chunked(ctx context.Context) (*Result, error) {
	// hash the original bytes, not the compressed ones
	hash := j.file.Hash()
	payload := j.file.Data
	contentType := j.file.ContentType
	compressed := false

	if j.opts.CompressImages && compressible(j.file, j.opts.Image) {
		out, err := CompressImage(j.file.Data, j.opts.Image)
		if err != nil {
			j.logger.Warn("image compression failed, uploading original", "file", j.file.Name, "error", err)
		} else {
			payload, contentType, compressed = out, "image/jpeg", true
			j.logger.Debug("image compressed", "file", j.file.Name, "from", len(j.file.Data), "to", len(out))
		}
	}

	chunks := Split(payload, j.opts.ChunkSize)
	total := len(chunks)
	log := j.logger

	log.Info("starting chunked upload", "upload_id", j.uploadID, "file", j.file.Name, "chunks", total, "bytes", len(payload))

	for i, data := range chunks {
		chunk := &Chunk{
			UploadID:    j.uploadID,
			Index:       i,
			TotalChunks: total,
			FileName:    j.file.Name,
			FileHash:    hash,
			Data:        data,
		}
		if err := j.sendChunk(ctx, chunk); err != nil {
			return nil, err
		}
		j.report(i+1, total)
	}

	req := &models.FinalizeRequest{
		UploadID:     j.uploadID,
		FileName:     j.file.Name,
		FileSize:     int64(len(payload)),
		FileType:     contentType,
		TotalChunks:  total,
		FileHash:     hash,
		OriginalSize: j.file.Size(),
		Compressed:   compressed,
		SessionKey:   j.opts.SessionKey,
		ReceiverID:   j.opts.ReceiverID,
		StreamID:     j.opts.StreamID,
	}

	res, err := j.finalize(ctx, req)

	// the registry reports gaps; resend them once and finalize again
	var incomplete *models.IncompleteUploadError
	if errors.As(err, &incomplete) && len(incomplete.Missing) > 0 {
		log.Warn("finalize reported missing chunks, resending", "upload_id", j.uploadID, "missing", incomplete.Missing)
		for _, idx := range incomplete.Missing {
			if idx < 0 || idx >= total {
				continue
			}
			chunk := &Chunk{UploadID: j.uploadID, Index: idx, TotalChunks: total, FileName: j.file.Name, FileHash: hash, Data: chunks[idx]}
			if err := j.sendChunk(ctx, chunk); err != nil {
				return nil, err
			}
		}
		res, err = j.finalize(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	log.Info("upload finalized", "upload_id", j.uploadID, "url", res.FileURL)
	return &Result{UploadID: j.uploadID, TotalChunks: total, Compressed: compressed, Finalize: res}, nil
}

func (j *Job) sendChunk(ctx context.Context, chunk *Chunk) error {
	attempt := 0
	err := retry.Do(ctx, j.opts.Retry, func(ctx context.Context) error {
		if j.aborted.Load() {
			return retry.Permanent(ErrAborted)
		}
		if attempt > 0 {
			j.logger.Info("retrying chunk", "upload_id", chunk.UploadID, "chunk", chunk.Index, "attempt", attempt+1)
		}
		attempt++

		callCtx, cancel := j.callContext(ctx)
		defer cancel()
		_, err := j.transport.UploadChunk(callCtx, chunk)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAborted) {
			return ErrAborted
		}
		return fmt.Errorf("upload chunk %d of %s: %w", chunk.Index, chunk.UploadID, err)
	}
	return nil
}

func (j *Job) finalize(ctx context.Context, req *models.FinalizeRequest) (*models.FinalizeResult, error) {
	res, err := retry.DoValue(ctx, j.opts.Retry, func(ctx context.Context) (*models.FinalizeResult, error) {
		if j.aborted.Load() {
			return nil, retry.Permanent(ErrAborted)
		}
		callCtx, cancel := j.callContext(ctx)
		defer cancel()
		return j.transport.Finalize(callCtx, req)
	})
	if err != nil {
		if errors.Is(err, ErrAborted) {
			return nil, ErrAborted
		}
		return nil, fmt.Errorf("finalize %s: %w", req.UploadID, err)
	}
	return res, nil
}

func (j *Job) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, j.opts.CallTimeout)
}

// report never lets the percentage go backwards
func (j *Job) report(done, total int) {
	if j.opts.OnProgress == nil || total == 0 {
		return
	}
	pct := float64(done) / float64(total) * 100

	j.mu.Lock()
	if pct < j.lastProgress {
		pct = j.lastProgress
	}
	j.lastProgress = pct
	j.mu.Unlock()

	j.opts.OnProgress(Progress{UploadID: j.uploadID, Percent: pct, ChunksDone: done, TotalChunks: total})
}

// Split cuts data into size-byte chunks; the last one holds the remainder
func Split(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(data) == 0 {
		return [][]byte{{}}
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}
