package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/storage"
)

// ErrChunkCountMismatch means finalize declared a different total than the chunks did
var ErrChunkCountMismatch = errors.New("declared total_chunks does not match the upload")

// Artifact is a reassembled upload handed to storage
type Artifact struct {
	URL         string
	StoragePath string
	FileName    string
	Size        int64
	ContentType string
	FileHash    string
}

// Finalizer turns a complete chunk set into one stored artifact
type Finalizer struct {
	store   chunkstore.Store
	storage storage.Storage
	log     *logger.Logger
	now     func() time.Time
}

// NewFinalizer creates a new finalizer
func NewFinalizer(store chunkstore.Store, st storage.Storage, log *logger.Logger) *Finalizer {
	return &Finalizer{
		store:   store,
		storage: st,
		log:     log,
		now:     time.Now,
	}
}

// Finalize verifies completeness, concatenates chunks in index order and
// stores the result.
//
// Missing chunks give *models.IncompleteUploadError and keep the entry.
// A context that is already done keeps the entry too, so finalize can be
// retried. Once chunks are claimed the entry is gone, and a storage failure
// is terminal (models.ErrStorageFailure). The declared hash is recorded,
// never verified.
func (f *Finalizer) Finalize(ctx context.Context, owner string, req *models.FinalizeRequest) (*Artifact, error) {
	log := f.log.WithUploadID(req.UploadID).WithUser(owner)

	status, err := f.store.Status(ctx, req.UploadID)
	if errors.Is(err, chunkstore.ErrNotFound) {
		return nil, models.ErrUploadExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload status: %w", err)
	}

	if len(status.Received) != req.TotalChunks || status.Total != req.TotalChunks {
		missing := chunkstore.MissingIndices(req.TotalChunks, status.Received)
		if len(missing) == 0 {
			return nil, fmt.Errorf("%w: declared %d, upload has %d", ErrChunkCountMismatch, req.TotalChunks, status.Total)
		}
		log.Info("finalize on incomplete upload", "received", len(status.Received), "total", req.TotalChunks, "missing", len(missing))
		return nil, &models.IncompleteUploadError{
			UploadID: req.UploadID,
			Total:    req.TotalChunks,
			Received: status.Received,
			Missing:  missing,
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks, err := f.store.Claim(ctx, req.UploadID)
	switch {
	case errors.Is(err, chunkstore.ErrNotFound):
		// swept between the status read and the claim
		return nil, models.ErrUploadExpired
	case errors.Is(err, chunkstore.ErrIncomplete):
		status, serr := f.store.Status(ctx, req.UploadID)
		if serr != nil {
			return nil, models.ErrUploadExpired
		}
		return nil, &models.IncompleteUploadError{UploadID: req.UploadID, Total: status.Total, Received: status.Received, Missing: status.Missing()}
	case err != nil:
		return nil, fmt.Errorf("failed to claim chunks: %w", err)
	}

	data := bytes.Join(chunks, nil)

	contentType := req.FileType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	hint := storage.UploadPath(owner, req.UploadID, req.FileName, f.now())
	url, err := f.storage.Put(ctx, data, contentType, hint)
	if err != nil {
		log.Error("artifact storage failed after reassembly", "bytes", len(data), "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
	}

	log.Info("upload finalized",
		"chunks", len(chunks),
		"bytes", len(data),
		"content_type", contentType,
		"storage_path", hint,
	)

	return &Artifact{
		URL:         url,
		StoragePath: hint,
		FileName:    req.FileName,
		Size:        int64(len(data)),
		ContentType: contentType,
		FileHash:    req.FileHash,
	}, nil
}

// KindForContentType maps a MIME type onto an artifact transfer kind
func KindForContentType(contentType string) models.TransferKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.KindImage
	case strings.HasPrefix(contentType, "video/"):
		return models.KindVideo
	}
	return models.KindFile
}
