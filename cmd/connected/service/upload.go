package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/lyzr/connected/common/cache"
	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/models"
	"github.com/lyzr/connected/common/storage"
)

// 100 MiB in the smallest chunks the client sends
const maxTotalChunks = 1 << 12

// FinalizeReplayTTL is how long a finalize result is returned again for the same upload
const FinalizeReplayTTL = 10 * time.Minute

// ErrTooLarge is returned for chunks or direct uploads above the configured limits
var ErrTooLarge = errors.New("payload too large")

// UploadLimits bounds what the upload endpoints accept
type UploadLimits struct {
	MaxFileSize   int64
	MaxDirectSize int64
	MaxChunkSize  int64
}

// UploadService is the caller-facing upload protocol: chunk, status,
// finalize and direct
type UploadService struct {
	store       chunkstore.Store
	finalizer   *Finalizer
	storage     storage.Storage
	distributor *Distributor
	limits      UploadLimits
	results     cache.Cache
	log         *logger.Logger
	now         func() time.Time
}

// NewUploadService creates a new upload service. results remembers finished
// finalizes so a client retrying after a lost response gets the same answer.
func NewUploadService(store chunkstore.Store, finalizer *Finalizer, st storage.Storage, distributor *Distributor, limits UploadLimits, results cache.Cache, log *logger.Logger) *UploadService {
	return &UploadService{
		store:       store,
		finalizer:   finalizer,
		storage:     st,
		distributor: distributor,
		limits:      limits,
		results:     results,
		log:         log,
		now:         time.Now,
	}
}

// PutChunk registers one chunk and acknowledges it
func (s *UploadService) PutChunk(ctx context.Context, chunk chunkstore.Chunk) (*models.ChunkReceipt, error) {
	if chunk.UploadID == "" || chunk.TotalChunks <= 0 {
		return nil, fmt.Errorf("%w: upload_id and total_chunks are required", ErrInvalidTransfer)
	}
	if s.limits.MaxChunkSize > 0 && int64(len(chunk.Data)) > s.limits.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds %d", ErrTooLarge, len(chunk.Data), s.limits.MaxChunkSize)
	}
	if chunk.TotalChunks > maxTotalChunks {
		return nil, fmt.Errorf("%w: %d chunks", ErrTooLarge, chunk.TotalChunks)
	}

	res, err := s.store.Put(ctx, chunk)
	if err != nil {
		return nil, err
	}

	s.log.Debug("chunk stored",
		"upload_id", chunk.UploadID,
		"chunk_index", chunk.Index,
		"received", res.Received,
		"total", res.Total,
	)

	return &models.ChunkReceipt{
		Success:        true,
		UploadID:       chunk.UploadID,
		ChunkIndex:     chunk.Index,
		UploadedChunks: res.Received,
		TotalChunks:    res.Total,
	}, nil
}

// Status reports registry bookkeeping; unknown ids give chunkstore.ErrNotFound
func (s *UploadService) Status(ctx context.Context, uploadID string) (*models.UploadStatus, error) {
	st, err := s.store.Status(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	progress := 0.0
	if st.Total > 0 {
		progress = float64(len(st.Received)) / float64(st.Total) * 100
	}
	return &models.UploadStatus{
		Found:          true,
		UploadID:       uploadID,
		FileName:       st.FileName,
		TotalChunks:    st.Total,
		UploadedChunks: len(st.Received),
		ReceivedChunks: st.Received,
		MissingChunks:  st.Missing(),
		IsComplete:     st.Complete(),
		Progress:       progress,
	}, nil
}

// Finalize reassembles the upload and publishes the resulting transfer
func (s *UploadService) Finalize(ctx context.Context, owner string, req *models.FinalizeRequest) (*models.FinalizeResult, error) {
	if res, ok := s.replay(ctx, owner, req.UploadID); ok {
		return res, nil
	}

	artifact, err := s.finalizer.Finalize(ctx, owner, req)
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		"upload_id":     req.UploadID,
		"file_hash":     req.FileHash,
		"storage_path":  artifact.StoragePath,
		"content_type":  artifact.ContentType,
		"original_size": lo.Ternary(req.OriginalSize > 0, req.OriginalSize, req.FileSize),
		"compressed":    req.Compressed,
	}
	if req.StreamID != "" {
		metadata["video_id"] = req.StreamID
		metadata["total_chunks"] = req.TotalChunks
		metadata["streaming"] = true
	}

	t, err := s.publishArtifact(ctx, owner, artifact, req.SessionKey, req.ReceiverID, metadata)
	if err != nil {
		return nil, err
	}

	res := &models.FinalizeResult{
		FileURL:     artifact.URL,
		FileName:    artifact.FileName,
		FileSize:    artifact.Size,
		FileHash:    artifact.FileHash,
		ContentType: artifact.ContentType,
		StoragePath: artifact.StoragePath,
		Compressed:  req.Compressed,
		Transfer:    t,
	}
	s.remember(ctx, owner, req.UploadID, res)
	return res, nil
}

func finalizeKey(owner, uploadID string) string {
	return "finalize:" + owner + ":" + uploadID
}

// replay returns the stored result of an earlier finalize of the same upload
func (s *UploadService) replay(ctx context.Context, owner, uploadID string) (*models.FinalizeResult, bool) {
	if s.results == nil {
		return nil, false
	}
	raw, ok, err := s.results.Get(ctx, finalizeKey(owner, uploadID))
	if err != nil {
		s.log.Warn("finalize result lookup failed", "upload_id", uploadID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var res models.FinalizeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	s.log.Info("replaying finalize result", "upload_id", uploadID)
	return &res, true
}

func (s *UploadService) remember(ctx context.Context, owner, uploadID string, res *models.FinalizeResult) {
	if s.results == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.results.Set(ctx, finalizeKey(owner, uploadID), raw, FinalizeReplayTTL); err != nil {
		s.log.Warn("failed to remember finalize result", "upload_id", uploadID, "error", err)
	}
}

// DirectUpload stores a small file in one call and publishes it
func (s *UploadService) DirectUpload(ctx context.Context, owner, fileName, contentType string, data []byte, sessionKey, receiverID string) (*models.FinalizeResult, error) {
	if s.limits.MaxDirectSize > 0 && int64(len(data)) > s.limits.MaxDirectSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds direct limit %d", ErrTooLarge, len(data), s.limits.MaxDirectSize)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	uploadID := "direct-" + uuid.NewString()
	hint := storage.UploadPath(owner, uploadID, fileName, s.now())
	url, err := s.storage.Put(ctx, data, contentType, hint)
	if err != nil {
		s.log.WithUser(owner).Error("direct upload storage failed", "file", fileName, "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
	}

	artifact := &Artifact{URL: url, StoragePath: hint, FileName: fileName, Size: int64(len(data)), ContentType: contentType}
	metadata := map[string]interface{}{
		"upload_id":     uploadID,
		"storage_path":  hint,
		"content_type":  contentType,
		"original_size": len(data),
		"compressed":    false,
		"direct":        true,
	}

	t, err := s.publishArtifact(ctx, owner, artifact, sessionKey, receiverID, metadata)
	if err != nil {
		return nil, err
	}

	return &models.FinalizeResult{
		FileURL:     url,
		FileName:    fileName,
		FileSize:    artifact.Size,
		ContentType: contentType,
		StoragePath: hint,
		Transfer:    t,
	}, nil
}

func (s *UploadService) publishArtifact(ctx context.Context, owner string, a *Artifact, sessionKey, receiverID string, metadata map[string]interface{}) (*models.Transfer, error) {
	t := &models.Transfer{
		SenderID:   owner,
		ReceiverID: lo.EmptyableToPtr(receiverID),
		Kind:       KindForContentType(a.ContentType),
		FileURL:    lo.ToPtr(a.URL),
		FileName:   lo.EmptyableToPtr(a.FileName),
		FileSize:   lo.ToPtr(a.Size),
		SessionKey: lo.EmptyableToPtr(sessionKey),
		Metadata:   metadata,
	}

	if err := s.distributor.PublishTransfer(ctx, t); err != nil {
		// the artifact is stored; the caller decides whether to publish again
		s.log.WithUser(owner).Error("failed to publish transfer for stored artifact", "url", a.URL, "error", err)
		return nil, err
	}
	return t, nil
}
