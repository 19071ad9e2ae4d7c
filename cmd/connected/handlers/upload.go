package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/middleware"
	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/models"
)

// UploadHandler serves the chunked and direct upload protocol
type UploadHandler struct {
	components    *bootstrap.Components
	uploadService *service.UploadService
	maxChunkSize  int64
	maxDirectSize int64
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(c *container.Container) *UploadHandler {
	cfg := c.Components.Config.Upload
	return &UploadHandler{
		components:    c.Components,
		uploadService: c.UploadService,
		maxChunkSize:  cfg.MaxChunkSize,
		maxDirectSize: cfg.MaxDirectSize,
	}
}

// UploadChunk stores one chunk
// POST /api/v1/uploads/chunk
func (h *UploadHandler) UploadChunk(c echo.Context) error {
	if _, err := middleware.RequireIdentity(c); err != nil {
		return err
	}

	index, err := strconv.Atoi(c.FormValue("chunk_index"))
	if err != nil {
		return badRequest(c, "chunk_index must be an integer")
	}
	total, err := strconv.Atoi(c.FormValue("total_chunks"))
	if err != nil {
		return badRequest(c, "total_chunks must be an integer")
	}

	data, err := readFormFile(c, "chunk", h.maxChunkSize)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	receipt, err := h.uploadService.PutChunk(c.Request().Context(), chunkstore.Chunk{
		UploadID:    c.FormValue("upload_id"),
		Index:       index,
		TotalChunks: total,
		FileName:    c.FormValue("file_name"),
		FileHash:    c.FormValue("file_hash"),
		Data:        data,
	})
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, receipt)
}

// GetStatus reports which chunks have arrived
// GET /api/v1/uploads/:upload_id/status
func (h *UploadHandler) GetStatus(c echo.Context) error {
	uploadID := c.Param("upload_id")

	status, err := h.uploadService.Status(c.Request().Context(), uploadID)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			return c.JSON(http.StatusNotFound, &models.UploadStatus{Found: false, UploadID: uploadID})
		}
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, status)
}

// Finalize reassembles an upload, stores it and publishes the transfer
// POST /api/v1/uploads/finalize
func (h *UploadHandler) Finalize(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	var req models.FinalizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if timeout := h.components.Config.Upload.FinalizeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h.components.Logger.WithUploadID(req.UploadID).Info("finalizing upload",
		"user_id", userID,
		"total_chunks", req.TotalChunks,
		"file_size", req.FileSize,
	)

	res, err := h.uploadService.Finalize(ctx, userID, &req)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, res)
}

// Direct stores a small file in one request
// POST /api/v1/uploads/direct
func (h *UploadHandler) Direct(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}
	data, err := readFormFile(c, "file", h.maxDirectSize)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	contentType := c.FormValue("file_type")
	if contentType == "" {
		contentType = fh.Header.Get(echo.HeaderContentType)
	}

	res, err := h.uploadService.DirectUpload(
		c.Request().Context(),
		userID,
		fh.Filename,
		contentType,
		data,
		c.FormValue("session_key"),
		c.FormValue("receiver_id"),
	)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, res)
}

// readFormFile reads a multipart file field, refusing more than limit bytes
func readFormFile(c echo.Context, field string, limit int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is required", service.ErrInvalidTransfer, field)
	}
	if limit > 0 && fh.Size > limit {
		return nil, fmt.Errorf("%w: %s of %d bytes exceeds %d", service.ErrTooLarge, field, fh.Size, limit)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer f.Close()

	return io.ReadAll(f)
}
