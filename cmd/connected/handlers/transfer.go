package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/middleware"
	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/models"
)

// TransferHandler handles transfer publication, listing and lifecycle
type TransferHandler struct {
	components  *bootstrap.Components
	distributor *service.Distributor
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(c *container.Container) *TransferHandler {
	return &TransferHandler{
		components:  c.Components,
		distributor: c.Distributor,
	}
}

// CreateTransfer publishes inline content or an already stored artifact
// POST /api/v1/transfers
func (h *TransferHandler) CreateTransfer(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	var req models.CreateTransferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	t, err := h.distributor.Publish(c.Request().Context(), userID, &req)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, t)
}

// ListTransfers lists a session's transfers or the caller's own
// GET /api/v1/transfers?session_key=K&limit=50
func (h *TransferHandler) ListTransfers(c echo.Context) error {
	sessionKey := c.QueryParam("session_key")
	userID := middleware.GetIdentity(c)
	if sessionKey == "" && userID == "" {
		_, err := middleware.RequireIdentity(c)
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	transfers, err := h.distributor.List(c.Request().Context(), userID, sessionKey, limit)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, &models.TransferList{
		Transfers: transfers,
		Count:     len(transfers),
	})
}

// GetTransfer returns one transfer to a participant or a session member
// GET /api/v1/transfers/:id?session_key=K
func (h *TransferHandler) GetTransfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}

	t, err := h.distributor.Get(c.Request().Context(), middleware.GetIdentity(c), c.QueryParam("session_key"), id)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, t)
}

// UpdateStatus moves a pending transfer to completed or failed
// PATCH /api/v1/transfers/:id
func (h *TransferHandler) UpdateStatus(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}

	var req models.UpdateTransferStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	t, err := h.distributor.SetStatus(c.Request().Context(), userID, id, req.Status)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, t)
}

// DeleteTransfer retracts a transfer the caller sent
// DELETE /api/v1/transfers/:id
func (h *TransferHandler) DeleteTransfer(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}

	if err := h.distributor.Retract(c.Request().Context(), userID, id); err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// Download redirects to the stored artifact
// GET /api/v1/transfers/:id/download
func (h *TransferHandler) Download(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}

	t, err := h.distributor.Get(c.Request().Context(), middleware.GetIdentity(c), c.QueryParam("session_key"), id)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}
	if t.FileURL == nil || *t.FileURL == "" {
		return badRequest(c, "transfer has no downloadable artifact")
	}

	return c.Redirect(http.StatusFound, *t.FileURL)
}
