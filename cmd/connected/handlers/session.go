package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/middleware"
	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/models"
)

// SessionHandler handles pairing sessions
type SessionHandler struct {
	components *bootstrap.Components
	pairing    *service.PairingService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(c *container.Container) *SessionHandler {
	return &SessionHandler{
		components: c.Components,
		pairing:    c.PairingService,
	}
}

// CreateSession starts a pairing session for the caller
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	var req models.CreateSessionRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}

	session, err := h.pairing.Create(c.Request().Context(), userID, req.DeviceInfo)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusCreated, session)
}

// ListSessions lists the caller's live sessions, newest first
// GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	sessions, err := h.pairing.List(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, &models.SessionList{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// ValidateSession checks a pairing key and touches its last activity
// GET /api/v1/sessions/validate?key=K
func (h *SessionHandler) ValidateSession(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return badRequest(c, "key is required")
	}

	session, err := h.pairing.Validate(c.Request().Context(), key)
	if errors.Is(err, models.ErrInvalidSession) {
		return c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "session not found or expired",
			Code:  models.CodeInvalidSession,
		})
	}
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, &models.SessionValidation{
		Valid:      true,
		UserID:     session.UserID,
		LastActive: &session.LastActive,
		ExpiresAt:  &session.ExpiresAt,
	})
}

// Cleanup deletes the caller's expired sessions and sent transfers
// POST /api/v1/sessions/cleanup
func (h *SessionHandler) Cleanup(c echo.Context) error {
	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return err
	}

	res, err := h.pairing.Cleanup(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, res)
}
