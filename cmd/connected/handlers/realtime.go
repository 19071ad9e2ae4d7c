package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/middleware"
	"github.com/lyzr/connected/cmd/connected/realtime"
	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/presence"
	"github.com/lyzr/connected/common/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// paired devices open the socket from arbitrary origins
		return true
	},
}

// RealtimeHandler serves websocket subscriptions and presence snapshots
type RealtimeHandler struct {
	components *bootstrap.Components
	hub        *realtime.Hub
	pairing    *service.PairingService
	presence   presence.Tracker
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(c *container.Container) *RealtimeHandler {
	return &RealtimeHandler{
		components: c.Components,
		hub:        c.Hub,
		pairing:    c.PairingService,
		presence:   c.Presence,
	}
}

// scope resolves the subscription scope: a valid session key, else the caller identity
func (h *RealtimeHandler) scope(c echo.Context) (pubsub.Scope, bool, error) {
	if key := c.QueryParam("session_key"); key != "" {
		if _, err := h.pairing.Validate(c.Request().Context(), key); err != nil {
			return pubsub.Scope{}, false, respondError(c, h.components.Logger, err)
		}
		return pubsub.SessionScope(key), true, nil
	}

	userID, err := middleware.RequireIdentity(c)
	if err != nil {
		return pubsub.Scope{}, false, err
	}
	return pubsub.UserScope(userID), true, nil
}

// Subscribe upgrades to a websocket bound to one scope
// GET /ws?session_key=K&subscriber_id=D
func (h *RealtimeHandler) Subscribe(c echo.Context) error {
	scope, ok, err := h.scope(c)
	if !ok {
		return err
	}

	subscriberID := c.QueryParam("subscriber_id")
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.components.Logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	h.components.Logger.Info("new websocket connection",
		"subscriber_id", subscriberID,
		"scope", scope.String(),
		"remote", c.RealIP(),
	)

	h.hub.Attach(conn, scope, subscriberID)
	return nil
}

// GetPresence returns the announced subscribers of a scope
// GET /api/v1/presence?session_key=K
func (h *RealtimeHandler) GetPresence(c echo.Context) error {
	scope, ok, err := h.scope(c)
	if !ok {
		return err
	}

	snapshot, err := h.presence.Snapshot(c.Request().Context(), scope)
	if err != nil {
		return respondError(c, h.components.Logger, err)
	}

	return c.JSON(http.StatusOK, snapshot)
}
