package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/handlers"
)

// RegisterRealtimeRoutes registers the websocket endpoint and presence snapshots
func RegisterRealtimeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRealtimeHandler(c)

	e.GET("/ws", h.Subscribe, c.Auth.ExtractIdentity())                // GET /ws?session_key=K&subscriber_id=D
	e.GET("/api/v1/presence", h.GetPresence, c.Auth.ExtractIdentity()) // GET /api/v1/presence?session_key=K
}
