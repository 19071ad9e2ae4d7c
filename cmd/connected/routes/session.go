package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/handlers"
	"github.com/lyzr/connected/common/ratelimit"
)

// RegisterSessionRoutes registers pairing session routes
func RegisterSessionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewSessionHandler(c)

	sessions := e.Group("/api/v1/sessions")
	sessions.Use(c.Auth.ExtractIdentity())
	{
		sessions.POST("", h.CreateSession, rateLimit(c, ratelimit.ActionSession)) // POST /api/v1/sessions
		sessions.GET("", h.ListSessions)                                          // GET /api/v1/sessions
		sessions.GET("/validate", h.ValidateSession)                              // GET /api/v1/sessions/validate?key=K
		sessions.POST("/cleanup", h.Cleanup)                                      // POST /api/v1/sessions/cleanup
	}
}
