package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/handlers"
	commonmw "github.com/lyzr/connected/common/middleware"
	"github.com/lyzr/connected/common/ratelimit"
)

// RegisterUploadRoutes registers the chunked and direct upload routes
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewUploadHandler(c)
	limit := rateLimit(c, ratelimit.ActionUpload)

	uploads := e.Group("/api/v1/uploads")
	uploads.Use(c.Auth.ExtractIdentity())
	{
		uploads.POST("/chunk", h.UploadChunk, limit)   // POST /api/v1/uploads/chunk
		uploads.GET("/:upload_id/status", h.GetStatus) // GET /api/v1/uploads/upload-123/status
		uploads.POST("/finalize", h.Finalize)          // POST /api/v1/uploads/finalize
		uploads.POST("/direct", h.Direct, limit)       // POST /api/v1/uploads/direct
	}
}

// rateLimit returns the per-user limiter for action, or a pass-through when disabled
func rateLimit(c *container.Container, action ratelimit.Action) echo.MiddlewareFunc {
	if !c.Components.Config.RateLimit.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return commonmw.UserRateLimitMiddleware(c.Limiter, c.Policy(action), c.Components.Logger)
}
