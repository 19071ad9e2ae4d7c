package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/handlers"
	"github.com/lyzr/connected/common/ratelimit"
)

// RegisterTransferRoutes registers all transfer-related routes
func RegisterTransferRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTransferHandler(c)

	transfers := e.Group("/api/v1/transfers")
	transfers.Use(c.Auth.ExtractIdentity())
	{
		transfers.POST("", h.CreateTransfer, rateLimit(c, ratelimit.ActionTransfer)) // POST /api/v1/transfers
		transfers.GET("", h.ListTransfers)                                           // GET /api/v1/transfers?session_key=K
		transfers.GET("/:id", h.GetTransfer)                                         // GET /api/v1/transfers/{id}
		transfers.PATCH("/:id", h.UpdateStatus)                                      // PATCH /api/v1/transfers/{id}
		transfers.DELETE("/:id", h.DeleteTransfer)                                   // DELETE /api/v1/transfers/{id}
		transfers.GET("/:id/download", h.Download)                                   // GET /api/v1/transfers/{id}/download
	}
}
