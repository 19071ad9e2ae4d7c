package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/connected/cmd/connected/container"
	"github.com/lyzr/connected/cmd/connected/handlers"
	"github.com/lyzr/connected/cmd/connected/routes"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/db"
	"github.com/lyzr/connected/common/server"
)

const serviceName = "connected"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Bootstrap common components (DB, logger, redis, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName,
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap %s: %v\n", serviceName, err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(ctx, components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		components.Shutdown(ctx)
		os.Exit(1)
	}

	if err := serviceContainer.Start(ctx); err != nil {
		components.Logger.Error("failed to start background workers", "error", err)
		components.Shutdown(ctx)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, components)

	// Setup health check
	setupHealthCheck(e, components)

	// Serve locally stored artifacts
	if serviceContainer.Local != nil {
		e.Static("/files", serviceContainer.Local.Root())
	}

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start server
	startServer(ctx, e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	// multipart framing on top of the largest accepted payload
	limit := components.Config.Upload.MaxDirectSize
	if components.Config.Upload.MaxChunkSize > limit {
		limit = components.Config.Upload.MaxChunkSize
	}
	bodyLimit := fmt.Sprintf("%dK", limit/1024+64)

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(bodyLimit))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": serviceName,
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterUploadRoutes(e, serviceContainer)
	routes.RegisterTransferRoutes(e, serviceContainer)
	routes.RegisterSessionRoutes(e, serviceContainer)
	routes.RegisterRealtimeRoutes(e, serviceContainer)
}

// startServer serves until a shutdown signal arrives
func startServer(ctx context.Context, e *echo.Echo, components *bootstrap.Components) {
	cfg := components.Config
	writeTimeout := cfg.Upload.FinalizeTimeout + 30*time.Second

	srv := server.New(serviceName, cfg.Service.Port, e, writeTimeout, components.Logger)
	if err := srv.Start(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
		components.Shutdown(ctx)
		os.Exit(1)
	}
}
