package api

import (
	"time"

	"github.com/bilgisen/feedcore/internal/config"
	"github.com/bilgisen/feedcore/internal/metrics"
	"github.com/bilgisen/feedcore/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// NewApp builds the fiber app with global middleware and all routes
func NewApp(cfg *config.Config, handlers *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout + 5*time.Second,
		IdleTimeout:           120 * time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())

	SetupRoutes(app, handlers, cfg)
	return app
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, handlers *Handlers, cfg *config.Config) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// API group with versioning
	api := app.Group("/api/v1")

	api.Get("/health", handlers.HealthCheck)

	admin := middleware.AdminOnly(cfg.AdminAPIKey)

	// Feed endpoints
	feed := api.Group("/feed")
	{
		feed.Get("", handlers.GetFeed)
		feed.Get("/update-available", middleware.ValidateQuery[updateAvailableQuery](), handlers.UpdateAvailable)
		feed.Get("/publisher/:id", handlers.GetPublisherFeed)
		feed.Get("/channel/:name", handlers.GetChannelFeed)
		feed.Post("/check", admin, handlers.CheckFeed)
		feed.Delete("/cache", admin, handlers.ClearCache)
	}

	api.Get("/suggestions", handlers.GetSuggestions)

	// Publisher endpoints
	publishers := api.Group("/publishers")
	{
		publishers.Get("", handlers.ListPublishers)
		publishers.Put("/:id/status", admin, middleware.ValidateBody[publisherStatusRequest](), handlers.SetPublisherStatus)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
