package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	app.Use(RequestMetrics())

	// Health check and Prometheus scrape endpoint
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/segments", handler.ListSegments)
		api.Get("/segments/:id/range", handler.SegmentRange)

		api.Post("/forecast", handler.Forecast)
		api.Post("/search", handler.Search)
		api.Get("/hotspots", handler.Hotspots)
	}
}
