package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/service"
)

// DefaultHotspotLimit applies when the hotspot request carries no limit
const DefaultHotspotLimit = 10

// Handler contains all HTTP handlers
type Handler struct {
	forecasts *service.ForecastService
	dashboard *service.DashboardService
	repo      service.ReadingRepository
	now       func() time.Time
}

// NewHandler creates a new handler
func NewHandler(forecasts *service.ForecastService, dashboard *service.DashboardService, repo service.ReadingRepository) *Handler {
	return &Handler{
		forecasts: forecasts,
		dashboard: dashboard,
		repo:      repo,
		now:       time.Now,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	store := "ok"
	if err := h.repo.Health(c.Context()); err != nil {
		store = "unavailable"
	}
	return c.JSON(fiber.Map{
		"status":      "ok",
		"service":     "congestion-forecaster",
		"version":     "1.0.0",
		"model_ready": h.forecasts.Ready(),
		"store":       store,
	})
}

// ListSegments returns every known road segment
func (h *Handler) ListSegments(c *fiber.Ctx) error {
	segments, err := h.repo.ListSegments(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    segments,
		"count":   len(segments),
	})
}

// SegmentRange returns the reading time range of one segment
func (h *Handler) SegmentRange(c *fiber.Ctx) error {
	ctx := c.Context()
	roadID := c.Params("id")

	if _, err := h.repo.GetSegment(ctx, roadID); err != nil {
		return err
	}
	tr, err := h.repo.TimeRange(ctx, roadID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    tr,
	})
}

// Forecast serves the horizon forecast for one segment
func (h *Handler) Forecast(c *fiber.Ctx) error {
	var req domain.ForecastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.forecasts.Forecast(c.Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    resp,
	})
}

// Search filters stored readings
func (h *Handler) Search(c *fiber.Ctx) error {
	var q domain.ReadingQuery
	if err := c.BodyParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := q.Validate(); err != nil {
		return err
	}

	results, err := h.repo.SearchReadings(c.Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    results,
		"count":   len(results),
	})
}

// Hotspots ranks all segments by forecast congestion at a reference time
func (h *Handler) Hotspots(c *fiber.Ctx) error {
	at := h.now().Truncate(time.Hour)
	if raw := c.Query("timestamp"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp must be RFC3339")
		}
		at = parsed
	}

	limit := c.QueryInt("limit", DefaultHotspotLimit)
	if limit < 1 || limit > 100 {
		limit = DefaultHotspotLimit
	}

	report, err := h.dashboard.Hotspots(c.Context(), at, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}
