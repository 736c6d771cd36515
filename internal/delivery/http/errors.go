package http

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/metrics"
	"github.com/smartcity/congestion/internal/service"
)

// statusOf maps an error to its HTTP status and client-facing message
func statusOf(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, domain.ErrInvalidRequest):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInsufficientHistory), errors.Is(err, domain.ErrSegmentNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrHistoryTimeout):
		return fiber.StatusGatewayTimeout, "History lookup timed out"
	case errors.Is(err, service.ErrModelUnavailable):
		return fiber.StatusServiceUnavailable, "Forecast model is not loaded"
	default:
		return fiber.StatusInternalServerError, "Internal Server Error"
	}
}

// ErrorHandler renders every handler error as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, message := statusOf(err)
	if code == fiber.StatusInternalServerError {
		log.Printf("Request %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

// RequestMetrics records request counts and latency per route pattern
func RequestMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = statusOf(err)
		}
		endpoint := c.Route().Path
		metrics.RequestsTotal.WithLabelValues(endpoint, c.Method(), strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(endpoint, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}
