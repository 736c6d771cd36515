package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/internal/repository/postgres"
	"github.com/smartcity/congestion/internal/service"
)

var refTime = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

type constPredictor struct{ value float64 }

func (p constPredictor) Predict(x [][]float64) ([]float64, error) {
	out := make([]float64, preprocess.DefaultForecastHorizon)
	for i := range out {
		out[i] = p.value
	}
	return out, nil
}

func readings(roadID string, n int) []domain.Reading {
	out := make([]domain.Reading, n)
	for i := range out {
		out[i] = domain.Reading{
			RoadID:          roadID,
			RoadName:        "Road " + roadID,
			SegmentName:     "Segment " + roadID,
			Timestamp:       refTime.Add(-time.Duration(n-i) * time.Hour),
			CongestionLevel: 0.5,
		}
	}
	return out
}

func newTestApp(t *testing.T, model service.Predictor) (*fiber.App, *service.ForecastService) {
	t.Helper()
	repo := postgres.NewMockRepository(nil, append(readings("A", 48), readings("SHORT", 5)...))

	schema := preprocess.DefaultSchema()
	var scaler *preprocess.Scaler
	if model != nil {
		scaler = &preprocess.Scaler{Min: make([]float64, schema.Len()), Max: make([]float64, schema.Len())}
		for i := range scaler.Max {
			scaler.Max[i] = 1
		}
	}
	forecasts, err := service.NewForecastService(repo, model, scaler, schema, service.DefaultForecastConfig())
	require.NoError(t, err)
	t.Cleanup(forecasts.WaitBackground)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, NewHandler(forecasts, service.NewDashboardService(forecasts, repo), repo))
	return app, forecasts
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})

	code, body := do(t, app, nethttp.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["model_ready"])
}

func TestSegments(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})

	code, body := do(t, app, nethttp.MethodGet, "/api/v1/segments", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 2.0, body["count"])

	code, body = do(t, app, nethttp.MethodGet, "/api/v1/segments/A/range", "")
	assert.Equal(t, fiber.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 48.0, data["total_readings"])

	code, body = do(t, app, nethttp.MethodGet, "/api/v1/segments/NOPE/range", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, true, body["error"])
}

func TestForecastEndpoint(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})

	code, body := do(t, app, nethttp.MethodPost, "/api/v1/forecast",
		`{"road_id":"A","timestamp":"2024-05-08T12:00:00Z","current_congestion_pct":80}`)
	require.Equal(t, fiber.StatusOK, code)

	data := body["data"].(map[string]any)
	forecast := data["forecast"].([]any)
	require.Len(t, forecast, 6)
	first := forecast[0].(map[string]any)
	assert.Equal(t, "2024-05-08T13:00:00Z", first["time"])
	assert.InDelta(t, 71.0, first["congestion"], 1e-9)
	assert.Equal(t, true, data["anchored"])
	assert.Equal(t, service.AlertSevere, data["alert_level"])
	assert.Len(t, data["history"], 24)
}

func TestForecastEndpointErrors(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})
	future := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"road_id":`, fiber.StatusBadRequest},
		{"missing road", `{"timestamp":"2024-05-08T12:00:00Z"}`, fiber.StatusBadRequest},
		{"future timestamp", fmt.Sprintf(`{"road_id":"A","timestamp":"%s"}`, future), fiber.StatusBadRequest},
		{"live out of range", `{"road_id":"A","timestamp":"2024-05-08T12:00:00Z","current_congestion_pct":140}`, fiber.StatusBadRequest},
		{"unknown segment", `{"road_id":"NOPE","timestamp":"2024-05-08T12:00:00Z"}`, fiber.StatusNotFound},
		{"insufficient history", `{"road_id":"SHORT","timestamp":"2024-05-08T12:00:00Z"}`, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, app, nethttp.MethodPost, "/api/v1/forecast", tt.body)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, true, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestForecastEndpointModelUnavailable(t *testing.T) {
	app, _ := newTestApp(t, nil)

	code, body := do(t, app, nethttp.MethodPost, "/api/v1/forecast", `{"road_id":"A","timestamp":"2024-05-08T12:00:00Z"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "Forecast model is not loaded", body["message"])
}

func TestSearchEndpoint(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})

	code, body := do(t, app, nethttp.MethodPost, "/api/v1/search", `{"road_id":"A","min_congestion":40,"limit":5}`)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 5.0, body["count"])
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, 50.0, first["congestion_pct"])

	code, _ = do(t, app, nethttp.MethodPost, "/api/v1/search", `{"min_congestion":60,"max_congestion":40}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestHotspotsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})

	code, body := do(t, app, nethttp.MethodGet, "/api/v1/hotspots?timestamp=2024-05-08T12:00:00Z&limit=5", "")
	require.Equal(t, fiber.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 1.0, data["segments_evaluated"])
	assert.Len(t, data["hotspots"], 1)
	assert.Equal(t, []any{"SHORT"}, data["segments_skipped"])

	code, _ = do(t, app, nethttp.MethodGet, "/api/v1/hotspots?timestamp=yesterday", "")
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, constPredictor{0.5})
	do(t, app, nethttp.MethodGet, "/health", "")

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `congestion_requests_total{endpoint="/health",method="GET",status="200"}`)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{fmt.Errorf("%w: bad", domain.ErrInvalidRequest), fiber.StatusBadRequest},
		{&domain.InsufficientHistoryError{RoadID: "A", Need: 24}, fiber.StatusNotFound},
		{fmt.Errorf("%w: X", domain.ErrSegmentNotFound), fiber.StatusNotFound},
		{fmt.Errorf("%w after 5s", service.ErrHistoryTimeout), fiber.StatusGatewayTimeout},
		{service.ErrModelUnavailable, fiber.StatusServiceUnavailable},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusOf(tt.err)
		assert.Equal(t, tt.want, code, tt.err.Error())
	}
}
