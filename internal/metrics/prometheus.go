// Package metrics exports forecaster metrics to Prometheus
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congestion_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration is the HTTP latency by route
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "congestion_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// ForecastDuration covers one forecast end to end, cache misses only
	ForecastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "congestion_forecast_duration_seconds",
			Help:    "Forecast latency including history fetch and inference",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// HistoryFetchDuration is the store latency of the history window query
	HistoryFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "congestion_history_fetch_duration_seconds",
			Help:    "Latency of fetching the history window",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)

	// InsufficientHistory counts forecasts refused for lack of readings
	InsufficientHistory = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "congestion_insufficient_history_total",
			Help: "Forecast requests with fewer readings than the input window",
		},
	)

	// EventFallbacks counts event lookups that fell back to empty event features
	EventFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congestion_event_fallbacks_total",
			Help: "Event source failures recovered with empty event features",
		},
		[]string{"source"},
	)

	// CacheResults counts cache lookups by cache and outcome
	CacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congestion_cache_results_total",
			Help: "Cache lookups by outcome (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)

	// AlertsTotal counts served alerts by level
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congestion_alerts_total",
			Help: "Forecast alerts by level",
		},
		[]string{"level"},
	)

	// AnchoredForecasts counts forecasts whose first step was blended with a live reading
	AnchoredForecasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "congestion_anchored_forecasts_total",
			Help: "Forecasts anchored to a live congestion observation",
		},
	)

	// ModelLoaded is 1 when model weights and scaler are loaded
	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "congestion_model_loaded",
			Help: "Whether the forecast model is loaded (1) or unavailable (0)",
		},
	)

	// SegmentsEvaluated is the number of segments in the last hotspot sweep
	SegmentsEvaluated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "congestion_hotspot_segments_evaluated",
			Help: "Segments forecast during the last hotspot sweep",
		},
	)
)
