package domain

import (
	"time"

	"github.com/google/uuid"
)

// ForecastRequest asks for the horizon forecast of one segment starting at Timestamp
type ForecastRequest struct {
	RoadID    string    `json:"road_id"`
	Timestamp time.Time `json:"timestamp"`
	// CurrentCongestionPct is an optional live observation (0-100) used to anchor +1h
	CurrentCongestionPct *float64 `json:"current_congestion_pct,omitempty"`
}

// TimePoint is one (time, congestion %) pair of a series
type TimePoint struct {
	Time       time.Time `json:"time"`
	Congestion float64   `json:"congestion"`
}

// ForecastResponse carries the history window and the forecast for one segment
type ForecastResponse struct {
	ZoneID      string      `json:"zone_id"`
	SegmentName string      `json:"segment_name"`
	RoadName    string      `json:"road_name"`
	Timestamp   time.Time   `json:"timestamp"`
	History     []TimePoint `json:"history"`
	Forecast    []TimePoint `json:"forecast"`
	Bands       []string    `json:"bands"`
	Anchored    bool        `json:"anchored"`
	AlertLevel  string      `json:"alert_level"`
	Alert       string      `json:"alert"`
}

// ForecastLog is the persisted record of a served forecast
type ForecastLog struct {
	ID            uuid.UUID `json:"id"`
	RoadID        string    `json:"road_id"`
	Timestamp     time.Time `json:"timestamp"`
	PlusOneHour   float64   `json:"plus_1h_pct"`
	AlertLevel    string    `json:"alert_level"`
	Anchored      bool      `json:"anchored"`
	LivePct       *float64  `json:"live_pct,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	HorizonValues []float64 `json:"horizon_values"`
}

// NewForecastLog builds a log entry for a response
func NewForecastLog(req ForecastRequest, resp ForecastResponse) ForecastLog {
	values := make([]float64, len(resp.Forecast))
	for i, p := range resp.Forecast {
		values[i] = p.Congestion
	}
	var first float64
	if len(values) > 0 {
		first = values[0]
	}
	return ForecastLog{
		ID:            uuid.New(),
		RoadID:        req.RoadID,
		Timestamp:     req.Timestamp,
		PlusOneHour:   first,
		AlertLevel:    resp.AlertLevel,
		Anchored:      resp.Anchored,
		LivePct:       req.CurrentCongestionPct,
		GeneratedAt:   time.Now(),
		HorizonValues: values,
	}
}

// Hotspot is one ranked entry of the network overview
type Hotspot struct {
	Segment     Segment `json:"segment"`
	PlusOneHour float64 `json:"plus_1h_pct"`
	Peak        float64 `json:"peak_pct"`
	Band        string  `json:"band"`
	AlertLevel  string  `json:"alert_level"`
}

// HotspotReport is the network-wide ranking at one reference time
type HotspotReport struct {
	Timestamp time.Time `json:"timestamp"`
	Hotspots  []Hotspot `json:"hotspots"`
	Evaluated int       `json:"segments_evaluated"`
	Skipped   []string  `json:"segments_skipped,omitempty"`
}
