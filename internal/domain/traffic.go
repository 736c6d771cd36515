package domain

import (
	"fmt"
	"time"
)

// Reading is one hourly observation of a road segment.
// CongestionLevel is a fraction in [0,1]; it is also the forecast target.
type Reading struct {
	RoadID      string    `json:"road_id" db:"road_id"`
	RoadName    string    `json:"road_name" db:"road_name"`
	SegmentName string    `json:"segment_name" db:"segment_name"`
	Lat         float64   `json:"lat" db:"lat"`
	Lon         float64   `json:"lon" db:"lon"`
	RoadClass   string    `json:"road_class" db:"road_class"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`

	Hour      int `json:"hour" db:"hour"`
	DayOfWeek int `json:"day_of_week" db:"day_of_week"` // Monday = 0
	IsWeekend int `json:"is_weekend" db:"is_weekend"`
	Month     int `json:"month" db:"month"`

	HourlySpeedKph      float64 `json:"hourly_speed_kph" db:"hourly_speed_kph"`
	AvgSpeedKph         float64 `json:"avg_speed_kph" db:"avg_speed_kph"`
	TravelTimeS         float64 `json:"travel_time_s" db:"travel_time_s"`
	FreeFlowSpeedKph    float64 `json:"free_flow_speed_kph" db:"free_flow_speed_kph"`
	FreeFlowTravelTimeS float64 `json:"free_flow_travel_time_s" db:"free_flow_travel_time_s"`
	DelayRatio          float64 `json:"delay_ratio" db:"delay_ratio"`
	CongestionLevel     float64 `json:"congestion_level" db:"congestion_level"`
	CongestionBand      string  `json:"congestion_band" db:"congestion_band"`

	AccidentHotspotScore        float64 `json:"accident_hotspot_score" db:"accident_hotspot_score"`
	RecentIncidentCount         int     `json:"recent_incident_count" db:"recent_incident_count"`
	EnforcementViolationPattern float64 `json:"enforcement_violation_pattern" db:"enforcement_violation_pattern"`
	LongTermRiskPrior           float64 `json:"long_term_risk_prior" db:"long_term_risk_prior"`
}

// Segment is read-only metadata for a road stretch
type Segment struct {
	RoadID      string  `json:"road_id" db:"road_id"`
	RoadName    string  `json:"road_name" db:"road_name"`
	SegmentName string  `json:"segment_name" db:"segment_name"`
	Lat         float64 `json:"lat" db:"lat"`
	Lon         float64 `json:"lon" db:"lon"`
	RoadClass   string  `json:"road_class" db:"road_class"`
}

// TimeRange describes the readings available for a segment
type TimeRange struct {
	RoadID        string     `json:"road_id"`
	Earliest      *time.Time `json:"earliest"`
	Latest        *time.Time `json:"latest"`
	TotalReadings int        `json:"total_readings"`
}

// ReadingQuery filters stored readings. Congestion bounds are percentages.
type ReadingQuery struct {
	RoadID        string     `json:"road_id,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	MinCongestion *float64   `json:"min_congestion,omitempty"`
	MaxCongestion *float64   `json:"max_congestion,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// SearchResult is one row returned by a reading search
type SearchResult struct {
	RoadID         string    `json:"road_id"`
	SegmentName    string    `json:"segment_name"`
	RoadName       string    `json:"road_name"`
	Timestamp      time.Time `json:"timestamp"`
	CongestionPct  float64   `json:"congestion_pct"`
	CongestionBand string    `json:"congestion_band"`
}

// WeekdayIndex converts a Go weekday to Monday = 0 numbering.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Validate checks bounds and ordering of the filters
func (q ReadingQuery) Validate() error {
	for _, p := range []*float64{q.MinCongestion, q.MaxCongestion} {
		if p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("%w: congestion bounds must be within 0-100", ErrInvalidRequest)
		}
	}
	if q.MinCongestion != nil && q.MaxCongestion != nil && *q.MinCongestion > *q.MaxCongestion {
		return fmt.Errorf("%w: min_congestion exceeds max_congestion", ErrInvalidRequest)
	}
	if q.StartTime != nil && q.EndTime != nil && !q.EndTime.After(*q.StartTime) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidRequest)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	return nil
}
