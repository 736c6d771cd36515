package preprocess

import (
	"math"
	"time"

	"github.com/smartcity/congestion/internal/domain"
)

var baseTime = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC) // a Monday

// syntheticReadings produces n hourly readings with a daily congestion cycle.
func syntheticReadings(roadID string, n int, speedOffset float64) []domain.Reading {
	out := make([]domain.Reading, n)
	for i := range out {
		ts := baseTime.Add(time.Duration(i) * time.Hour)
		dow := domain.WeekdayIndex(ts)
		weekend := 0
		if dow >= 5 {
			weekend = 1
		}
		level := 0.5 + 0.3*math.Sin(2*math.Pi*float64(ts.Hour())/24)
		out[i] = domain.Reading{
			RoadID:               roadID,
			Lat:                  19.07,
			Lon:                  72.87,
			Timestamp:            ts,
			Hour:                 ts.Hour(),
			DayOfWeek:            dow,
			IsWeekend:            weekend,
			Month:                int(ts.Month()),
			HourlySpeedKph:       speedOffset + float64(i),
			AvgSpeedKph:          40,
			TravelTimeS:          120 + 60*level,
			DelayRatio:           1 + level,
			CongestionLevel:      level,
			AccidentHotspotScore: 0.2,
			RecentIncidentCount:  i % 3,
			LongTermRiskPrior:    0.4,
		}
	}
	return out
}
