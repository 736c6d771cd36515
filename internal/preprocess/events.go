package preprocess

import (
	"time"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/pkg/utils"
)

const (
	// EventRadiusKm bounds which events contribute to a reading
	EventRadiusKm = 10.0
	// ProximityRadiusKm bounds the concert/sports/high-impact flags
	ProximityRadiusKm = 5.0
	// MaxImpactScore caps the summed impact of all nearby events
	MaxImpactScore = 10.0
	// maxSizeImpact caps the attendance multiplier (5000+ attendees)
	maxSizeImpact = 5.0
)

// typeImpact weights event categories by their effect on traffic
var typeImpact = map[string]float64{
	"concert":       3.0,
	"sports":        2.5,
	"festival":      2.0,
	"event":         1.5,
	"entertainment": 1.2,
	"shopping":      0.8,
	"business":      0.6,
	"tourism":       0.7,
	"transport":     1.0,
	"other":         0.5,
}

// EventFeatures are the per-reading event-impact features
type EventFeatures struct {
	ImpactScore   float64
	ConcertNearby int
	SportsNearby  int
	Density       int
	HighImpact    int
}

// TypeImpact returns the multiplier for an event category
func TypeImpact(eventType string) float64 {
	if w, ok := typeImpact[eventType]; ok {
		return w
	}
	return typeImpact["other"]
}

// sizeImpact scales impact by expected attendance, falling back to venue capacity
func sizeImpact(e domain.Event) float64 {
	switch {
	case e.ExpectedAttendance > 0:
		return min(float64(e.ExpectedAttendance)/1000, maxSizeImpact)
	case e.VenueCapacity > 0:
		return min(float64(e.VenueCapacity)/1000, maxSizeImpact)
	default:
		return 1.0
	}
}

// ComputeEventFeatures scores the events active at `at` within EventRadiusKm of (lat, lon).
// Impact decays linearly with distance and is capped at MaxImpactScore.
func ComputeEventFeatures(lat, lon float64, at time.Time, events []domain.Event) EventFeatures {
	var f EventFeatures

	for _, e := range events {
		if !e.ActiveAt(at) {
			continue
		}
		distance := utils.Haversine(lat, lon, e.Lat, e.Lon)
		if distance > EventRadiusKm {
			continue
		}

		f.Density++
		distanceFactor := max(0, 1-distance/EventRadiusKm)
		f.ImpactScore += TypeImpact(e.Type) * distanceFactor * sizeImpact(e)

		if distance <= ProximityRadiusKm {
			switch e.Type {
			case "concert":
				f.ConcertNearby = 1
				f.HighImpact = 1
			case "sports":
				f.SportsNearby = 1
				f.HighImpact = 1
			case "festival":
				f.HighImpact = 1
			}
		}
	}

	f.ImpactScore = min(f.ImpactScore, MaxImpactScore)
	return f
}
