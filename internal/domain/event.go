package domain

import (
	"context"
	"time"
)

// Event is a geotagged happening that may affect nearby traffic
type Event struct {
	ID                 string     `json:"event_id"`
	Name               string     `json:"name"`
	Type               string     `json:"event_type"` // "concert", "sports", "festival", ...
	Lat                float64    `json:"latitude"`
	Lon                float64    `json:"longitude"`
	Start              time.Time  `json:"start_time"`
	End                *time.Time `json:"end_time,omitempty"`
	ExpectedAttendance int        `json:"expected_attendance,omitempty"`
	VenueCapacity      int        `json:"venue_capacity,omitempty"`
	Description        string     `json:"description,omitempty"`
	Source             string     `json:"source"`
}

// ActiveAt reports whether the event is running at t. Open-ended events stay active.
func (e Event) ActiveAt(t time.Time) bool {
	if e.Start.After(t) {
		return false
	}
	return e.End == nil || !e.End.Before(t)
}

// EventSource fetches events near a location that are active within [from, to]
type EventSource interface {
	Name() string
	EventsNear(ctx context.Context, lat, lon, radiusKm float64, from, to time.Time) ([]Event, error)
}
