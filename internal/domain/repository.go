package domain

import (
	"context"
	"time"
)

// ReadingRepository is the time-indexed document store consumed by the forecaster.
// The domain owns the interface; storage packages implement it.
type ReadingRepository interface {
	// LatestBefore returns up to limit readings of roadID with timestamp < before, oldest first
	LatestBefore(ctx context.Context, roadID string, before time.Time, limit int) ([]Reading, error)

	// GetSegment returns segment metadata or ErrSegmentNotFound
	GetSegment(ctx context.Context, roadID string) (Segment, error)

	// ListSegments returns every segment ordered by road name
	ListSegments(ctx context.Context) ([]Segment, error)

	// TimeRange returns the earliest/latest reading time for a segment
	TimeRange(ctx context.Context, roadID string) (TimeRange, error)

	// SearchReadings filters stored readings, newest first
	SearchReadings(ctx context.Context, q ReadingQuery) ([]SearchResult, error)

	// SaveForecastLog persists a served forecast
	SaveForecastLog(ctx context.Context, entry ForecastLog) error

	// Health checks store connectivity
	Health(ctx context.Context) error
}
