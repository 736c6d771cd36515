package postgres

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/congestion/internal/domain"
)

// MockRepository implements domain.ReadingRepository in memory for demo mode
// and tests. Readings are kept sorted per segment and unique by timestamp.
type MockRepository struct {
	mu       sync.RWMutex
	segments map[string]domain.Segment
	readings map[string][]domain.Reading
	logs     []domain.ForecastLog
}

// NewMockRepository creates a repository holding segments and readings.
// Segments referenced only by readings are derived from the first reading.
func NewMockRepository(segments []domain.Segment, readings []domain.Reading) *MockRepository {
	r := &MockRepository{
		segments: make(map[string]domain.Segment, len(segments)),
		readings: make(map[string][]domain.Reading),
	}
	for _, s := range segments {
		r.segments[s.RoadID] = s
	}
	r.AddReadings(readings...)
	return r
}

// AddReadings inserts readings; a reading replaces any existing one at the same timestamp
func (r *MockRepository) AddReadings(readings ...domain.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	touched := make(map[string]bool)
	for _, rd := range readings {
		if _, ok := r.segments[rd.RoadID]; !ok {
			r.segments[rd.RoadID] = domain.Segment{
				RoadID:      rd.RoadID,
				RoadName:    rd.RoadName,
				SegmentName: rd.SegmentName,
				Lat:         rd.Lat,
				Lon:         rd.Lon,
				RoadClass:   rd.RoadClass,
			}
		}
		r.readings[rd.RoadID] = append(r.readings[rd.RoadID], rd)
		touched[rd.RoadID] = true
	}

	for id := range touched {
		rows := r.readings[id]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
		uniq := rows[:0]
		for _, rd := range rows {
			if n := len(uniq); n > 0 && uniq[n-1].Timestamp.Equal(rd.Timestamp) {
				uniq[n-1] = rd
				continue
			}
			uniq = append(uniq, rd)
		}
		r.readings[id] = uniq
	}
}

// LatestBefore returns up to limit readings strictly before `before`, oldest first
func (r *MockRepository) LatestBefore(ctx context.Context, roadID string, before time.Time, limit int) ([]domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.readings[roadID]
	end := sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(before) })
	start := max(0, end-limit)
	return append([]domain.Reading(nil), rows[start:end]...), nil
}

// GetSegment returns segment metadata or domain.ErrSegmentNotFound
func (r *MockRepository) GetSegment(ctx context.Context, roadID string) (domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.segments[roadID]
	if !ok {
		return domain.Segment{}, fmt.Errorf("%w: %s", domain.ErrSegmentNotFound, roadID)
	}
	return s, nil
}

// ListSegments returns every segment ordered by road name
func (r *MockRepository) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Segment, 0, len(r.segments))
	for _, s := range r.segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoadName != out[j].RoadName {
			return out[i].RoadName < out[j].RoadName
		}
		return out[i].RoadID < out[j].RoadID
	})
	return out, nil
}

// TimeRange returns the earliest and latest reading and the count for a segment
func (r *MockRepository) TimeRange(ctx context.Context, roadID string) (domain.TimeRange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.readings[roadID]
	tr := domain.TimeRange{RoadID: roadID, TotalReadings: len(rows)}
	if len(rows) > 0 {
		earliest, latest := rows[0].Timestamp, rows[len(rows)-1].Timestamp
		tr.Earliest, tr.Latest = &earliest, &latest
	}
	return tr, nil
}

// SearchReadings filters stored readings, newest first
func (r *MockRepository) SearchReadings(ctx context.Context, q domain.ReadingQuery) ([]domain.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Reading
	for id, rows := range r.readings {
		if q.RoadID != "" && id != q.RoadID {
			continue
		}
		for _, rd := range rows {
			if matchesQuery(rd, q) {
				matched = append(matched, rd)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].RoadID < matched[j].RoadID
	})

	limit := searchLimit(q.Limit)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	results := make([]domain.SearchResult, len(matched))
	for i, rd := range matched {
		results[i] = domain.SearchResult{
			RoadID:         rd.RoadID,
			SegmentName:    rd.SegmentName,
			RoadName:       rd.RoadName,
			Timestamp:      rd.Timestamp,
			CongestionPct:  congestionPct(rd.CongestionLevel),
			CongestionBand: rd.CongestionBand,
		}
	}
	return results, nil
}

func matchesQuery(rd domain.Reading, q domain.ReadingQuery) bool {
	if q.StartTime != nil && rd.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && !rd.Timestamp.Before(*q.EndTime) {
		return false
	}
	if q.MinCongestion != nil && rd.CongestionLevel < *q.MinCongestion/100 {
		return false
	}
	if q.MaxCongestion != nil && rd.CongestionLevel > *q.MaxCongestion/100 {
		return false
	}
	return true
}

// SaveForecastLog keeps the entry in memory
func (r *MockRepository) SaveForecastLog(ctx context.Context, entry domain.ForecastLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	return nil
}

// ForecastLogs returns a copy of the saved log entries
func (r *MockRepository) ForecastLogs() []domain.ForecastLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ForecastLog(nil), r.logs...)
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
