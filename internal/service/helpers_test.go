package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartcity/congestion/internal/domain"
	"github.com/smartcity/congestion/internal/preprocess"
	"github.com/smartcity/congestion/internal/repository/postgres"
)

// refTime is a Wednesday noon; fixtures end strictly before it
var refTime = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

// readingsBefore returns n hourly readings ending one hour before refTime
func readingsBefore(roadID string, n int, level float64) []domain.Reading {
	out := make([]domain.Reading, n)
	start := refTime.Add(-time.Duration(n) * time.Hour)
	for i := range out {
		ts := start.Add(time.Duration(i) * time.Hour)
		out[i] = domain.Reading{
			RoadID:          roadID,
			RoadName:        "Road " + roadID,
			SegmentName:     "Segment " + roadID,
			Lat:             19.07,
			Lon:             72.87,
			Timestamp:       ts,
			Hour:            ts.Hour(),
			DayOfWeek:       domain.WeekdayIndex(ts),
			CongestionLevel: level,
		}
	}
	return out
}

// identityScaler leaves every column unchanged
func identityScaler(width int) *preprocess.Scaler {
	s := &preprocess.Scaler{Min: make([]float64, width), Max: make([]float64, width)}
	for i := range s.Max {
		s.Max[i] = 1
	}
	return s
}

// stubPredictor returns a fixed output and records the last input
type stubPredictor struct {
	out   []float64
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	last [][]float64
}

func (p *stubPredictor) Predict(x [][]float64) ([]float64, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.last = x
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return append([]float64(nil), p.out...), nil
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// persistencePredictor repeats the last observed target value
type persistencePredictor struct {
	target, horizon int
}

func (p persistencePredictor) Predict(x [][]float64) ([]float64, error) {
	row := x[p.target]
	return constant(row[len(row)-1], p.horizon), nil
}

// newTestService wires a forecaster over an in-memory repository with a fixed clock
func newTestService(repo ReadingRepository, model Predictor, schema preprocess.Schema) *ForecastService {
	svc, err := NewForecastService(repo, model, identityScaler(schema.Len()), schema, DefaultForecastConfig())
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return refTime.Add(time.Hour) }
	return svc
}

// slowRepo blocks history reads until the context ends
type slowRepo struct {
	*postgres.MockRepository
}

func (r slowRepo) LatestBefore(ctx context.Context, roadID string, before time.Time, limit int) ([]domain.Reading, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeSource is a scripted event source
type fakeSource struct {
	name   string
	events []domain.Event
	err    error
	calls  atomic.Int32
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) EventsNear(ctx context.Context, lat, lon, radiusKm float64, from, to time.Time) ([]domain.Event, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

var errSourceDown = errors.New("source down")
