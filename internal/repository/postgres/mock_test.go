package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/congestion/internal/domain"
)

var t0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func hourly(roadID string, n int, level float64) []domain.Reading {
	out := make([]domain.Reading, n)
	for i := range out {
		out[i] = domain.Reading{
			RoadID:          roadID,
			RoadName:        "Road " + roadID,
			SegmentName:     "Segment " + roadID,
			Timestamp:       t0.Add(time.Duration(i) * time.Hour),
			CongestionLevel: level,
			CongestionBand:  "Moderate",
		}
	}
	return out
}

func TestMockRepository_LatestBefore(t *testing.T) {
	repo := NewMockRepository(nil, hourly("A", 48, 0.5))
	ctx := context.Background()

	before := t0.Add(30 * time.Hour)
	got, err := repo.LatestBefore(ctx, "A", before, 24)
	require.NoError(t, err)
	require.Len(t, got, 24)
	assert.Equal(t, t0.Add(6*time.Hour), got[0].Timestamp)
	assert.Equal(t, t0.Add(29*time.Hour), got[23].Timestamp, "reading at the reference time is excluded")
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}

	got, err = repo.LatestBefore(ctx, "A", t0.Add(10*time.Hour), 24)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	got, err = repo.LatestBefore(ctx, "missing", before, 24)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMockRepository_LatestBeforeHonoursContext(t *testing.T) {
	repo := NewMockRepository(nil, hourly("A", 5, 0.5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.LatestBefore(ctx, "A", t0.Add(time.Hour), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockRepository_DuplicateTimestampsReplaced(t *testing.T) {
	repo := NewMockRepository(nil, hourly("A", 3, 0.2))
	repo.AddReadings(hourly("A", 1, 0.9)...)

	tr, err := repo.TimeRange(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 3, tr.TotalReadings)

	got, err := repo.LatestBefore(context.Background(), "A", t0.Add(time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].CongestionLevel)
}

func TestMockRepository_Segments(t *testing.T) {
	segs := []domain.Segment{
		{RoadID: "Z", RoadName: "Alpha Road"},
		{RoadID: "B", RoadName: "Beta Road"},
	}
	repo := NewMockRepository(segs, hourly("A", 2, 0.5))
	ctx := context.Background()

	list, err := repo.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"Z", "B", "A"}, []string{list[0].RoadID, list[1].RoadID, list[2].RoadID})

	s, err := repo.GetSegment(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Segment A", s.SegmentName)

	_, err = repo.GetSegment(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrSegmentNotFound)
}

func TestMockRepository_TimeRange(t *testing.T) {
	repo := NewMockRepository([]domain.Segment{{RoadID: "EMPTY"}}, hourly("A", 24, 0.5))
	ctx := context.Background()

	tr, err := repo.TimeRange(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 24, tr.TotalReadings)
	assert.Equal(t, t0, *tr.Earliest)
	assert.Equal(t, t0.Add(23*time.Hour), *tr.Latest)

	tr, err = repo.TimeRange(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Zero(t, tr.TotalReadings)
	assert.Nil(t, tr.Earliest)
}

func TestMockRepository_Search(t *testing.T) {
	readings := append(hourly("A", 10, 0.3), hourly("B", 10, 0.8)...)
	repo := NewMockRepository(nil, readings)
	ctx := context.Background()

	minPct := 50.0
	res, err := repo.SearchReadings(ctx, domain.ReadingQuery{MinCongestion: &minPct})
	require.NoError(t, err)
	require.Len(t, res, 10)
	for _, r := range res {
		assert.Equal(t, "B", r.RoadID)
		assert.Equal(t, 80.0, r.CongestionPct)
	}
	assert.True(t, res[0].Timestamp.After(res[9].Timestamp), "newest first")

	start, end := t0.Add(2*time.Hour), t0.Add(5*time.Hour)
	res, err = repo.SearchReadings(ctx, domain.ReadingQuery{RoadID: "A", StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, t0.Add(4*time.Hour), res[0].Timestamp)

	res, err = repo.SearchReadings(ctx, domain.ReadingQuery{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, res, 4)
}

func TestMockRepository_ForecastLogs(t *testing.T) {
	repo := NewMockRepository(nil, nil)
	require.NoError(t, repo.SaveForecastLog(context.Background(), domain.ForecastLog{RoadID: "A"}))
	logs := repo.ForecastLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "A", logs[0].RoadID)
}
