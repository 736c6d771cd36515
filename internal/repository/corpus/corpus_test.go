package corpus

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartcity/congestion/internal/domain"
)

func TestLoadQuery(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := loadQuery(start, time.Time{})
	assert.NotContains(t, q, "$2")
	assert.Equal(t, []any{start}, args)
	assert.True(t, strings.HasSuffix(q, "ORDER BY road_id, timestamp"))

	end := start.Add(24 * time.Hour)
	q, args = loadQuery(start, end)
	assert.Contains(t, q, "timestamp < $2")
	assert.Equal(t, []any{start, end}, args)
}

func TestNamedPlaceholders(t *testing.T) {
	assert.Equal(t, ":a, :b, :c", namedPlaceholders("a, b,\n\tc"))
	assert.Contains(t, insertReadingQuery, ":long_term_risk_prior)")
	assert.Contains(t, insertReadingQuery, "(:road_id, :road_name")
}

func TestSegmentsOf(t *testing.T) {
	readings := []domain.Reading{
		{RoadID: "B", RoadName: "Beta"},
		{RoadID: "A", RoadName: "Alpha"},
		{RoadID: "B", RoadName: "Beta"},
	}
	segs := segmentsOf(readings)
	assert.Len(t, segs, 2)
	assert.Equal(t, "B", segs[0].RoadID)
	assert.Equal(t, "Alpha", segs[1].RoadName)
}
