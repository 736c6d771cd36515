package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/smartcity/congestion/internal/domain"
)

func TestBuildSearchFilter(t *testing.T) {
	where, args := buildSearchFilter(domain.ReadingQuery{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minPct, maxPct := 40.0, 90.0
	where, args = buildSearchFilter(domain.ReadingQuery{
		RoadID:        "AKR_2",
		StartTime:     &start,
		MinCongestion: &minPct,
		MaxCongestion: &maxPct,
	})
	assert.Equal(t, "WHERE road_id = $1 AND timestamp >= $2 AND congestion_level >= $3 AND congestion_level <= $4", where)
	assert.Equal(t, []any{"AKR_2", start, 0.4, 0.9}, args)
}

func TestSearchLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, searchLimit(0))
	assert.Equal(t, 25, searchLimit(25))
	assert.Equal(t, MaxSearchLimit, searchLimit(5000))
}

func TestCongestionPct(t *testing.T) {
	assert.Equal(t, 71.23, congestionPct(0.71234))
	assert.Equal(t, 0.0, congestionPct(0))
}
