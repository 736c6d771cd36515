package preprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/congestion/internal/domain"
)

func TestCyclicTime(t *testing.T) {
	hs, hc, ds, dc := CyclicTime(0, 0)
	assert.InDelta(t, 0, hs, 1e-12)
	assert.InDelta(t, 1, hc, 1e-12)
	assert.InDelta(t, 0, ds, 1e-12)
	assert.InDelta(t, 1, dc, 1e-12)

	hs, hc, _, _ = CyclicTime(6, 0)
	assert.InDelta(t, 1, hs, 1e-12)
	assert.InDelta(t, 0, hc, 1e-12)

	hs, hc, _, _ = CyclicTime(12, 0)
	assert.InDelta(t, 0, hs, 1e-12)
	assert.InDelta(t, -1, hc, 1e-12)
}

func TestCyclicTime_MidnightWraps(t *testing.T) {
	s23, c23, _, _ := CyclicTime(23, 0)
	s0, c0, _, _ := CyclicTime(0, 0)
	s12, c12, _, _ := CyclicTime(12, 0)

	near := math.Hypot(s23-s0, c23-c0)
	far := math.Hypot(s12-s0, c12-c0)
	assert.Less(t, near, 0.3)
	assert.InDelta(t, 2, far, 1e-12)
}

func TestSchema_Layout(t *testing.T) {
	base := DefaultSchema()
	require.NoError(t, base.Validate())
	assert.Equal(t, 14, base.Len())
	assert.Equal(t, 4, base.Target)
	assert.False(t, base.HasEvents())

	ext := NewSchema(true)
	require.NoError(t, ext.Validate())
	assert.Equal(t, 19, ext.Len())
	assert.Equal(t, base.Target, ext.Target)
	assert.True(t, ext.HasEvents())
	assert.Equal(t, BaseColumns, ext.Columns[:14])
}

func TestSchema_ValidateRejectsUnknownColumn(t *testing.T) {
	s := Schema{Columns: []string{"hourly_speed_kph", "rainfall"}, Target: 0}
	assert.ErrorIs(t, s.Validate(), ErrSchemaMismatch)

	s = Schema{Columns: []string{"hourly_speed_kph", TargetColumn}, Target: 0}
	assert.ErrorIs(t, s.Validate(), ErrSchemaMismatch)
}

func TestVector_ColumnOrder(t *testing.T) {
	r := syntheticReadings("AIR_1", 7, 30)[6]
	v := DefaultSchema().Vector(r, EventFeatures{})

	require.Len(t, v, 14)
	assert.Equal(t, r.HourlySpeedKph, v[0])
	assert.Equal(t, r.AvgSpeedKph, v[1])
	assert.Equal(t, r.TravelTimeS, v[2])
	assert.Equal(t, r.DelayRatio, v[3])
	assert.Equal(t, r.CongestionLevel, v[4])
	assert.Equal(t, r.AccidentHotspotScore, v[5])
	assert.Equal(t, float64(r.RecentIncidentCount), v[6])
	assert.Equal(t, r.EnforcementViolationPattern, v[7])
	assert.Equal(t, r.LongTermRiskPrior, v[8])

	hs, hc, ds, dc := CyclicTime(r.Hour, r.DayOfWeek)
	assert.Equal(t, []float64{hs, hc, ds, dc}, v[9:13])
	assert.Equal(t, float64(r.IsWeekend), v[13])
}

func TestBuildMatrix_NilEventsGivesZeroEventFeatures(t *testing.T) {
	readings := syntheticReadings("AIR_1", 5, 30)
	m := BuildMatrix(NewSchema(true), readings, nil)

	require.Len(t, m, 5)
	for _, row := range m {
		require.Len(t, row, 19)
		assert.Equal(t, []float64{0, 0, 0, 0, 0}, row[14:])
	}
}

func TestBuildMatrix_MatchesEventsPerReading(t *testing.T) {
	readings := syntheticReadings("AIR_1", 4, 30)
	ev := domain.Event{
		ID:                 "e1",
		Type:               "concert",
		Lat:                readings[0].Lat,
		Lon:                readings[0].Lon,
		Start:              readings[2].Timestamp,
		ExpectedAttendance: 2000,
	}
	m := BuildMatrix(NewSchema(true), readings, []domain.Event{ev})

	assert.Equal(t, 0.0, m[1][14], "not started yet")
	assert.InDelta(t, 6.0, m[2][14], 1e-9)
	assert.Equal(t, 1.0, m[3][15])
}

func TestTranspose(t *testing.T) {
	m := [][]float64{{1, 2, 3}, {4, 5, 6}}
	assert.Equal(t, [][]float64{{1, 4}, {2, 5}, {3, 6}}, Transpose(m))
	assert.Nil(t, Transpose(nil))
}
