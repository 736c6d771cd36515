package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_BoundsAndConstantColumn(t *testing.T) {
	m := [][]float64{
		{1, 5, 0.2},
		{3, 5, 0.8},
		{2, 5, 0.5},
	}
	s, err := Fit(m)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 5, 0.2}, s.Min)
	// Constant column is nudged so max = min + 1.
	assert.Equal(t, []float64{3, 6, 0.8}, s.Max)

	scaled, err := s.Transform(m)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, scaled[0][0], 1e-12)
	assert.InDelta(t, 1.0, scaled[1][0], 1e-12)
	assert.InDelta(t, 0.5, scaled[2][0], 1e-12)
	for _, row := range scaled {
		assert.Equal(t, 0.0, row[1], "constant column maps to 0")
	}
}

func TestFit_RejectsEmptyAndRagged(t *testing.T) {
	_, err := Fit(nil)
	assert.Error(t, err)

	_, err = Fit([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTransform_BeforeFit(t *testing.T) {
	var s Scaler
	_, err := s.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = s.InverseTarget([]float64{0.5}, 0)
	assert.ErrorIs(t, err, ErrNotFitted)

	var nilScaler *Scaler
	_, err = nilScaler.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestTransform_WidthMismatch(t *testing.T) {
	s, err := Fit([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	_, err = s.Transform([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	assert.ErrorIs(t, s.CheckSchema(DefaultSchema()), ErrSchemaMismatch)
}

func TestInverseTarget_RoundTrip(t *testing.T) {
	schema := DefaultSchema()
	m := BuildMatrix(schema, syntheticReadings("AIR_1", 72, 20), nil)
	s, err := Fit(m)
	require.NoError(t, err)

	lo, hi := s.Min[schema.Target], s.Max[schema.Target]
	var xs []float64
	for i := 0; i <= 50; i++ {
		xs = append(xs, lo+(hi-lo)*float64(i)/50)
	}

	scaled, err := s.TransformTarget(xs, schema.Target)
	require.NoError(t, err)
	back, err := s.InverseTarget(scaled, schema.Target)
	require.NoError(t, err)

	for i := range xs {
		assert.InDelta(t, xs[i], back[i], 1e-12)
		assert.GreaterOrEqual(t, scaled[i], -1e-12)
		assert.LessOrEqual(t, scaled[i], 1+1e-12)
	}
}

func TestScaler_SaveLoadRoundtrip(t *testing.T) {
	m := BuildMatrix(DefaultSchema(), syntheticReadings("AIR_1", 48, 20), nil)
	s, err := Fit(m)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "models", "scaler.json")
	require.NoError(t, s.Save(path))

	loaded, err := LoadScaler(path)
	require.NoError(t, err)
	assert.Equal(t, s.Min, loaded.Min)
	assert.Equal(t, s.Max, loaded.Max)
	require.NoError(t, loaded.CheckSchema(DefaultSchema()))

	// Re-saving yields the same bytes.
	path2 := filepath.Join(dir, "scaler2.json")
	require.NoError(t, loaded.Save(path2))
	a, err := os.ReadFile(path)
	require.NoError(t, err)
	b, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadScaler_RejectsInconsistentArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"min":[0,1],"max":[1]}`), 0o644))

	_, err := LoadScaler(path)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}
