package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(19.07, 72.87, 19.07, 72.87))

	// One degree of latitude is about 111 km.
	d := Haversine(19.0, 72.0, 20.0, 72.0)
	assert.InDelta(t, 111.19, d, 0.1)

	assert.InDelta(t, d, Haversine(20.0, 72.0, 19.0, 72.0), 1e-9, "distance is symmetric")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(250, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 71.0, RoundTo(70.99999999, 2))
	assert.Equal(t, 57.79, RoundTo(57.7912, 2))
}

func TestLerp(t *testing.T) {
	assert.InDelta(t, 0.71, Lerp(0.5, 0.8, 0.7), 1e-12)
	assert.Equal(t, 2.0, Lerp(2, 10, 0))
}

func TestLocationKey(t *testing.T) {
	assert.Equal(t, "19.08_72.88", LocationKey(19.0760, 72.8777))
	assert.Equal(t, LocationKey(19.0761, 72.8779), LocationKey(19.0760, 72.8777))
}
