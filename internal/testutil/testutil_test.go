package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigIsValid(t *testing.T) {
	cfg := Config()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.DoubleChannelCount())
}

func TestRawFileShape(t *testing.T) {
	o := DefaultRaw()
	o.Shots = []float64{0, 600}
	raw := RawFile(o, 3)

	assert.Equal(t, 4, raw.TimeLen())
	assert.Equal(t, []float64{60, 90, 120, 150}, raw.StopSeconds)
	assert.Equal(t, []float64{0, 600, 600, 600}, raw.Shots)
	require.Len(t, raw.Signals, 2)
	r, c := raw.Signals[1].Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 12, c)
	assert.Equal(t, RawValue(1, 3, 2), raw.Signals[1].At(0, 2))
}

func TestMeasurementFixture(t *testing.T) {
	m := Measurement(t, DefaultRaw())
	assert.Equal(t, 4, m.Len())
	assert.Equal(t, 3, m.Header().NumChannels)
}
