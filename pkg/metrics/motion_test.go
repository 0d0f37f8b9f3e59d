package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMotion(t *testing.T) {
	rec := NewRecord()
	motion := [][]float64{{0.1, 0.0}, {0.2, 0.3}, {0.3, 0.6}}
	require.NoError(t, Motion(rec, motion, 3))

	absMean, _ := rec.Get(KeyMotionAbsMean)
	relMean, _ := rec.Get(KeyMotionRelMean)
	assert.InDelta(t, 0.2, absMean.Float(), 1e-12)
	assert.InDelta(t, 0.3, relMean.Float(), 1e-12)

	abs, _ := rec.Get(KeyMotionAbs)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, abs.Floats())
}

func TestMotionRowMismatchFatal(t *testing.T) {
	rec := NewRecord()
	err := Motion(rec, [][]float64{{0.1, 0.2}}, 3)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, rec.Len())
}

func TestParameters(t *testing.T) {
	rec := NewRecord()
	// Two volumes: translations 1..3, rotations pi and 0, EC terms 2/4 etc.
	params := [][]float64{
		{1, 2, 3, math.Pi, 0, 0, 2, 0, 1},
		{3, 2, 1, 0, 0, 0, 4, 0, 1},
	}
	require.NoError(t, Parameters(rec, params, 2))

	trans, _ := rec.Get(KeyMotionV2VTransMean)
	assert.Equal(t, []float64{2, 2, 2}, trans.Floats())

	// Rotations convert to degrees before averaging.
	rot, _ := rec.Get(KeyMotionV2VRotMean)
	assert.InDelta(t, 90, rot.Floats()[0], 1e-12)
	assert.Equal(t, 0.0, rot.Floats()[1])

	// Population std: values {2,4} -> std 1; constant column -> 0.
	ec, _ := rec.Get(KeyMotionECLinStd)
	assert.InDelta(t, 1, ec.Floats()[0], 1e-12)
	assert.Equal(t, 0.0, ec.Floats()[1])
	assert.Equal(t, 0.0, ec.Floats()[2])
}

func TestParametersShapeFatal(t *testing.T) {
	rec := NewRecord()
	err := Parameters(rec, [][]float64{{1, 2, 3}}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}
