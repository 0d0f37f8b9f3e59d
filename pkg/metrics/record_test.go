package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulation(t *testing.T) {
	rec := NewRecord()
	rec.SetScalar(KeyMotionAbsMean, 0.1)
	rec.SetVector(KeyMotionAbs, []float64{0.1, 0.2})
	rec.SetMatrix(KeyMotionS2VTrans, [][]float64{{1, 2, 3}})

	assert.Equal(t, []Key{KeyMotionAbsMean, KeyMotionAbs, KeyMotionS2VTrans}, rec.Keys())
	assert.Equal(t, 3, rec.Len())

	v, ok := rec.Get(KeyMotionAbsMean)
	require.True(t, ok)
	assert.Equal(t, KindScalar, v.Kind())
	assert.Equal(t, 0.1, v.Float())

	v, _ = rec.Get(KeyMotionAbs)
	assert.Equal(t, KindVector, v.Kind())
	assert.Equal(t, []float64{0.1, 0.2}, v.Floats())

	v, _ = rec.Get(KeyMotionS2VTrans)
	assert.Equal(t, KindMatrix, v.Kind())
	assert.Equal(t, [][]float64{{1, 2, 3}}, v.FloatRows())
}

func TestRecordOverwriteKeepsOrder(t *testing.T) {
	rec := NewRecord()
	rec.SetScalar(KeyMotionAbsMean, 0.1)
	rec.SetScalar(KeyMotionRelMean, 0.2)
	rec.SetScalar(KeyMotionAbsMean, 0.3)

	assert.Equal(t, []Key{KeyMotionAbsMean, KeyMotionRelMean}, rec.Keys())
	v, _ := rec.Get(KeyMotionAbsMean)
	assert.Equal(t, 0.3, v.Float())
}

func TestRecordDelete(t *testing.T) {
	rec := NewRecord()
	rec.SetVector(KeyMotionS2VTransVar, []float64{1})
	rec.SetVector(KeyMotionS2VRotVar, []float64{2})
	rec.Delete(KeyMotionS2VTransVar)

	assert.False(t, rec.Has(KeyMotionS2VTransVar))
	assert.Equal(t, []Key{KeyMotionS2VRotVar}, rec.Keys())

	// Deleting an absent key is a no-op.
	rec.Delete(KeyMotionS2VTransVar)
	assert.Equal(t, 1, rec.Len())
}

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		val  Value
		want string
	}{
		{"scalar", Scalar(2.5), "2.5"},
		{"vector", Vector([]float64{1, 2}), "[1,2]"},
		{"matrix", Matrix([][]float64{{1, 2}, {3, 4}}), "[[1,2],[3,4]]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.val)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}
}
