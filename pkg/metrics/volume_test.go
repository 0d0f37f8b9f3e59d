package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResiduals(t *testing.T) {
	// Two volumes of 4 voxels; voxel 3 is outside the mask.
	data := []float64{1, 2, 3, 100, 2, 2, 2, 100}
	img := saveImage(t, "res.nii.gz", data, []int{2, 2, 1, 2})
	mask := []float64{1, 1, 1, 0}

	rec := NewRecord()
	require.NoError(t, Residuals(rec, img, mask))

	res, _ := rec.Get(KeyResMean)
	require.Len(t, res.Floats(), 2)
	assert.InDelta(t, (1.0+4+9)/3, res.Floats()[0], 1e-12)
	assert.InDelta(t, 4, res.Floats()[1], 1e-12)
}

func TestResidualsMaskMismatchFatal(t *testing.T) {
	img := saveImage(t, "res.nii", []float64{1, 2, 3, 4}, []int{2, 2, 1, 1})
	rec := NewRecord()
	require.Error(t, Residuals(rec, img, []float64{1, 1}))
}

func TestFieldDisplacement(t *testing.T) {
	// Field values {10, -10, 30} Hz scaled by readout 0.05 give
	// displacements {0.5, -0.5, 1.5}; population std is sqrt(2/3).
	img := saveImage(t, "field.nii", []float64{10, -10, 30, 999}, []int{2, 2, 1})
	mask := []float64{1, 1, 1, 0}

	rec := NewRecord()
	require.NoError(t, FieldDisplacement(rec, img, mask, 0.05))

	std, ok := rec.Get(KeyFieldDispStd)
	require.True(t, ok)
	assert.InDelta(t, 0.81649658, std.Float(), 1e-6)
}

func TestFieldDisplacementShapeFatal(t *testing.T) {
	img := saveImage(t, "field.nii", []float64{1, 2}, []int{2, 1, 1})
	rec := NewRecord()
	require.Error(t, FieldDisplacement(rec, img, []float64{1}, 0.05))
}
