package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"dmriqc/pkg/nifti"
)

// Residuals computes the per-volume mean squared correction residual over
// masked voxels. The caller should release the residual image right after.
func Residuals(rec *Record, img *nifti.Image, mask []float64) error {
	sp := img.SpatialDims()
	if sp[0]*sp[1]*sp[2] != len(mask) {
		return configErrf(img.Path, "residuals and mask dimensions are not consistent")
	}

	nVols := img.NVols()
	means := make([]float64, nVols)
	for t := 0; t < nVols; t++ {
		vol := img.Volume(t)
		sum, n := 0.0, 0
		for i, v := range vol {
			if mask[i] != 0 {
				sum += v * v
				n++
			}
		}
		if n > 0 {
			means[t] = sum / float64(n)
		}
	}
	rec.SetVector(KeyResMean, means)
	return nil
}

// FieldDisplacement scales the susceptibility field (Hz) by the readout-time
// term of the acquisition parameters to obtain a voxel displacement field,
// and reports its population standard deviation over masked voxels.
func FieldDisplacement(rec *Record, field *nifti.Image, mask []float64, readoutTime float64) error {
	data := field.Data()
	if len(data) != len(mask) {
		return configErrf(field.Path, "field map and mask dimensions are not consistent")
	}

	disp := make([]float64, 0, len(data))
	for i, v := range data {
		if mask[i] != 0 {
			disp = append(disp, v*readoutTime)
		}
	}
	rec.SetScalar(KeyFieldDispStd, math.Sqrt(stat.PopVariance(disp, nil)))
	return nil
}
