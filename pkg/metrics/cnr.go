package metrics

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"dmriqc/pkg/nifti"
)

// CNR summarises the contrast-to-noise maps: per-channel mean and population
// standard deviation over voxels that are inside the mask and finite, rounded
// to the given number of decimals. Channel 0 is the b=0 SNR map; channels
// 1..S follow the diffusion shells in ascending order, so the image must
// carry exactly 1+nDWShells channels. Non-finite voxels inside the mask are
// reported as a data-quality warning and excluded, never fatal.
func CNR(rec *Record, img *nifti.Image, mask []float64, nDWShells, decimals int, log *zap.Logger) error {
	if img.NVols() != 1+nDWShells {
		return configErrf(img.Path, "CNR map has %d channels, expected 1 baseline + %d shells", img.NVols(), nDWShells)
	}

	means := make([]float64, 1+nDWShells)
	stds := make([]float64, 1+nDWShells)
	nonFinite := 0
	for c := 0; c <= nDWShells; c++ {
		vals, dropped := maskedVals(img.Volume(c), mask, true)
		nonFinite += dropped
		means[c] = roundTo(stat.Mean(vals, nil), decimals)
		stds[c] = roundTo(math.Sqrt(stat.PopVariance(vals, nil)), decimals)
	}
	if nonFinite > 0 {
		log.Warn("non-finite values detected in the CNR maps",
			zap.String("file", img.Path), zap.Int("voxels", nonFinite))
	}

	rec.SetVector(KeyCNRMeanBVal, means)
	rec.SetVector(KeyCNRStdBVal, stds)
	return nil
}
