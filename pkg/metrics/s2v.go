package metrics

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// ExcitationGrouping lists, per excitation, the spatial slices acquired
// together (multiband). A nil grouping means one excitation per slice.
type ExcitationGrouping [][]int

// S2V summarises the slice-to-volume motion estimates. The table carries one
// row per excitation per volume, six columns (translations then rotations).
// Within each volume the sample variance (divisor n-1) is taken across the
// admitted excitations, then the root of the mean variance across volumes is
// reported per axis.
//
// An explicit grouping admits only excitations whose slices cover more than
// minMaskVoxels masked voxels; without one, every slice is an excitation and
// all are admitted. A row count inconsistent with volumes x excitations skips
// the whole metric with a warning instead of failing the run.
func S2V(rec *Record, s2v [][]float64, nVols int, mask []float64, maskDims []int, grouping ExcitationGrouping, minMaskVoxels int, log *zap.Logger) error {
	for _, row := range s2v {
		if len(row) < 6 {
			return configErrf("", "slice-to-volume table has %d columns, expected 6", len(row))
		}
	}

	nEx := maskDims[2]
	if grouping != nil {
		nEx = len(grouping)
	} else {
		log.Warn("no slice acquisition order provided, assuming one excitation per slice")
	}

	if nEx*nVols != len(s2v) {
		log.Warn("slice-to-volume row count does not match volumes x excitations, skipping s2v metrics",
			zap.Int("rows", len(s2v)), zap.Int("expected", nEx*nVols))
		return nil
	}

	admitted := admitExcitations(grouping, mask, maskDims, minMaskVoxels)
	if len(admitted) < 2 {
		log.Warn("fewer than two excitations pass the mask threshold, skipping s2v metrics",
			zap.Int("admitted", len(admitted)))
		return nil
	}

	trans := columns(s2v, 0, 3)
	rot := scaleMatrix(columns(s2v, 3, 6), radToDeg)
	rec.SetMatrix(KeyMotionS2VTrans, trans)
	rec.SetMatrix(KeyMotionS2VRot, rot)

	transVar := make([][]float64, nVols)
	rotVar := make([][]float64, nVols)
	for v := 0; v < nVols; v++ {
		transVar[v] = excitationVariance(trans, v*nEx, admitted)
		rotVar[v] = excitationVariance(rot, v*nEx, admitted)
	}
	rec.SetMatrix(KeyMotionS2VTransVar, transVar)
	rec.SetMatrix(KeyMotionS2VRotVar, rotVar)

	rec.SetVector(KeyMotionS2VTransStdMean, rootMeanCols(transVar))
	rec.SetVector(KeyMotionS2VRotStdMean, rootMeanCols(rotVar))
	return nil
}

// admitExcitations selects the excitations whose slices carry enough masked
// voxels to make the motion estimate trustworthy. Without an explicit
// grouping every slice counts as one excitation and all are admitted.
func admitExcitations(grouping ExcitationGrouping, mask []float64, maskDims []int, minMaskVoxels int) []int {
	if grouping == nil {
		all := make([]int, maskDims[2])
		for i := range all {
			all[i] = i
		}
		return all
	}

	sliceVox := maskDims[0] * maskDims[1]
	var admitted []int
	for e, slices := range grouping {
		n := 0
		for _, z := range slices {
			if z < 0 || z >= maskDims[2] {
				continue
			}
			for _, v := range mask[z*sliceVox : (z+1)*sliceVox] {
				if v != 0 {
					n++
				}
			}
		}
		if n > minMaskVoxels {
			admitted = append(admitted, e)
		}
	}
	return admitted
}

// excitationVariance computes the per-axis sample variance of the admitted
// excitation rows of one volume, whose block starts at row offset.
func excitationVariance(m [][]float64, offset int, admitted []int) []float64 {
	out := make([]float64, 3)
	vals := make([]float64, len(admitted))
	for axis := 0; axis < 3; axis++ {
		for i, e := range admitted {
			vals[i] = m[offset+e][axis]
		}
		out[axis] = stat.Variance(vals, nil)
	}
	return out
}

// rootMeanCols returns sqrt(mean) per column, turning per-volume variances
// into one standard-deviation summary per axis.
func rootMeanCols(m [][]float64) []float64 {
	means := colMeans(m)
	for i := range means {
		means[i] = math.Sqrt(means[i])
	}
	return means
}
