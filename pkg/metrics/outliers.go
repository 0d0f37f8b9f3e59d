package metrics

import "dmriqc/pkg/protocol"

// OutlierInputs bundles the per-volume labels and counts the outlier
// percentages are conditioned on, kept narrow so tests can fabricate it
// without touching a filesystem.
type OutlierInputs struct {
	// RoundedBVals is the shell label per volume.
	RoundedBVals []float64

	// EddyIndices is the phase-encode direction label per volume.
	EddyIndices []int

	// NumDWVols is the diffusion-weighted volume count.
	NumDWVols int

	// NumSlices is the slice count along the third spatial axis.
	NumSlices int
}

// Outliers computes the percentage of slices flagged as outliers during
// correction: overall, per diffusion shell and per phase-encode direction.
// The map carries one row per volume and one column per slice; percentages
// count nonzero cells against the number of diffusion-weighted slices in the
// relevant volume subset.
func Outliers(rec *Record, olMap [][]float64, in OutlierInputs, proto *protocol.Protocol, b0Cutoff float64) error {
	if len(olMap) != len(in.RoundedBVals) {
		return configErrf("", "outlier map has %d rows, expected one per volume (%d)", len(olMap), len(in.RoundedBVals))
	}

	rec.SetScalar(KeyOutliersTot, outlierPercent(olMap, nil, in.NumDWVols*in.NumSlices))

	dwShells, dwCounts := proto.DWShells(b0Cutoff)
	perShell := make([]float64, len(dwShells))
	for i, shell := range dwShells {
		sel := func(v int) bool { return in.RoundedBVals[v] == shell }
		perShell[i] = outlierPercent(olMap, sel, dwCounts[i]*in.NumSlices)
	}
	rec.SetVector(KeyOutliersTotBVal, perShell)

	perPE := make([]float64, len(proto.PEDirs))
	for i, dir := range proto.PEDirs {
		sel := func(v int) bool { return in.EddyIndices[v] == dir }
		perPE[i] = outlierPercent(olMap, sel, proto.PEDirCounts[i]*in.NumSlices)
	}
	rec.SetVector(KeyOutliersTotPE, perPE)
	return nil
}

// outlierPercent counts nonzero cells in the selected rows against total,
// as a percentage. A nil selector admits every row.
func outlierPercent(olMap [][]float64, sel func(v int) bool, total int) float64 {
	if total <= 0 {
		return 0
	}
	n := 0
	for v, row := range olMap {
		if sel != nil && !sel(v) {
			continue
		}
		for _, cell := range row {
			if cell != 0 {
				n++
			}
		}
	}
	return 100 * float64(n) / float64(total)
}
