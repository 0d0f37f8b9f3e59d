package metrics

import "gonum.org/v1/gonum/stat"

// Motion summarises the RMS movement estimates: the absolute and relative
// displacement series plus their means. The table must carry one row per
// volume with at least two columns.
func Motion(rec *Record, motion [][]float64, nVols int) error {
	if err := checkTable(motion, nVols, 2, "movement RMS"); err != nil {
		return err
	}
	abs := column(motion, 0)
	rel := column(motion, 1)
	rec.SetVector(KeyMotionAbs, abs)
	rec.SetVector(KeyMotionRel, rel)
	rec.SetScalar(KeyMotionAbsMean, stat.Mean(abs, nil))
	rec.SetScalar(KeyMotionRelMean, stat.Mean(rel, nil))
	return nil
}

// Parameters summarises the per-volume correction parameters: mean
// translation per axis, mean rotation per axis in degrees, and the
// population standard deviation of the three linear eddy-current terms.
// The table must carry one row per volume with nine columns.
func Parameters(rec *Record, params [][]float64, nVols int) error {
	if err := checkTable(params, nVols, 9, "parameters"); err != nil {
		return err
	}
	rec.SetVector(KeyMotionV2VTransMean, colMeans(columns(params, 0, 3)))
	rec.SetVector(KeyMotionV2VRotMean, colMeans(scaleMatrix(columns(params, 3, 6), radToDeg)))
	rec.SetVector(KeyMotionECLinStd, colPopStds(columns(params, 6, 9)))
	return nil
}

// checkTable enforces the shape contract of a required-once-present artifact.
func checkTable(table [][]float64, rows, cols int, what string) error {
	if len(table) != rows {
		return configErrf("", "%s table has %d rows, expected one per volume (%d)", what, len(table), rows)
	}
	for _, row := range table {
		if len(row) < cols {
			return configErrf("", "%s table has %d columns, expected %d", what, len(row), cols)
		}
	}
	return nil
}
