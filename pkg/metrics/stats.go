package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const radToDeg = 180 / math.Pi

// column extracts column j of a row-major table.
func column(table [][]float64, j int) []float64 {
	out := make([]float64, len(table))
	for i, row := range table {
		out[i] = row[j]
	}
	return out
}

// columns extracts columns [lo, hi) of a table as a new matrix.
func columns(table [][]float64, lo, hi int) [][]float64 {
	out := make([][]float64, len(table))
	for i, row := range table {
		out[i] = append([]float64(nil), row[lo:hi]...)
	}
	return out
}

// scaleMatrix multiplies every element by f, in place.
func scaleMatrix(m [][]float64, f float64) [][]float64 {
	for _, row := range m {
		for j := range row {
			row[j] *= f
		}
	}
	return m
}

// colMeans returns the per-column mean of a matrix.
func colMeans(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, len(m[0]))
	for j := range out {
		out[j] = stat.Mean(column(m, j), nil)
	}
	return out
}

// colPopStds returns the per-column population standard deviation, matching
// the uncorrected (divisor n) convention the correction tool reports.
func colPopStds(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, len(m[0]))
	for j := range out {
		out[j] = math.Sqrt(stat.PopVariance(column(m, j), nil))
	}
	return out
}

// maskedVals collects vol values where mask is nonzero. When finiteOnly is
// set, non-finite values are excluded as well; the second return reports how
// many masked values were non-finite.
func maskedVals(vol, mask []float64, finiteOnly bool) ([]float64, int) {
	vals := make([]float64, 0, len(vol))
	dropped := 0
	for i, v := range vol {
		if mask[i] == 0 {
			continue
		}
		if finiteOnly && (math.IsNaN(v) || math.IsInf(v, 0)) {
			dropped++
			continue
		}
		vals = append(vals, v)
	}
	return vals, dropped
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
