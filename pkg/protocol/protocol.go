// Package protocol infers the acquisition protocol structure of a diffusion
// MRI dataset: how volumes partition into b-value shells and phase-encode
// directions, and how per-volume indices map onto the acquisition-parameter
// table after duplicate rows have been collapsed.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Protocol describes the shell and phase-encode structure of one acquisition.
// It is derived once, up front, and consumed by every metric extractor.
type Protocol struct {
	// Shells holds the distinct rounded b-values in ascending order,
	// including the b=0 shell when present.
	Shells []float64

	// ShellCounts[i] is the number of volumes acquired on Shells[i].
	ShellCounts []int

	// PEDirs holds the distinct phase-encode direction labels in ascending
	// order. Labels are 1-based indices into the acquisition-parameter table.
	PEDirs []int

	// PEDirCounts[i] is the number of volumes acquired along PEDirs[i].
	PEDirCounts []int

	// Matrix counts volumes per (direction, shell) pair. Rows follow PEDirs,
	// columns follow Shells. The sum over all cells equals the volume count.
	Matrix [][]int
}

// RoundBVals rounds each b-value to the nearest multiple of unit so that
// volumes classify into discrete shells. Negative values clamp to zero.
// The rounding is deterministic: identical input always yields identical
// shell labels.
func RoundBVals(bvals []float64, unit float64) []float64 {
	if unit <= 0 {
		unit = 100
	}
	rounded := make([]float64, len(bvals))
	for i, b := range bvals {
		r := math.Round(b/unit) * unit
		if r < 0 {
			r = 0
		}
		rounded[i] = r
	}
	return rounded
}

// Infer computes the protocol structure from per-volume rounded b-values and
// phase-encode direction labels. Zero volumes yield an empty protocol.
func Infer(rounded []float64, peDirs []int) *Protocol {
	p := &Protocol{}
	p.Shells, p.ShellCounts = uniqueFloats(rounded)
	p.PEDirs, p.PEDirCounts = uniqueInts(peDirs)

	// Count volumes satisfying both predicates for every (direction, shell)
	// pair. Both factors are small, so the double reduction is fine.
	p.Matrix = make([][]int, len(p.PEDirs))
	for di, d := range p.PEDirs {
		row := make([]int, len(p.Shells))
		for si, s := range p.Shells {
			n := 0
			for v := range rounded {
				if rounded[v] == s && peDirs[v] == d {
					n++
				}
			}
			row[si] = n
		}
		p.Matrix[di] = row
	}
	return p
}

// TotalVolumes returns the number of volumes counted by the protocol matrix.
func (p *Protocol) TotalVolumes() int {
	total := 0
	for _, row := range p.Matrix {
		for _, n := range row {
			total += n
		}
	}
	return total
}

// NumShells counts the diffusion-weighted shells (rounded b-value above zero).
func (p *Protocol) NumShells() int {
	n := 0
	for _, s := range p.Shells {
		if s > 0 {
			n++
		}
	}
	return n
}

// DWShells returns the shells above the b0 cutoff together with their volume
// counts, in ascending order. These are the shells the CNR and outlier
// extractors iterate over.
func (p *Protocol) DWShells(cutoff float64) ([]float64, []int) {
	var shells []float64
	var counts []int
	for i, s := range p.Shells {
		if s > cutoff {
			shells = append(shells, s)
			counts = append(counts, p.ShellCounts[i])
		}
	}
	return shells, counts
}

// FlatMatrix returns the protocol matrix flattened row-major, the layout the
// QC record serializes.
func (p *Protocol) FlatMatrix() []int {
	flat := make([]int, 0, len(p.PEDirs)*len(p.Shells))
	for _, row := range p.Matrix {
		flat = append(flat, row...)
	}
	return flat
}

// DedupRows collapses duplicate acquisition-parameter rows and remaps the
// 1-based per-volume index map onto the deduplicated table. Rows are compared
// as opaque fixed-width tuples, not field by field, and the deduplicated
// table keeps first-occurrence order so that the same volume still references
// the same logical row. Re-expanding the remapped indices through the
// returned table reproduces the original row sequence exactly.
func DedupRows(rows [][]float64, idx []int) ([][]float64, []int, error) {
	seen := make(map[string]int, len(rows))
	var dedup [][]float64
	rowOf := make([]int, len(rows))
	for i, row := range rows {
		k := rowKey(row)
		pos, ok := seen[k]
		if !ok {
			pos = len(dedup)
			seen[k] = pos
			dedup = append(dedup, row)
		}
		rowOf[i] = pos
	}

	remapped := make([]int, len(idx))
	for v, n := range idx {
		if n < 1 || n > len(rows) {
			return nil, nil, fmt.Errorf("volume %d references acquisition row %d, table has %d rows", v, n, len(rows))
		}
		remapped[v] = rowOf[n-1] + 1
	}
	return dedup, remapped, nil
}

// rowKey encodes a row byte-for-byte so rows compare as opaque tuples.
func rowKey(row []float64) string {
	buf := make([]byte, 8*len(row))
	for i, v := range row {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return string(buf)
}

func uniqueFloats(vals []float64) ([]float64, []int) {
	counts := make(map[float64]int)
	for _, v := range vals {
		counts[v]++
	}
	uniq := make([]float64, 0, len(counts))
	for v := range counts {
		uniq = append(uniq, v)
	}
	sort.Float64s(uniq)
	n := make([]int, len(uniq))
	for i, v := range uniq {
		n[i] = counts[v]
	}
	return uniq, n
}

func uniqueInts(vals []int) ([]int, []int) {
	counts := make(map[int]int)
	for _, v := range vals {
		counts[v]++
	}
	uniq := make([]int, 0, len(counts))
	for v := range counts {
		uniq = append(uniq, v)
	}
	sort.Ints(uniq)
	n := make([]int, len(uniq))
	for i, v := range uniq {
		n[i] = counts[v]
	}
	return uniq, n
}
