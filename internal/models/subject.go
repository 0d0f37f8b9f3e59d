package models

// Subject captures the acquisition metadata of one corrected diffusion
// dataset. It is serialized into the QC record under data_* keys.
type Subject struct {
	// ID is the path of the eddy-corrected 4-D image.
	ID string

	// MaskPath is the resolved binary brain mask file.
	MaskPath string

	// NumDWVols is the number of diffusion-weighted volumes (b > cutoff).
	NumDWVols int

	// NumB0Vols is the number of b=0 volumes (b <= cutoff).
	NumB0Vols int

	// BVals holds the raw per-volume b-values.
	BVals []float64

	// RoundedBVals holds the per-volume shell labels.
	RoundedBVals []float64

	// BVecs holds the gradient directions, one row per axis, when supplied.
	BVecs [][]float64

	// EddyIndices maps each volume onto a row of the deduplicated
	// acquisition-parameter table (1-based).
	EddyIndices []int

	// AcqParams is the deduplicated acquisition-parameter table, flattened
	// row-major.
	AcqParams []float64

	// Shape holds the full dimensions of the corrected image.
	Shape []int

	// VoxSizes holds the spatial voxel extents in mm.
	VoxSizes []float64
}

// NumSlices returns the slice count along the third spatial axis.
func (s *Subject) NumSlices() int {
	if len(s.Shape) < 3 {
		return 1
	}
	return s.Shape[2]
}

// NumVols returns the acquired volume count.
func (s *Subject) NumVols() int {
	return len(s.BVals)
}
