package extract

import (
	"os"
	"path/filepath"
)

// Suffixes the correction tool appends to its base name for each output.
const (
	extMovementRMS      = ".eddy_movement_rms"
	extParameters       = ".eddy_parameters"
	extMovementOverTime = ".eddy_movement_over_time"
	extOutlierMap       = ".eddy_outlier_map"
	extOutlierStdMap    = ".eddy_outlier_n_stdev_map"
	extCNRMaps          = ".eddy_cnr_maps.nii.gz"
	extResiduals        = ".eddy_residuals.nii.gz"
)

// artifacts flags which optional correction outputs are present. The flags
// are computed once up front; each one gates exactly one metric extractor,
// and an absent artifact only omits the metrics it would have produced.
type artifacts struct {
	Motion     bool
	Params     bool
	S2V        bool
	OutlierMap bool
	CNR        bool
	Residuals  bool
}

// probeArtifacts checks the correction output directory with the given
// existence predicate, injectable so the inventory is testable without a
// filesystem.
func probeArtifacts(dir, base string, exists func(string) bool) artifacts {
	probe := func(ext string) bool {
		return exists(filepath.Join(dir, base+ext))
	}
	return artifacts{
		Motion:     probe(extMovementRMS),
		Params:     probe(extParameters),
		S2V:        probe(extMovementOverTime),
		OutlierMap: probe(extOutlierMap),
		CNR:        probe(extCNRMaps),
		Residuals:  probe(extResiduals),
	}
}

// fileExists is the default predicate.
func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
