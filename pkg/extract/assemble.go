package extract

import (
	"encoding/json"
	"fmt"
	"os"

	"dmriqc/internal/models"
	"dmriqc/pkg/metrics"
	"dmriqc/pkg/protocol"
)

// assemble flattens the subject metadata and the QC record into one mapping
// with data_* and qc_* name prefixes. Array values become plain nested
// sequences; opaque image handles never enter the map in the first place.
func assemble(sub *models.Subject, proto *protocol.Protocol, rec *metrics.Record, b0Cutoff float64) map[string]interface{} {
	dwShells, dwCounts := proto.DWShells(b0Cutoff)

	m := map[string]interface{}{
		"data_subjid":        sub.ID,
		"data_file_mask":     sub.MaskPath,
		"data_num_dw_vols":   sub.NumDWVols,
		"data_num_b0_vols":   sub.NumB0Vols,
		"data_protocol":      proto.FlatMatrix(),
		"data_num_pe_dirs":   len(proto.PEDirs),
		"data_num_shells":    proto.NumShells(),
		"data_bvals":         sub.BVals,
		"data_rounded_bvals": sub.RoundedBVals,
		"data_unique_bvals":  dwShells,
		"data_bvals_dirs":    dwCounts,
		"data_eddy_idxs":     sub.EddyIndices,
		"data_eddy_para":     sub.AcqParams,
		"data_unique_pedirs": proto.PEDirs,
		"data_counts_pedirs": proto.PEDirCounts,
		"data_shape":         sub.Shape,
		"data_vox_sizes":     sub.VoxSizes,
	}
	if sub.BVecs != nil {
		m["data_bvecs"] = sub.BVecs
	} else {
		m["data_bvecs"] = []float64{}
	}

	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		m["qc_"+string(k)] = v.Interface()
	}
	return m
}

// writeRecord serializes the assembled record with deterministic key order
// and fixed indentation for diffability. The file is written in one shot:
// either the complete record lands on disk or nothing does.
func writeRecord(path string, record map[string]interface{}) error {
	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("serialize record: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write record %s: %w", path, err)
	}
	return nil
}
