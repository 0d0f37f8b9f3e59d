package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dmriqc/pkg/config"
	"dmriqc/pkg/nifti"
)

const (
	testNX, testNY, testNZ = 4, 4, 3
	testNVols              = 10
)

// setupEddyDir fabricates a minimal correction output directory: a 10-volume
// dataset (8 b=1000, 2 b=0), one phase-encode direction, a fully-true mask
// and a movement RMS file with rows [0.1, 0.2].
func setupEddyDir(t *testing.T) (dir string, params *Params) {
	t.Helper()
	dir = t.TempDir()

	spatial := testNX * testNY * testNZ
	require.NoError(t, nifti.Save(filepath.Join(dir, "dwi.nii"),
		make([]float64, spatial*testNVols), []int{testNX, testNY, testNZ, testNVols}, []float64{2, 2, 2}))

	mask := make([]float64, spatial)
	for i := range mask {
		mask[i] = 1
	}
	require.NoError(t, nifti.Save(filepath.Join(dir, "mask.nii"), mask, []int{testNX, testNY, testNZ}, nil))

	writeText(t, filepath.Join(dir, "bvals.txt"), "0 0 1000 1000 1000 1000 1000 1000 1000 1000\n")
	writeText(t, filepath.Join(dir, "index.txt"), strings.Repeat("1 ", testNVols)+"\n")
	writeText(t, filepath.Join(dir, "acqp.txt"), "0 1 0 0.05\n")
	writeText(t, filepath.Join(dir, "dwi"+extMovementRMS), strings.Repeat("0.1 0.2\n", testNVols))
	writeText(t, filepath.Join(dir, "dwi"+extParameters),
		strings.Repeat("0 0 0 0 0 0 0 0 0\n", testNVols))

	params = &Params{
		EddyDir:       dir,
		IndexFile:     "index.txt",
		AcqParamsFile: "acqp.txt",
		MaskFile:      "mask.nii",
		BValsFile:     "bvals.txt",
	}
	return dir, params
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func runPipeline(t *testing.T, params *Params) map[string]interface{} {
	t.Helper()
	out, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.NoError(t, err)
	return readRecord(t, out)
}

func readRecord(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestPipelineBasicScenario(t *testing.T) {
	_, params := setupEddyDir(t)
	rec := runPipeline(t, params)

	assert.InDelta(t, 0.1, rec["qc_motion_abs_mean"].(float64), 1e-12)
	assert.InDelta(t, 0.2, rec["qc_motion_rel_mean"].(float64), 1e-12)
	assert.Equal(t, 8.0, rec["data_num_dw_vols"])
	assert.Equal(t, 2.0, rec["data_num_b0_vols"])
	assert.Equal(t, 1.0, rec["data_num_pe_dirs"])
	assert.Equal(t, 1.0, rec["data_num_shells"])

	// Base name was auto-detected from the .eddy_parameters suffix.
	assert.Contains(t, rec["data_subjid"], "dwi.nii")

	// No outlier artifact means no outlier metrics, and the run still wrote
	// a complete record.
	for key := range rec {
		assert.False(t, strings.HasPrefix(key, "qc_outliers_"), "unexpected key %s", key)
	}
}

func TestPipelineS2VMismatchSkips(t *testing.T) {
	dir, params := setupEddyDir(t)
	// 7 rows cannot be 10 volumes x 3 excitations: warn and continue.
	writeText(t, filepath.Join(dir, "dwi"+extMovementOverTime),
		strings.Repeat("0 0 0 0 0 0\n", 7))

	rec := runPipeline(t, params)
	for key := range rec {
		assert.False(t, strings.HasPrefix(key, "qc_motion_s2v_"), "unexpected key %s", key)
	}
	assert.Contains(t, rec, "qc_motion_abs_mean")
}

func TestPipelineS2V(t *testing.T) {
	dir, params := setupEddyDir(t)
	writeText(t, filepath.Join(dir, "dwi"+extMovementOverTime),
		strings.Repeat("0 0 0 0 0 0\n", testNVols*testNZ))

	rec := runPipeline(t, params)
	require.Contains(t, rec, "qc_motion_s2v_trans_std_mean")
	stds := rec["qc_motion_s2v_trans_std_mean"].([]interface{})
	assert.Equal(t, []interface{}{0.0, 0.0, 0.0}, stds)
}

func TestPipelineOutliers(t *testing.T) {
	dir, params := setupEddyDir(t)
	header := "One row per scan, one column per slice\n"
	rows := strings.Repeat("0 0 0\n", testNVols-1) + "1 1 0\n"
	writeText(t, filepath.Join(dir, "dwi"+extOutlierMap), header+rows)

	// The companion deviation map is required once the map exists.
	_, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), extOutlierStdMap)

	writeText(t, filepath.Join(dir, "dwi"+extOutlierStdMap),
		header+strings.Repeat("0 0 0\n", testNVols))
	params.Overwrite = true
	rec := runPipeline(t, params)

	// 2 outlier slices over 8 DW volumes x 3 slices.
	tot := rec["qc_outliers_tot"].(float64)
	assert.InDelta(t, 100*2.0/24.0, tot, 1e-12)
	assert.GreaterOrEqual(t, tot, 0.0)
	assert.LessOrEqual(t, tot, 100.0)
}

func TestPipelineImageMetrics(t *testing.T) {
	dir, params := setupEddyDir(t)
	spatial := testNX * testNY * testNZ

	// CNR: channel 0 constant 10, channel 1 constant 2 (one DW shell).
	cnr := make([]float64, spatial*2)
	for i := 0; i < spatial; i++ {
		cnr[i] = 10
		cnr[spatial+i] = 2
	}
	require.NoError(t, nifti.Save(filepath.Join(dir, "dwi"+extCNRMaps), cnr,
		[]int{testNX, testNY, testNZ, 2}, nil))

	// Residuals: constant 3 everywhere, so every mean square is 9.
	rss := make([]float64, spatial*testNVols)
	for i := range rss {
		rss[i] = 3
	}
	require.NoError(t, nifti.Save(filepath.Join(dir, "dwi"+extResiduals), rss,
		[]int{testNX, testNY, testNZ, testNVols}, nil))

	// Field map in Hz, scaled by the 0.05 readout term from acqp.txt.
	field := make([]float64, spatial)
	for i := range field {
		field[i] = float64(i % 2) // alternating 0/1 -> displacement 0/0.05
	}
	require.NoError(t, nifti.Save(filepath.Join(dir, "field.nii"), field,
		[]int{testNX, testNY, testNZ}, nil))
	params.FieldFile = filepath.Join(dir, "field")

	rec := runPipeline(t, params)

	means := rec["qc_cnr_mean_bval"].([]interface{})
	assert.Equal(t, []interface{}{10.0, 2.0}, means)

	res := rec["qc_res_mean"].([]interface{})
	require.Len(t, res, testNVols)
	assert.InDelta(t, 9, res[0].(float64), 1e-12)

	assert.InDelta(t, 0.025, rec["qc_field_disp_std"].(float64), 1e-12)
}

func TestPipelineMissingFieldFatal(t *testing.T) {
	_, params := setupEddyDir(t)
	params.FieldFile = "/nonexistent/field"
	_, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field map")
}

func TestPipelineOutputGuard(t *testing.T) {
	dir, params := setupEddyDir(t)
	params.OutputDir = filepath.Join(dir, "qc")
	require.NoError(t, os.MkdirAll(params.OutputDir, 0755))

	_, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	params.Overwrite = true
	_, err = New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.NoError(t, err)
}

func TestPipelineDimensionMismatchFatal(t *testing.T) {
	dir, params := setupEddyDir(t)
	// 9 b-values for a 10-volume image.
	writeText(t, filepath.Join(dir, "bvals.txt"), "0 0 1000 1000 1000 1000 1000 1000 1000\n")
	writeText(t, filepath.Join(dir, "index.txt"), strings.Repeat("1 ", 9)+"\n")

	_, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not consistent")
}

func TestRecordSerializationStable(t *testing.T) {
	_, params := setupEddyDir(t)
	out, err := New(params, config.DefaultConfig(), zap.NewNop()).Run()
	require.NoError(t, err)

	first, err := os.ReadFile(out)
	require.NoError(t, err)

	// Re-serializing the parsed record reproduces the same bytes: keys are
	// sorted and the indentation is fixed.
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(first, &m))
	again, err := json.MarshalIndent(m, "", "    ")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again)+"\n")
}

func TestProbeArtifacts(t *testing.T) {
	present := map[string]bool{
		filepath.Join("d", "b"+extMovementRMS): true,
		filepath.Join("d", "b"+extCNRMaps):     true,
	}
	inv := probeArtifacts("d", "b", func(p string) bool { return present[p] })
	assert.True(t, inv.Motion)
	assert.True(t, inv.CNR)
	assert.False(t, inv.Params)
	assert.False(t, inv.S2V)
	assert.False(t, inv.OutlierMap)
	assert.False(t, inv.Residuals)
}
