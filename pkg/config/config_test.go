package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 240, cfg.Extraction.MinMaskVoxels)
	assert.Equal(t, "qc.json", cfg.Extraction.OutputName)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmriqc.yaml")
	yml := "extraction:\n  b0Cutoff: 50\n  outputName: custom.json\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50.0, cfg.Extraction.B0Cutoff)
	assert.Equal(t, "custom.json", cfg.Extraction.OutputName)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100.0, cfg.Extraction.BValRoundUnit)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dmriqc.yaml")
	cfg := DefaultConfig()
	cfg.Extraction.CNRDecimals = 3
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
