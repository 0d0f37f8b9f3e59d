package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dmriqc/pkg/config"
	"dmriqc/pkg/extract"
)

var (
	extractEddyDir   string
	extractEddyBase  string
	extractIndex     string
	extractAcqParams string
	extractMask      string
	extractBVals     string
	extractBVecs     string
	extractField     string
	extractSlspec    string
	extractOutput    string
	extractOverwrite bool
)

// extractCmd pulls the QC record out of a single subject's eddy directory.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the QC record from one subject's correction outputs",
	Long: `Reads the tables and images produced by an eddy-current correction run
and writes a single JSON record of acquisition facts and QC metrics.

Required inputs (--idx, --eddy-params, --mask, --bvals) are resolved relative to
the eddy directory; optional inputs (--bvecs, --field, --slspec) are used
as given.

Example:
  dmriqc extract --eddydir sub-01/eddy --idx index.txt --eddy-params acqparams.txt \
    --mask brain_mask.nii.gz --bvals bvals`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractEddyDir, "eddydir", "", "Directory containing the correction outputs")
	extractCmd.Flags().StringVar(&extractEddyBase, "eddybase", "", "Base name of the correction outputs (auto-detected when empty)")
	extractCmd.Flags().StringVar(&extractIndex, "idx", "", "Per-volume acquisition index file, relative to the eddy directory")
	extractCmd.Flags().StringVar(&extractAcqParams, "eddy-params", "", "Acquisition parameter table, relative to the eddy directory")
	extractCmd.Flags().StringVar(&extractMask, "mask", "", "Binary brain mask image, relative to the eddy directory")
	extractCmd.Flags().StringVar(&extractBVals, "bvals", "", "Per-volume b-value file, relative to the eddy directory")
	extractCmd.Flags().StringVar(&extractBVecs, "bvecs", "", "Gradient direction file (optional)")
	extractCmd.Flags().StringVar(&extractField, "field", "", "Susceptibility field image in Hz (optional)")
	extractCmd.Flags().StringVar(&extractSlspec, "slspec", "", "Slice acquisition order file (optional)")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "Output directory (default <eddydir>/<base>.qc)")
	extractCmd.Flags().BoolVar(&extractOverwrite, "overwrite", false, "Reuse an existing output directory")

	for _, name := range []string{"eddydir", "idx", "eddy-params", "mask", "bvals"} {
		if err := extractCmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	params := &extract.Params{
		EddyDir:       extractEddyDir,
		EddyBase:      extractEddyBase,
		IndexFile:     extractIndex,
		AcqParamsFile: extractAcqParams,
		MaskFile:      extractMask,
		BValsFile:     extractBVals,
		BVecsFile:     extractBVecs,
		FieldFile:     extractField,
		SlspecFile:    extractSlspec,
		OutputDir:     extractOutput,
		Overwrite:     extractOverwrite,
	}

	path, err := extract.New(params, cfg, logger).Run()
	if err != nil {
		return err
	}
	logger.Info("extraction complete", zap.String("record", path))
	return nil
}
