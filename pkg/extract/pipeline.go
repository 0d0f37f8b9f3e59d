// Package extract runs the per-subject QC extraction pipeline over the
// outputs of a diffusion MRI eddy-current/motion correction run.
//
// The pipeline inspects which correction outputs are present, validates
// their dimensional consistency against the acquisition protocol, computes
// the QC summary statistics and writes a single qc.json record. It is a
// read-only statistical reduction: nothing is registered, resampled or
// rendered here.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"dmriqc/internal/models"
	"dmriqc/pkg/config"
	"dmriqc/pkg/metrics"
	"dmriqc/pkg/nifti"
	"dmriqc/pkg/protocol"
)

// Params holds the extraction inputs. Paths for the index, b-value,
// acquisition-parameter and mask files are resolved relative to EddyDir;
// the gradient and field files are taken as given.
type Params struct {
	// EddyDir is the directory containing the correction outputs.
	EddyDir string

	// EddyBase is the base name of the correction outputs. When empty it is
	// auto-detected from the .eddy_parameters file in EddyDir.
	EddyBase string

	// IndexFile maps each volume onto a row of the acquisition parameters.
	IndexFile string

	// AcqParamsFile is the acquisition-parameter table.
	AcqParamsFile string

	// MaskFile is the binary brain mask image.
	MaskFile string

	// BValsFile lists the per-volume b-values.
	BValsFile string

	// BVecsFile lists the gradient directions. Optional.
	BVecsFile string

	// FieldFile is the estimated susceptibility field in Hz. Optional.
	FieldFile string

	// SlspecFile specifies the slice/group acquisition order. Optional.
	SlspecFile string

	// OutputDir is where the QC record is written.
	// Defaults to <EddyDir>/<EddyBase>.qc.
	OutputDir string

	// Overwrite allows reusing an existing output directory.
	Overwrite bool
}

// Pipeline extracts the QC record for a single subject. One instance
// processes exactly one subject; no state crosses subject boundaries.
type Pipeline struct {
	params *Params
	cfg    *config.Config
	log    *zap.Logger

	base    string
	sub     *models.Subject
	proto   *protocol.Protocol
	mask    *nifti.Image
	slspec  metrics.ExcitationGrouping
	rec     *metrics.Record
}

// New creates a pipeline for the given inputs.
func New(params *Params, cfg *config.Config, log *zap.Logger) *Pipeline {
	return &Pipeline{params: params, cfg: cfg, log: log, rec: metrics.NewRecord()}
}

// Run executes the full extraction and returns the path of the written
// record. Any fatal condition aborts before the record file is written;
// a successful run always writes the complete record, never a partial one.
func (p *Pipeline) Run() (string, error) {
	// Step 1: resolve the correction output base name.
	if err := p.resolveBase(); err != nil {
		return "", err
	}

	// Step 2: prepare the output directory before doing any heavy work.
	outDir := p.params.OutputDir
	if outDir == "" {
		outDir = filepath.Join(p.params.EddyDir, p.base+".qc")
	}
	if _, err := os.Stat(outDir); err == nil && !p.params.Overwrite {
		return "", &metrics.ConfigError{Path: outDir, Msg: "output directory already exists, remove it or pass overwrite"}
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", outDir, err)
	}

	// Step 3: load the required inputs and enforce the dimensional
	// consistency invariants.
	if err := p.loadInputs(); err != nil {
		return "", err
	}

	// Step 4: probe the optional artifacts and run the gated extractors.
	if err := p.extractMetrics(); err != nil {
		return "", err
	}

	// Step 5: assemble and serialize the record.
	record := assemble(p.sub, p.proto, p.rec, p.cfg.Extraction.B0Cutoff)
	outPath := filepath.Join(outDir, p.cfg.Extraction.OutputName)
	if err := writeRecord(outPath, record); err != nil {
		return "", err
	}
	p.log.Info("QC record written", zap.String("path", outPath), zap.Int("metrics", p.rec.Len()))
	return outPath, nil
}

// resolveBase finds the correction output base name, scanning the directory
// for the .eddy_parameters suffix when none was given.
func (p *Pipeline) resolveBase() error {
	fi, err := os.Stat(p.params.EddyDir)
	if err != nil || !fi.IsDir() {
		return &metrics.ConfigError{Path: p.params.EddyDir, Msg: "not a directory", Err: err}
	}

	p.base = p.params.EddyBase
	if p.base == "" {
		entries, err := os.ReadDir(p.params.EddyDir)
		if err != nil {
			return fmt.Errorf("list directory %s: %w", p.params.EddyDir, err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), extParameters) {
				p.base = strings.TrimSuffix(e.Name(), extParameters)
				break
			}
		}
		if p.base == "" {
			return &metrics.ConfigError{Path: p.params.EddyDir, Msg: "no " + extParameters + " file found to detect the base name"}
		}
	}
	p.log.Debug("using correction base name", zap.String("base", p.base))
	return nil
}

// loadInputs reads the required tables and images and builds the subject
// metadata and protocol.
func (p *Pipeline) loadInputs() error {
	dir := p.params.EddyDir

	idxPath := filepath.Join(dir, p.params.IndexFile)
	idxs, err := loadIntVector(idxPath)
	if err != nil {
		return &metrics.ConfigError{Path: idxPath, Msg: "failed to read volume index file", Err: err}
	}

	bvalsPath := filepath.Join(dir, p.params.BValsFile)
	bvals, err := loadVector(bvalsPath)
	if err != nil {
		return &metrics.ConfigError{Path: bvalsPath, Msg: "failed to read b-values file", Err: err}
	}

	acqPath := filepath.Join(dir, p.params.AcqParamsFile)
	acq, err := loadTable(acqPath, 0)
	if err != nil {
		return &metrics.ConfigError{Path: acqPath, Msg: "failed to read acquisition parameter file", Err: err}
	}
	// Collapse duplicate acquisition rows before anything depends on row
	// identity; historical acquisitions often repeat identical rows.
	acqDedup, remapped, err := protocol.DedupRows(acq, idxs)
	if err != nil {
		return &metrics.ConfigError{Path: acqPath, Msg: "inconsistent volume index map", Err: err}
	}

	var bvecs [][]float64
	if p.params.BVecsFile != "" {
		bvecs, err = loadTable(p.params.BVecsFile, 0)
		if err != nil {
			return &metrics.ConfigError{Path: p.params.BVecsFile, Msg: "failed to read gradient direction file", Err: err}
		}
		if len(bvecs) == 0 || len(bvecs[0]) != len(bvals) {
			return &metrics.ConfigError{Path: p.params.BVecsFile, Msg: "gradient directions and b-values do not have consistent dimensions"}
		}
	}

	if p.params.SlspecFile != "" {
		slspec, err := loadIntTable(p.params.SlspecFile)
		if err != nil {
			return &metrics.ConfigError{Path: p.params.SlspecFile, Msg: "failed to read slice acquisition file", Err: err}
		}
		p.slspec = slspec
	}

	// The corrected image itself contributes only shape and voxel geometry;
	// release its voxels right after the consistency checks.
	epiPath := nifti.Resolve(filepath.Join(dir, p.base))
	if epiPath == "" {
		return &metrics.ConfigError{Path: filepath.Join(dir, p.base), Msg: "could not find corrected base image"}
	}
	epi, err := nifti.Load(epiPath)
	if err != nil {
		return &metrics.ConfigError{Path: epiPath, Msg: "failed to load corrected image", Err: err}
	}
	if epi.NVols() != len(bvals) {
		return &metrics.ConfigError{Path: epiPath, Msg: fmt.Sprintf("number of b-values (%d) not consistent with corrected image (%d volumes)", len(bvals), epi.NVols())}
	}
	if epi.NVols() != len(remapped) {
		return &metrics.ConfigError{Path: epiPath, Msg: fmt.Sprintf("number of volume indices (%d) not consistent with corrected image (%d volumes)", len(remapped), epi.NVols())}
	}
	shape := epi.Dims()
	voxSizes := epi.VoxelSizes()
	spatial := epi.SpatialDims()
	epi.Release()

	maskPath := nifti.Resolve(filepath.Join(dir, p.params.MaskFile))
	if maskPath == "" {
		return &metrics.ConfigError{Path: filepath.Join(dir, p.params.MaskFile), Msg: "could not find mask image file"}
	}
	p.mask, err = nifti.Load(maskPath)
	if err != nil {
		return &metrics.ConfigError{Path: maskPath, Msg: "failed to load mask image", Err: err}
	}
	maskDims := p.mask.SpatialDims()
	for i := range spatial {
		if maskDims[i] != spatial[i] {
			return &metrics.ConfigError{Path: maskPath, Msg: "mask and data dimensions are not consistent"}
		}
	}

	rounded := protocol.RoundBVals(bvals, p.cfg.Extraction.BValRoundUnit)
	p.proto = protocol.Infer(rounded, remapped)

	numDW, numB0 := 0, 0
	for _, b := range bvals {
		if b > p.cfg.Extraction.B0Cutoff {
			numDW++
		} else {
			numB0++
		}
	}
	p.sub = &models.Subject{
		ID:           epiPath,
		MaskPath:     maskPath,
		NumDWVols:    numDW,
		NumB0Vols:    numB0,
		BVals:        bvals,
		RoundedBVals: rounded,
		BVecs:        bvecs,
		EddyIndices:  remapped,
		AcqParams:    flatten(acqDedup),
		Shape:        shape,
		VoxSizes:     voxSizes,
	}
	p.log.Info("loaded subject",
		zap.String("image", epiPath),
		zap.Int("volumes", len(bvals)),
		zap.Int("shells", p.proto.NumShells()),
		zap.Int("peDirs", len(p.proto.PEDirs)))
	return nil
}

// extractMetrics probes the optional artifacts once and runs each gated
// extractor in fixed order. Large 4-D images are released as soon as their
// reduction has been computed, before the next one is loaded.
func (p *Pipeline) extractMetrics() error {
	dir, base := p.params.EddyDir, p.base
	inv := probeArtifacts(dir, base, fileExists)
	nVols := p.sub.NumVols()

	if inv.Motion {
		p.log.Debug("RMS movement estimates file detected")
		path := filepath.Join(dir, base+extMovementRMS)
		motion, err := loadTable(path, 0)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to read movement RMS file", Err: err}
		}
		if err := metrics.Motion(p.rec, motion, nVols); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if inv.Params {
		p.log.Debug("correction parameters file detected")
		path := filepath.Join(dir, base+extParameters)
		params, err := loadTable(path, 0)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to read parameters file", Err: err}
		}
		if err := metrics.Parameters(p.rec, params, nVols); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if inv.S2V {
		p.log.Debug("slice-to-volume movement file detected")
		path := filepath.Join(dir, base+extMovementOverTime)
		s2v, err := loadTable(path, 0)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to read slice-to-volume movement file", Err: err}
		}
		err = metrics.S2V(p.rec, s2v, nVols, p.mask.Data(), p.mask.SpatialDims(),
			p.slspec, p.cfg.Extraction.MinMaskVoxels, p.log)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if inv.OutlierMap {
		p.log.Debug("outlier map files detected")
		path := filepath.Join(dir, base+extOutlierMap)
		olMap, err := loadTable(path, 1)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to read outlier map", Err: err}
		}
		// The companion deviation map belongs to the same correction option:
		// when the outlier map exists the std map must too.
		stdPath := filepath.Join(dir, base+extOutlierStdMap)
		if _, err := loadTable(stdPath, 1); err != nil {
			return &metrics.ConfigError{Path: stdPath, Msg: "failed to read outlier deviation map", Err: err}
		}
		in := metrics.OutlierInputs{
			RoundedBVals: p.sub.RoundedBVals,
			EddyIndices:  p.sub.EddyIndices,
			NumDWVols:    p.sub.NumDWVols,
			NumSlices:    p.sub.NumSlices(),
		}
		if err := metrics.Outliers(p.rec, olMap, in, p.proto, p.cfg.Extraction.B0Cutoff); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if inv.CNR {
		p.log.Debug("CNR maps detected")
		path := filepath.Join(dir, base+extCNRMaps)
		cnr, err := nifti.Load(path)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to load CNR maps", Err: err}
		}
		dwShells, _ := p.proto.DWShells(p.cfg.Extraction.B0Cutoff)
		err = metrics.CNR(p.rec, cnr, p.mask.Data(), len(dwShells), p.cfg.Extraction.CNRDecimals, p.log)
		cnr.Release()
		if err != nil {
			return err
		}
	}

	if inv.Residuals {
		p.log.Debug("correction residuals file detected")
		path := filepath.Join(dir, base+extResiduals)
		rss, err := nifti.Load(path)
		if err != nil {
			return &metrics.ConfigError{Path: path, Msg: "failed to load residuals", Err: err}
		}
		err = metrics.Residuals(p.rec, rss, p.mask.Data())
		rss.Release()
		if err != nil {
			return err
		}
	}

	if p.params.FieldFile != "" {
		fieldPath := nifti.Resolve(p.params.FieldFile)
		if fieldPath == "" {
			return &metrics.ConfigError{Path: p.params.FieldFile, Msg: "no such field map file"}
		}
		p.log.Debug("susceptibility field map detected")
		if len(p.sub.AcqParams) < 4 {
			return &metrics.ConfigError{Path: fieldPath, Msg: "acquisition parameters carry no readout time term"}
		}
		field, err := nifti.Load(fieldPath)
		if err != nil {
			return &metrics.ConfigError{Path: fieldPath, Msg: "failed to load field map", Err: err}
		}
		err = metrics.FieldDisplacement(p.rec, field, p.mask.Data(), p.sub.AcqParams[3])
		field.Release()
		if err != nil {
			return err
		}
	}

	return nil
}

// flatten concatenates table rows into one series.
func flatten(table [][]float64) []float64 {
	var flat []float64
	for _, row := range table {
		flat = append(flat, row...)
	}
	return flat
}
