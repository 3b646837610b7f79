// Package usecase wires the chunked regrid weight generation pipeline:
// configuration validation, working-directory lifecycle, grid loading,
// decomposition or spatial subsetting, weight generation, and merging.
package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rochamatcomp/ocgis/internal/adapter/esmf"
	"github.com/rochamatcomp/ocgis/internal/adapter/ncgrid"
	"github.com/rochamatcomp/ocgis/internal/chunker"
	"github.com/rochamatcomp/ocgis/internal/domain"
)

// SpatialSubsetFileName is the single source subset written in spatial
// subset mode.
const SpatialSubsetFileName = "spatial_subset.nc"

// RWGConfig is the immutable configuration for one chunked regrid weight
// generation run, assembled from CLI flags.
type RWGConfig struct {
	Source      string
	Destination string
	Weight      string

	// NChunks is the destination decomposition: one count for unstructured
	// grids, two (y, x) for rectangular ones. Empty only in spatial subset
	// mode.
	NChunks []int

	Merge      bool
	SrcType    domain.GridType
	DstType    domain.GridType
	GenWeights bool
	Method     domain.RegridMethod

	SrcResolution  float64
	DstResolution  float64
	BufferDistance float64

	// WD is the working directory for intermediate files. Empty means a
	// fresh temporary directory; when set, the directory must not exist.
	WD      string
	Persist bool

	SpatialSubset bool

	// ESMFExecutable overrides the weight generation tool path.
	ESMFExecutable string
	// NWorkers bounds chunk parallelism.
	NWorkers int

	// Generator overrides the external engine; nil selects ESMF.
	Generator chunker.WeightGenerator
}

// Validate applies the fail-fast configuration checks. All configuration
// errors are detected here, before any decomposition work begins.
func (cfg *RWGConfig) Validate() error {
	if cfg.Source == "" {
		return fmt.Errorf("source grid path is required")
	}
	if cfg.Destination == "" {
		return fmt.Errorf("destination grid path is required")
	}
	for _, p := range []string{cfg.Source, cfg.Destination} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("grid file %s is not readable: %w", p, err)
		}
	}

	if !cfg.SpatialSubset {
		switch {
		case len(cfg.NChunks) == 0:
			return fmt.Errorf("a chunking decomposition (nchunks_dst) is required unless spatial_subset is enabled")
		case cfg.DstType.Unstructured() && len(cfg.NChunks) != 1:
			return fmt.Errorf("unstructured destination grid takes a single chunk count, got %d values", len(cfg.NChunks))
		case !cfg.DstType.Unstructured() && len(cfg.NChunks) != 2:
			return fmt.Errorf("rectangular destination grid requires two chunk counts (y, x), got %d value(s)", len(cfg.NChunks))
		}
	}

	if cfg.Merge && !cfg.SpatialSubset && cfg.Weight == "" {
		return fmt.Errorf("a weight file path is required when merging")
	}
	if cfg.SpatialSubset && cfg.GenWeights && cfg.Weight == "" {
		return fmt.Errorf("a weight file path is required when generating weights with spatial_subset")
	}

	if cfg.WD != "" {
		if _, err := os.Stat(cfg.WD); err == nil {
			return fmt.Errorf("working directory %s must not exist", cfg.WD)
		}
		if cfg.Weight != "" && weightInsideWD(cfg.WD, cfg.Weight) &&
			((cfg.Merge && !cfg.SpatialSubset) || (cfg.SpatialSubset && cfg.GenWeights)) {
			return fmt.Errorf("weight file path must not be inside the working directory: it would be removed without persist")
		}
	}

	if cfg.SrcResolution < 0 || cfg.DstResolution < 0 || cfg.BufferDistance < 0 {
		return fmt.Errorf("resolutions and buffer distance must be non-negative")
	}
	return nil
}

// RunChunkedRWG executes the pipeline. The context cancels in-flight chunk
// jobs; the working directory is removed afterwards unless Persist was
// requested.
func RunChunkedRWG(ctx context.Context, cfg RWGConfig, log *zap.Logger) (err error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	wd := cfg.WD
	if wd == "" {
		wd, err = os.MkdirTemp("", "ocgis_chunked_regrid_")
		if err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
	} else {
		if err := os.MkdirAll(wd, 0o755); err != nil {
			return fmt.Errorf("failed to create working directory %s: %w", wd, err)
		}
	}
	defer func() {
		if cfg.Persist {
			log.Info("persisting working directory", zap.String("wd", wd))
			return
		}
		if rmErr := os.RemoveAll(wd); rmErr != nil && err == nil {
			err = fmt.Errorf("failed to remove working directory %s: %w", wd, rmErr)
		}
	}()

	log.Info("starting chunked regrid weight generation",
		zap.String("source", cfg.Source),
		zap.String("destination", cfg.Destination),
		zap.String("wd", wd),
		zap.Bool("spatial_subset", cfg.SpatialSubset))

	srcGrid, err := ncgrid.Read(cfg.Source, cfg.SrcType)
	if err != nil {
		return fmt.Errorf("failed to load source grid: %w", err)
	}
	dstGrid, err := ncgrid.Read(cfg.Destination, cfg.DstType)
	if err != nil {
		return fmt.Errorf("failed to load destination grid: %w", err)
	}

	generator := cfg.Generator
	if generator == nil {
		generator = &esmf.Generator{Executable: cfg.ESMFExecutable}
	}

	nchunks := cfg.NChunks
	if cfg.SpatialSubset {
		// The chunker still needs a decomposition shape for construction;
		// spatial subset mode never iterates it.
		if dstGrid.Type.Unstructured() {
			nchunks = []int{1}
		} else {
			nchunks = []int{1, 1}
		}
	}

	ck, err := chunker.New(srcGrid, dstGrid, chunker.Options{
		NChunks:        nchunks,
		WD:             wd,
		BufferDistance: cfg.BufferDistance,
		SrcResolution:  cfg.SrcResolution,
		DstResolution:  cfg.DstResolution,
		GenWeights:     cfg.GenWeights,
		Method:         cfg.Method,
		Generator:      generator,
		NWorkers:       cfg.NWorkers,
		Log:            log,
	})
	if err != nil {
		return err
	}

	combined := ck.SrcExtent().Union(ck.DstExtent())
	log.Debug("grid domains loaded",
		zap.Int("src_cells", srcGrid.Size()),
		zap.Int("dst_cells", dstGrid.Size()),
		zap.Float64("domain_width_deg", combined.Width()),
		zap.Float64("domain_height_deg", combined.Height()),
		zap.Float64("domain_diagonal_m", combined.GreatCircleSpanMeters()))

	if cfg.SpatialSubset {
		return runSpatialSubset(ctx, cfg, ck, generator, wd, log)
	}

	if _, err := ck.WriteChunks(ctx); err != nil {
		return err
	}

	// The merge barrier: WriteChunks has joined all workers before any
	// chunk weight file is read.
	if cfg.Merge && cfg.GenWeights {
		if err := ck.CreateMergedWeightFile(cfg.Weight); err != nil {
			return err
		}
	}
	return nil
}

// runSpatialSubset handles the non-chunked path: one source subset over
// the destination's global extent, then at most one engine invocation.
// Weight generation here is a single job, never chunk-parallel.
func runSpatialSubset(ctx context.Context, cfg RWGConfig, ck *chunker.Chunker, gen chunker.WeightGenerator, wd string, log *zap.Logger) error {
	subsetPath := filepath.Join(wd, SpatialSubsetFileName)
	if err := ck.WriteSpatialSubset(subsetPath); err != nil {
		return err
	}
	if !cfg.GenWeights {
		return nil
	}
	job := domain.WeightJob{
		SrcPath:    subsetPath,
		DstPath:    cfg.Destination,
		WeightPath: cfg.Weight,
		SrcType:    cfg.SrcType,
		DstType:    cfg.DstType,
		Method:     cfg.Method,
	}
	if err := gen.Generate(ctx, job); err != nil {
		return err
	}
	log.Info("generated weights from spatial subset", zap.String("path", cfg.Weight))
	return nil
}

// weightInsideWD reports whether the weight path resolves inside the
// working directory.
func weightInsideWD(wd, weight string) bool {
	absWD, err := filepath.Abs(wd)
	if err != nil {
		return false
	}
	absWeight, err := filepath.Abs(weight)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absWD, absWeight)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
