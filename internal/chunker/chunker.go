// Package chunker splits a destination grid into chunks, extracts buffered
// source subsets for each chunk, drives per-chunk weight generation, and
// merges chunk weight files into a global weight file.
package chunker

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rochamatcomp/ocgis/internal/adapter/ncgrid"
	"github.com/rochamatcomp/ocgis/internal/adapter/weights"
	"github.com/rochamatcomp/ocgis/internal/domain"
	"github.com/rochamatcomp/ocgis/internal/grid"
	"github.com/rochamatcomp/ocgis/internal/spatial"
)

// Working-directory file name templates. Chunk numbering is 1-based.
const (
	SrcTemplate   = "split_src_%d.nc"
	DstTemplate   = "split_dst_%d.nc"
	WgtTemplate   = "esmf_weights_%d.nc"
	IndexFileName = "01-chunk_index.nc"

	// BufferResolutionModifier scales the coarser grid resolution into the
	// automatic buffer distance. Under-buffering breaks weight coverage;
	// over-buffering only costs extraction work.
	BufferResolutionModifier = 2.0

	// containTol absorbs floating point noise at cell boundaries when
	// verifying subset coverage.
	containTol = 1e-9
)

// WeightGenerator computes a weight file for one subsetted grid pair. The
// production implementation shells out to ESMF; tests substitute fakes.
type WeightGenerator interface {
	Generate(ctx context.Context, job domain.WeightJob) error
}

// Chunker decomposes a destination grid and writes per-chunk artifacts
// into a working directory.
type Chunker struct {
	src *grid.Grid
	dst *grid.Grid

	nchunks    []int
	wd         string
	buffer     float64 // 0 means computed
	srcRes     float64 // 0 means computed
	dstRes     float64
	genWeights bool
	method     domain.RegridMethod
	generator  WeightGenerator
	nWorkers   int
	log        *zap.Logger
}

// Options configures a Chunker. Zero values select the documented
// defaults.
type Options struct {
	// NChunks is the decomposition: one count for unstructured destination
	// grids, two (y, x) for rectangular ones.
	NChunks []int
	// WD is the working directory for intermediate files. Must exist.
	WD string
	// BufferDistance is the explicit spatial buffer in destination grid
	// units; computed from grid resolutions when zero.
	BufferDistance float64
	// SrcResolution and DstResolution override the computed grid
	// resolutions, assuming isomorphic structure.
	SrcResolution float64
	DstResolution float64
	// GenWeights enables weight generation; when false the run is
	// decomposition-only and writes chunk grid files without weights.
	GenWeights bool
	Method     domain.RegridMethod
	Generator  WeightGenerator
	// NWorkers bounds chunk parallelism. Zero means one worker.
	NWorkers int
	Log      *zap.Logger
}

// New validates the decomposition against the destination grid and returns
// a ready Chunker.
func New(src, dst *grid.Grid, opts Options) (*Chunker, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source grid: %w", err)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("destination grid: %w", err)
	}
	if err := validateNChunks(dst, opts.NChunks); err != nil {
		return nil, err
	}
	if opts.GenWeights && opts.Generator == nil {
		return nil, fmt.Errorf("weight generation requested without a generator")
	}
	if opts.BufferDistance < 0 {
		return nil, fmt.Errorf("buffer distance must be non-negative, got %f", opts.BufferDistance)
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	method := opts.Method
	if method == "" {
		method = domain.MethodConserve
	}
	nWorkers := opts.NWorkers
	if nWorkers < 1 {
		nWorkers = 1
	}

	return &Chunker{
		src:        src,
		dst:        dst,
		nchunks:    opts.NChunks,
		wd:         opts.WD,
		buffer:     opts.BufferDistance,
		srcRes:     opts.SrcResolution,
		dstRes:     opts.DstResolution,
		genWeights: opts.GenWeights,
		method:     method,
		generator:  opts.Generator,
		nWorkers:   nWorkers,
		log:        log,
	}, nil
}

func validateNChunks(dst *grid.Grid, nchunks []int) error {
	switch {
	case len(nchunks) == 0:
		return fmt.Errorf("chunking decomposition is required")
	case dst.Type.Unstructured() && len(nchunks) != 1:
		return fmt.Errorf("unstructured destination grid takes a single chunk count, got %d values", len(nchunks))
	case !dst.Type.Unstructured() && len(nchunks) != 2:
		return fmt.Errorf("rectangular destination grid requires two chunk counts (y, x), got %d value(s)", len(nchunks))
	}
	ny, nx := dst.Shape()
	for i, n := range nchunks {
		if n < 1 {
			return fmt.Errorf("chunk counts must be positive, got %d", n)
		}
		axis := nx
		if len(nchunks) == 2 && i == 0 {
			axis = ny
		}
		if n > axis {
			return fmt.Errorf("chunk count %d exceeds axis size %d", n, axis)
		}
	}
	return nil
}

// BufferDistance returns the spatial buffer applied to destination chunk
// extents before source subsetting: the explicit value when supplied,
// otherwise BufferResolutionModifier times the coarser of the two grid
// resolutions.
func (c *Chunker) BufferDistance() float64 {
	if c.buffer > 0 {
		return c.buffer
	}
	return BufferResolutionModifier * math.Max(c.SrcResolution(), c.DstResolution())
}

// SrcResolution returns the source grid resolution, honoring the override.
func (c *Chunker) SrcResolution() float64 {
	if c.srcRes > 0 {
		return c.srcRes
	}
	return c.src.Resolution()
}

// DstResolution returns the destination grid resolution, honoring the
// override.
func (c *Chunker) DstResolution() float64 {
	if c.dstRes > 0 {
		return c.dstRes
	}
	return c.dst.Resolution()
}

// ChunkPath returns a working-directory path from a file name template.
func (c *Chunker) ChunkPath(template string, index int) string {
	return filepath.Join(c.wd, fmt.Sprintf(template, index))
}

// IndexPath returns the chunk index file path.
func (c *Chunker) IndexPath() string {
	return filepath.Join(c.wd, IndexFileName)
}

// WriteChunks decomposes the destination grid and, per chunk, writes the
// destination slice, the buffered source subset, and (when enabled) the
// chunk weight file. Chunks are processed on a bounded worker pool;
// returning from WriteChunks is the barrier ahead of merging. The chunk
// index file is written last.
func (c *Chunker) WriteChunks(ctx context.Context) ([]domain.Chunk, error) {
	chunks, err := c.DecomposeDst()
	if err != nil {
		return nil, err
	}
	buffer := c.BufferDistance()
	c.log.Info("decomposed destination grid",
		zap.Int("chunks", len(chunks)),
		zap.Float64("buffer_distance", buffer),
		zap.Bool("genweights", c.genWeights))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.nWorkers)
	for i := range chunks {
		eg.Go(func() error {
			if err := c.writeChunk(ctx, &chunks[i], buffer); err != nil {
				return fmt.Errorf("chunk %d: %w", chunks[i].Index, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := c.writeIndexFile(chunks); err != nil {
		return nil, fmt.Errorf("failed to write chunk index: %w", err)
	}
	return chunks, nil
}

func (c *Chunker) writeChunk(ctx context.Context, chunk *domain.Chunk, buffer float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var dstSub *grid.Grid
	var err error
	if c.dst.Type.Unstructured() {
		dstSub, err = c.dst.SliceElements(chunk.DstX)
	} else {
		dstSub, err = c.dst.SliceYX(chunk.DstY, chunk.DstX)
	}
	if err != nil {
		return err
	}

	chunk.DstPath = c.ChunkPath(DstTemplate, chunk.Index)
	if err := ncgrid.Write(chunk.DstPath, dstSub); err != nil {
		return err
	}

	dstExtent := dstSub.Extent()
	buffered := dstExtent.Buffer(buffer)
	srcSub, srcY, srcX, err := c.src.SubsetByExtent(buffered)
	if err != nil {
		return fmt.Errorf("source subset: %w", err)
	}
	chunk.SrcY = srcY
	chunk.SrcX = srcX

	// Under-buffering is a correctness bug: every destination cell must see
	// overlapping source cells. Verify the subset covers the full buffered
	// extent, clipped to what the source domain can supply, before any
	// weights are computed; the spherical check handles wrapped extents.
	want := coverageTarget(buffered, c.src.Extent())
	srcExtent := srcSub.Extent()
	if !srcExtent.Contains(want, containTol) && !srcExtent.ContainsSphere(want) {
		return fmt.Errorf("source subset extent %+v does not contain buffered chunk extent %+v: insufficient buffer", srcExtent, want)
	}

	chunk.SrcPath = c.ChunkPath(SrcTemplate, chunk.Index)
	if err := ncgrid.Write(chunk.SrcPath, srcSub); err != nil {
		return err
	}

	c.log.Debug("wrote chunk subsets",
		zap.Int("chunk", chunk.Index),
		zap.Int("dst_cells", dstSub.Size()),
		zap.Int("src_cells", srcSub.Size()))

	if !c.genWeights {
		return nil
	}

	chunk.WeightPath = c.ChunkPath(WgtTemplate, chunk.Index)
	job := domain.WeightJob{
		SrcPath:    chunk.SrcPath,
		DstPath:    chunk.DstPath,
		WeightPath: chunk.WeightPath,
		SrcType:    c.src.Type,
		DstType:    c.dst.Type,
		Method:     c.method,
	}
	if err := c.generator.Generate(ctx, job); err != nil {
		return err
	}
	c.log.Debug("generated chunk weights", zap.Int("chunk", chunk.Index), zap.String("path", chunk.WeightPath))
	return nil
}

// coverageTarget clips a buffered chunk extent to the region the source
// grid can supply. Latitude is always bounded by the source domain; the
// longitude clip is skipped for periodic sources, where an interval past
// the axis end wraps across the seam instead of leaving the domain.
func coverageTarget(buffered, src spatial.Extent) spatial.Extent {
	if src.Width() < 360.0-1e-9 {
		return buffered.Intersection(src)
	}
	buffered.YMin = math.Max(buffered.YMin, src.YMin)
	buffered.YMax = math.Min(buffered.YMax, src.YMax)
	return buffered
}

// CreateMergedWeightFile combines all chunk weight files into a single
// global weight file, remapping chunk-local indices to global indices via
// the chunk index file. It must run after WriteChunks completes.
func (c *Chunker) CreateMergedWeightFile(outPath string) error {
	idx, err := c.readIndexFile()
	if err != nil {
		return err
	}

	mappings := make([]weights.ChunkMapping, len(idx.Chunks))
	for i, ch := range idx.Chunks {
		mappings[i] = weights.ChunkMapping{
			Path:   c.ChunkPath(WgtTemplate, ch.Index),
			MapRow: globalIndexMapper(ch.DstY, ch.DstX, idx.DstNX, c.dst.Type.Unstructured()),
			MapCol: globalIndexMapper(ch.SrcY, ch.SrcX, idx.SrcNX, c.src.Type.Unstructured()),
		}
	}

	if err := weights.Merge(mappings, outPath); err != nil {
		return fmt.Errorf("weight file merge: %w", err)
	}
	c.log.Info("merged chunk weight files", zap.Int("chunks", len(mappings)), zap.String("path", outPath))
	return nil
}

// globalIndexMapper converts a 1-based chunk-local flattened index into the
// 1-based global flattened index for a subset at the given origin ranges.
func globalIndexMapper(ys, xs domain.IndexRange, globalNX int, unstructured bool) func(int32) int32 {
	if unstructured {
		start := int32(xs.Start)
		return func(local int32) int32 {
			return local + start
		}
	}
	localNX := xs.Len()
	return func(local int32) int32 {
		l := int(local) - 1
		y := l/localNX + ys.Start
		x := l%localNX + xs.Start
		return int32(y*globalNX + x + 1)
	}
}

// WriteSpatialSubset is the non-chunked alternative: the source grid is
// subset once by the destination grid's global extent, buffered by the
// source resolution, and written to path.
func (c *Chunker) WriteSpatialSubset(path string) error {
	buffer := c.buffer
	if buffer <= 0 {
		buffer = BufferResolutionModifier * c.SrcResolution()
	}
	buffered := c.dst.Extent().Buffer(buffer)
	sub, _, _, err := c.src.SubsetByExtent(buffered)
	if err != nil {
		return fmt.Errorf("spatial subset: %w", err)
	}
	if err := ncgrid.Write(path, sub); err != nil {
		return err
	}
	c.log.Info("wrote spatial subset",
		zap.String("path", path),
		zap.Int("src_cells", sub.Size()),
		zap.Float64("buffer_distance", buffer))
	return nil
}

// SrcExtent returns the source grid's global extent.
func (c *Chunker) SrcExtent() spatial.Extent { return c.src.Extent() }

// DstExtent returns the destination grid's global extent.
func (c *Chunker) DstExtent() spatial.Extent { return c.dst.Extent() }
