package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rochamatcomp/ocgis/internal/adapter/ncgrid"
	"github.com/rochamatcomp/ocgis/internal/adapter/weights"
	"github.com/rochamatcomp/ocgis/internal/domain"
	"github.com/rochamatcomp/ocgis/internal/grid"
	"github.com/rochamatcomp/ocgis/internal/spatial"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newGlobalGrid builds a global rectangular grid with cell bounds.
func newGlobalGrid(t *testing.T, resolution float64) *grid.Grid {
	t.Helper()

	nLat := int(180.0 / resolution)
	nLon := int(360.0 / resolution)
	g := &grid.Grid{
		Type:    domain.GridTypeGRIDSPEC,
		Y:       make([]float64, nLat),
		X:       make([]float64, nLon),
		YBounds: make([]float64, 2*nLat),
		XBounds: make([]float64, 2*nLon),
	}
	for i := 0; i < nLat; i++ {
		g.Y[i] = -90.0 + (float64(i)+0.5)*resolution
		g.YBounds[2*i] = g.Y[i] - resolution/2
		g.YBounds[2*i+1] = g.Y[i] + resolution/2
	}
	for j := 0; j < nLon; j++ {
		g.X[j] = (float64(j) + 0.5) * resolution
		g.XBounds[2*j] = g.X[j] - resolution/2
		g.XBounds[2*j+1] = g.X[j] + resolution/2
	}
	require.NoError(t, g.Validate())
	return g
}

// fakeGenerator stands in for the external engine: it emits one unit
// weight per destination cell so merged coverage can be checked exactly.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []domain.WeightJob
}

func (f *fakeGenerator) Generate(_ context.Context, job domain.WeightJob) error {
	dst, err := ncgrid.Read(job.DstPath, job.DstType)
	if err != nil {
		return err
	}
	w := &domain.WeightTriplets{}
	for i := 1; i <= dst.Size(); i++ {
		w.Append(int32(i), 1, 1.0)
	}
	if err := weights.Write(job.WeightPath, w); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, job)
	f.mu.Unlock()
	return nil
}

// failingGenerator surfaces an engine failure.
type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, domain.WeightJob) error {
	return fmt.Errorf("ESMF: conservative regridding requires cell corner coordinates")
}

func newChunker(t *testing.T, src, dst *grid.Grid, opts Options) *Chunker {
	t.Helper()
	if opts.WD == "" {
		opts.WD = t.TempDir()
	}
	c, err := New(src, dst, opts)
	require.NoError(t, err)
	return c
}

func TestDecomposeDstMatchesReferenceSlices(t *testing.T) {
	// A 0.5 degree global grid split (2, 3) decomposes into 180-row by
	// 240-column chunks, iterated y-major.
	dst := newGlobalGrid(t, 0.5)
	c := newChunker(t, newGlobalGrid(t, 1.0), dst, Options{NChunks: []int{2, 3}})

	chunks, err := c.DecomposeDst()
	require.NoError(t, err)
	require.Len(t, chunks, 6)

	want := []struct{ y, x domain.IndexRange }{
		{domain.IndexRange{Start: 0, Stop: 180}, domain.IndexRange{Start: 0, Stop: 240}},
		{domain.IndexRange{Start: 0, Stop: 180}, domain.IndexRange{Start: 240, Stop: 480}},
		{domain.IndexRange{Start: 0, Stop: 180}, domain.IndexRange{Start: 480, Stop: 720}},
		{domain.IndexRange{Start: 180, Stop: 360}, domain.IndexRange{Start: 0, Stop: 240}},
		{domain.IndexRange{Start: 180, Stop: 360}, domain.IndexRange{Start: 240, Stop: 480}},
		{domain.IndexRange{Start: 180, Stop: 360}, domain.IndexRange{Start: 480, Stop: 720}},
	}
	for i, w := range want {
		assert.Equal(t, i+1, chunks[i].Index)
		assert.Equal(t, w.y, chunks[i].DstY, "chunk %d y", i+1)
		assert.Equal(t, w.x, chunks[i].DstX, "chunk %d x", i+1)
	}
}

func TestDecomposeDstPartitionsIndexSpace(t *testing.T) {
	// Every valid decomposition, even and uneven, covers the index space
	// exactly once.
	dst := newGlobalGrid(t, 10.0) // 18 x 36
	src := newGlobalGrid(t, 10.0)

	for _, nc := range [][]int{{1, 1}, {2, 3}, {5, 5}, {18, 36}, {7, 11}} {
		c := newChunker(t, src, dst, Options{NChunks: nc})
		chunks, err := c.DecomposeDst()
		require.NoError(t, err)
		require.Len(t, chunks, nc[0]*nc[1])

		ny, nx := dst.Shape()
		covered := make([]bool, ny*nx)
		for _, ch := range chunks {
			for y := ch.DstY.Start; y < ch.DstY.Stop; y++ {
				for x := ch.DstX.Start; x < ch.DstX.Stop; x++ {
					idx := y*nx + x
					assert.False(t, covered[idx], "nchunks=%v: index (%d,%d) covered twice", nc, y, x)
					covered[idx] = true
				}
			}
		}
		for idx, ok := range covered {
			assert.True(t, ok, "nchunks=%v: index %d uncovered", nc, idx)
		}
	}
}

func TestDecomposeDstUnstructured(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := &grid.Grid{
		Type: domain.GridTypeSCRIP,
		X:    []float64{5, 15, 25, 35, 45, 55, 65},
		Y:    []float64{0, 0, 0, 0, 0, 0, 0},
	}

	c := newChunker(t, src, dst, Options{NChunks: []int{3}})
	chunks, err := c.DecomposeDst()
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// 7 elements in 3 chunks: leading chunk takes the remainder.
	assert.Equal(t, domain.IndexRange{Start: 0, Stop: 3}, chunks[0].DstX)
	assert.Equal(t, domain.IndexRange{Start: 3, Stop: 5}, chunks[1].DstX)
	assert.Equal(t, domain.IndexRange{Start: 5, Stop: 7}, chunks[2].DstX)
}

func TestNewRejectsBadDecompositions(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)
	unstruct := &grid.Grid{Type: domain.GridTypeSCRIP, X: []float64{5, 15}, Y: []float64{0, 0}}

	for name, tc := range map[string]struct {
		dst     *grid.Grid
		nchunks []int
	}{
		"missing":                    {dst, nil},
		"one value for rectangular":  {dst, []int{4}},
		"two values for unstructured": {unstruct, []int{2, 2}},
		"zero count":                 {dst, []int{0, 2}},
		"count exceeds y axis":       {dst, []int{19, 1}},
		"count exceeds x axis":       {dst, []int{1, 37}},
	} {
		_, err := New(src, tc.dst, Options{NChunks: tc.nchunks, WD: t.TempDir()})
		assert.Error(t, err, name)
	}
}

func TestBufferDistanceDefaultsToCoarserResolution(t *testing.T) {
	src := newGlobalGrid(t, 1.0)
	dst := newGlobalGrid(t, 0.5)

	c := newChunker(t, src, dst, Options{NChunks: []int{2, 2}})
	assert.InDelta(t, 2.0*1.0, c.BufferDistance(), 1e-12)

	// Explicit buffer wins.
	c = newChunker(t, src, dst, Options{NChunks: []int{2, 2}, BufferDistance: 7.5})
	assert.InDelta(t, 7.5, c.BufferDistance(), 1e-12)

	// Resolution overrides feed the computed buffer.
	c = newChunker(t, src, dst, Options{NChunks: []int{2, 2}, SrcResolution: 3.0})
	assert.InDelta(t, 6.0, c.BufferDistance(), 1e-12)
}

func TestWriteChunksScenarioMergedCoverage(t *testing.T) {
	// Source at 10 degrees, destination at 5 degrees, split 5x5: 25 chunk
	// weight files merge into one global file covering every destination
	// cell exactly once.
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 5.0) // 36 x 72

	gen := &fakeGenerator{}
	wd := t.TempDir()
	c := newChunker(t, src, dst, Options{
		NChunks:    []int{5, 5},
		WD:         wd,
		GenWeights: true,
		Generator:  gen,
		NWorkers:   4,
	})

	chunks, err := c.WriteChunks(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 25)
	assert.Len(t, gen.calls, 25)

	for i := 1; i <= 25; i++ {
		assert.FileExists(t, c.ChunkPath(SrcTemplate, i))
		assert.FileExists(t, c.ChunkPath(DstTemplate, i))
		assert.FileExists(t, c.ChunkPath(WgtTemplate, i))
	}
	assert.FileExists(t, c.IndexPath())

	merged := filepath.Join(t.TempDir(), "merged_weights.nc")
	require.NoError(t, c.CreateMergedWeightFile(merged))

	w, err := weights.Read(merged)
	require.NoError(t, err)
	require.Equal(t, dst.Size(), w.Len())

	seen := make(map[int32]int, w.Len())
	for _, row := range w.Row {
		seen[row]++
	}
	for gidx := 1; gidx <= dst.Size(); gidx++ {
		assert.Equal(t, 1, seen[int32(gidx)], "destination cell %d", gidx)
	}
}

func TestWriteChunksDecompositionOnly(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)

	wd := t.TempDir()
	c := newChunker(t, src, dst, Options{NChunks: []int{2, 2}, WD: wd})

	chunks, err := c.WriteChunks(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for i := 1; i <= 4; i++ {
		assert.FileExists(t, c.ChunkPath(SrcTemplate, i))
		assert.FileExists(t, c.ChunkPath(DstTemplate, i))
		assert.NoFileExists(t, c.ChunkPath(WgtTemplate, i))
	}
}

func TestWriteChunksSubsetContainsChunkExtent(t *testing.T) {
	src := newGlobalGrid(t, 3.0)
	dst := newGlobalGrid(t, 2.0)

	wd := t.TempDir()
	c := newChunker(t, src, dst, Options{NChunks: []int{3, 3}, WD: wd})

	chunks, err := c.WriteChunks(context.Background())
	require.NoError(t, err)

	for _, ch := range chunks {
		srcSub, err := ncgrid.Read(ch.SrcPath, domain.GridTypeGRIDSPEC)
		require.NoError(t, err)
		dstSub, err := ncgrid.Read(ch.DstPath, domain.GridTypeGRIDSPEC)
		require.NoError(t, err)
		assert.True(t, srcSub.Extent().Contains(dstSub.Extent(), 1e-9),
			"chunk %d: source subset must contain destination chunk", ch.Index)
	}
}

func TestWriteChunksLargerBufferStillContains(t *testing.T) {
	// Any buffer at least as large as the automatic one keeps coverage.
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 5.0)

	auto := newChunker(t, src, dst, Options{NChunks: []int{2, 2}}).BufferDistance()
	for _, buffer := range []float64{auto, auto * 1.5, auto * 3} {
		c := newChunker(t, src, dst, Options{NChunks: []int{2, 2}, BufferDistance: buffer})
		_, err := c.WriteChunks(context.Background())
		require.NoError(t, err, "buffer %f", buffer)
	}
}

func TestWriteChunksSeamChunksIncludeWrappedSource(t *testing.T) {
	// Chunks touching the periodic longitude seam need source cells from
	// the far end of the axis; their buffered subsets span the full
	// longitude range while interior chunks stay local.
	src := newGlobalGrid(t, 1.0)
	dst := newGlobalGrid(t, 2.0)

	c := newChunker(t, src, dst, Options{NChunks: []int{1, 4}})
	chunks, err := c.WriteChunks(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	_, srcNX := src.Shape()
	_, dstNX := dst.Shape()
	for _, ch := range chunks {
		if ch.DstX.Start == 0 || ch.DstX.Stop == dstNX {
			assert.Equal(t, domain.IndexRange{Start: 0, Stop: srcNX}, ch.SrcX, "seam chunk %d", ch.Index)
		} else {
			assert.Less(t, ch.SrcX.Len(), srcNX, "interior chunk %d", ch.Index)
		}
	}
}

func TestCoverageTargetClipsToSourceDomain(t *testing.T) {
	buffered := spatial.Extent{XMin: -4, YMin: -95, XMax: 94, YMax: 40}

	// Periodic source: longitude passes through untouched, latitude clamps.
	global := spatial.Extent{XMin: 0, YMin: -90, XMax: 360, YMax: 90}
	assert.Equal(t,
		spatial.Extent{XMin: -4, YMin: -90, XMax: 94, YMax: 40},
		coverageTarget(buffered, global))

	// Regional source: the target clips to the domain on both axes.
	regional := spatial.Extent{XMin: 0, YMin: -90, XMax: 180, YMax: 90}
	assert.Equal(t,
		spatial.Extent{XMin: 0, YMin: -90, XMax: 94, YMax: 40},
		coverageTarget(buffered, regional))
}

func TestWriteChunksSurfacesGeneratorError(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)

	c := newChunker(t, src, dst, Options{
		NChunks:    []int{2, 2},
		GenWeights: true,
		Generator:  failingGenerator{},
	})
	_, err := c.WriteChunks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ESMF: conservative regridding")
}

func TestWriteChunksCancelledContext(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 5.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newChunker(t, src, dst, Options{NChunks: []int{5, 5}, NWorkers: 2})
	_, err := c.WriteChunks(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateMergedWeightFileRequiresChunkWeights(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)

	wd := t.TempDir()
	c := newChunker(t, src, dst, Options{NChunks: []int{2, 2}, WD: wd})
	_, err := c.WriteChunks(context.Background())
	require.NoError(t, err)

	// Decomposition-only run left no weight files to merge.
	err = c.CreateMergedWeightFile(filepath.Join(t.TempDir(), "merged.nc"))
	assert.Error(t, err)
}

func TestWriteSpatialSubsetSingleFile(t *testing.T) {
	src := newGlobalGrid(t, 1.0)

	// Single-cell destination: the subset covers its extent plus buffer.
	dst := &grid.Grid{
		Type:    domain.GridTypeGRIDSPEC,
		X:       []float64{120.5},
		Y:       []float64{35.5},
		XBounds: []float64{120.0, 121.0},
		YBounds: []float64{35.0, 36.0},
	}
	require.NoError(t, dst.Validate())

	c := newChunker(t, src, dst, Options{NChunks: []int{1, 1}})
	path := filepath.Join(t.TempDir(), "spatial_subset.nc")
	require.NoError(t, c.WriteSpatialSubset(path))

	sub, err := ncgrid.Read(path, domain.GridTypeGRIDSPEC)
	require.NoError(t, err)
	assert.True(t, sub.Extent().Contains(dst.Extent(), 1e-9))

	// The subset stays local: far smaller than the global source.
	assert.Less(t, sub.Size(), src.Size()/100)
}

func TestChunkPathTemplates(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)
	c := newChunker(t, src, dst, Options{NChunks: []int{2, 2}, WD: "/tmp/work"})

	assert.Equal(t, "/tmp/work/split_src_3.nc", c.ChunkPath(SrcTemplate, 3))
	assert.Equal(t, "/tmp/work/split_dst_3.nc", c.ChunkPath(DstTemplate, 3))
	assert.Equal(t, "/tmp/work/esmf_weights_3.nc", c.ChunkPath(WgtTemplate, 3))
	assert.Equal(t, "/tmp/work/01-chunk_index.nc", c.IndexPath())
}

func TestSplitRange(t *testing.T) {
	ranges := splitRange(10, 3)
	assert.Equal(t, []domain.IndexRange{
		{Start: 0, Stop: 4}, {Start: 4, Stop: 7}, {Start: 7, Stop: 10},
	}, ranges)

	ranges = splitRange(6, 6)
	for i, r := range ranges {
		assert.Equal(t, domain.IndexRange{Start: i, Stop: i + 1}, r)
	}
}

func TestWriteChunksDoesNotLeaveStrayFiles(t *testing.T) {
	src := newGlobalGrid(t, 10.0)
	dst := newGlobalGrid(t, 10.0)

	wd := t.TempDir()
	c := newChunker(t, src, dst, Options{NChunks: []int{1, 2}, WD: wd})
	_, err := c.WriteChunks(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(wd)
	require.NoError(t, err)
	// Two chunks, two files each, plus the index file.
	assert.Len(t, entries, 5)
}
