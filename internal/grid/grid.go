// Package grid provides the in-memory model for spherical lat/lon grids:
// logically rectangular grids with coordinate axes, and unstructured grids
// with per-element centers. Grids are read-only inputs to the pipeline;
// slicing and subsetting return new views with copied coordinates.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/rochamatcomp/ocgis/internal/domain"
	"github.com/rochamatcomp/ocgis/internal/spatial"
)

// Grid is a spherical lat/lon grid in memory.
//
// Rectangular grids (GRIDSPEC) carry 1-D coordinate axes X (longitude) and
// Y (latitude); cell (i, j) is centered at (Y[i], X[j]). Unstructured grids
// (UGRID, SCRIP) carry per-element centers with len(X) == len(Y) and no
// axis structure.
type Grid struct {
	Type domain.GridType

	X []float64 // Axis centers (rectangular) or element centers (unstructured).
	Y []float64

	// Optional cell bounds for rectangular grids: two corners per center,
	// flattened [lo0, hi0, lo1, hi1, ...]. len == 2*len(axis) when present.
	XBounds []float64
	YBounds []float64

	// Data variables carried through slicing, keyed by name, flattened
	// row-major over (Y, X) for rectangular grids.
	Data map[string][]float64
}

// NDim returns the dimensionality of the index space: 2 for rectangular
// grids, 1 for unstructured grids.
func (g *Grid) NDim() int {
	if g.Type.Unstructured() {
		return 1
	}
	return 2
}

// Shape returns (ny, nx) for rectangular grids. For unstructured grids ny
// is 1 and nx is the element count.
func (g *Grid) Shape() (int, int) {
	if g.Type.Unstructured() {
		return 1, len(g.X)
	}
	return len(g.Y), len(g.X)
}

// Size returns the total cell count.
func (g *Grid) Size() int {
	ny, nx := g.Shape()
	return ny * nx
}

// Validate checks coordinate monotonicity and shape agreement.
func (g *Grid) Validate() error {
	if len(g.X) == 0 || len(g.Y) == 0 {
		return fmt.Errorf("grid has empty coordinates")
	}
	if g.Type.Unstructured() {
		if len(g.X) != len(g.Y) {
			return fmt.Errorf("unstructured grid coordinate mismatch: %d x centers, %d y centers", len(g.X), len(g.Y))
		}
		return nil
	}
	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return fmt.Errorf("x axis must be strictly increasing (index %d)", i)
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if g.Y[i] <= g.Y[i-1] {
			return fmt.Errorf("y axis must be strictly increasing (index %d)", i)
		}
	}
	if g.XBounds != nil && len(g.XBounds) != 2*len(g.X) {
		return fmt.Errorf("x bounds length %d does not match axis length %d", len(g.XBounds), len(g.X))
	}
	if g.YBounds != nil && len(g.YBounds) != 2*len(g.Y) {
		return fmt.Errorf("y bounds length %d does not match axis length %d", len(g.YBounds), len(g.Y))
	}
	for name, vals := range g.Data {
		if len(vals) != g.Size() {
			return fmt.Errorf("data variable %q has %d values, expected %d", name, len(vals), g.Size())
		}
	}
	return nil
}

// Extent returns the grid's bounding extent in degrees. Cell bounds are
// honored when present; otherwise the extent is padded by half a cell so
// that it covers cell areas, not just centers.
func (g *Grid) Extent() spatial.Extent {
	if g.Type.Unstructured() {
		return spatial.Extent{
			XMin: minOf(g.X), XMax: maxOf(g.X),
			YMin: minOf(g.Y), YMax: maxOf(g.Y),
		}
	}
	ext := spatial.Extent{}
	if g.XBounds != nil {
		ext.XMin = minOf(g.XBounds)
		ext.XMax = maxOf(g.XBounds)
	} else {
		half := axisSpacing(g.X) / 2.0
		ext.XMin = g.X[0] - half
		ext.XMax = g.X[len(g.X)-1] + half
	}
	if g.YBounds != nil {
		ext.YMin = minOf(g.YBounds)
		ext.YMax = maxOf(g.YBounds)
	} else {
		half := axisSpacing(g.Y) / 2.0
		ext.YMin = math.Max(g.Y[0]-half, -90.0)
		ext.YMax = math.Min(g.Y[len(g.Y)-1]+half, 90.0)
	}
	return ext
}

// Resolution returns the grid's characteristic spacing in degrees: the
// larger of the mean x and y axis spacings for rectangular grids. For
// unstructured grids an isomorphic structure is assumed and the mean
// spacing of the sorted unique x centers is used; callers may override it
// when the assumption does not hold.
func (g *Grid) Resolution() float64 {
	if g.Type.Unstructured() {
		return uniqueSpacing(g.X)
	}
	return math.Max(axisSpacing(g.X), axisSpacing(g.Y))
}

// SliceYX returns the rectangular sub-grid covering the given y and x index
// ranges. Bounds and data variables are sliced alongside coordinates.
func (g *Grid) SliceYX(ys, xs domain.IndexRange) (*Grid, error) {
	if g.Type.Unstructured() {
		return nil, fmt.Errorf("cannot slice unstructured grid along two axes")
	}
	if ys.Start < 0 || ys.Stop > len(g.Y) || xs.Start < 0 || xs.Stop > len(g.X) ||
		ys.Len() <= 0 || xs.Len() <= 0 {
		return nil, fmt.Errorf("slice [%d:%d, %d:%d] out of range for grid shape (%d, %d)",
			ys.Start, ys.Stop, xs.Start, xs.Stop, len(g.Y), len(g.X))
	}
	out := &Grid{
		Type: g.Type,
		X:    append([]float64(nil), g.X[xs.Start:xs.Stop]...),
		Y:    append([]float64(nil), g.Y[ys.Start:ys.Stop]...),
	}
	if g.XBounds != nil {
		out.XBounds = append([]float64(nil), g.XBounds[2*xs.Start:2*xs.Stop]...)
	}
	if g.YBounds != nil {
		out.YBounds = append([]float64(nil), g.YBounds[2*ys.Start:2*ys.Stop]...)
	}
	if g.Data != nil {
		out.Data = make(map[string][]float64, len(g.Data))
		nx := len(g.X)
		for name, vals := range g.Data {
			sub := make([]float64, 0, ys.Len()*xs.Len())
			for i := ys.Start; i < ys.Stop; i++ {
				sub = append(sub, vals[i*nx+xs.Start:i*nx+xs.Stop]...)
			}
			out.Data[name] = sub
		}
	}
	return out, nil
}

// SliceElements returns the unstructured sub-grid covering the given
// element index range.
func (g *Grid) SliceElements(r domain.IndexRange) (*Grid, error) {
	if !g.Type.Unstructured() {
		return nil, fmt.Errorf("element slicing requires an unstructured grid")
	}
	if r.Start < 0 || r.Stop > len(g.X) || r.Len() <= 0 {
		return nil, fmt.Errorf("element slice [%d:%d] out of range for %d elements", r.Start, r.Stop, len(g.X))
	}
	out := &Grid{
		Type: g.Type,
		X:    append([]float64(nil), g.X[r.Start:r.Stop]...),
		Y:    append([]float64(nil), g.Y[r.Start:r.Stop]...),
	}
	if g.Data != nil {
		out.Data = make(map[string][]float64, len(g.Data))
		for name, vals := range g.Data {
			out.Data[name] = append([]float64(nil), vals[r.Start:r.Stop]...)
		}
	}
	return out, nil
}

// SubsetByExtent extracts the minimal sub-grid whose cells cover ext.
// For rectangular grids the returned ranges are the y and x index origins
// of the subset within the receiver; for unstructured grids only the x
// range is meaningful and holds the element selection as contiguous
// renumbering is applied by the caller. The error reports an empty
// intersection.
func (g *Grid) SubsetByExtent(ext spatial.Extent) (*Grid, domain.IndexRange, domain.IndexRange, error) {
	if err := ext.Validate(); err != nil {
		return nil, domain.IndexRange{}, domain.IndexRange{}, fmt.Errorf("subset extent: %w", err)
	}
	if g.Type.Unstructured() {
		// Select covered elements. Unstructured selections are not index
		// ranges; the subset keeps original ordering and the caller records
		// the element mapping separately.
		var keep []int
		for i := range g.X {
			if g.X[i] >= ext.XMin && g.X[i] <= ext.XMax && g.Y[i] >= ext.YMin && g.Y[i] <= ext.YMax {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			return nil, domain.IndexRange{}, domain.IndexRange{}, fmt.Errorf("no elements intersect extent [%.4f, %.4f, %.4f, %.4f]",
				ext.XMin, ext.YMin, ext.XMax, ext.YMax)
		}
		// Contiguous runs are the common case for index-ordered meshes; keep
		// the covering range so merge offsets stay a simple origin shift.
		r := domain.IndexRange{Start: keep[0], Stop: keep[len(keep)-1] + 1}
		sub, err := g.SliceElements(r)
		if err != nil {
			return nil, domain.IndexRange{}, domain.IndexRange{}, err
		}
		return sub, domain.IndexRange{Start: 0, Stop: 1}, r, nil
	}

	xs, err := g.lonCoverage(ext.XMin, ext.XMax)
	if err != nil {
		return nil, domain.IndexRange{}, domain.IndexRange{}, fmt.Errorf("x axis: %w", err)
	}
	ys, err := axisCoverage(g.Y, ext.YMin, ext.YMax)
	if err != nil {
		return nil, domain.IndexRange{}, domain.IndexRange{}, fmt.Errorf("y axis: %w", err)
	}
	sub, err := g.SliceYX(ys, xs)
	if err != nil {
		return nil, domain.IndexRange{}, domain.IndexRange{}, err
	}
	return sub, ys, xs, nil
}

// lonCoverage returns the minimal x index range covering [lo, hi]. On a
// longitudinally periodic grid an interval reaching past either end of the
// axis wraps across the seam; the wrapped cells sit at the opposite end of
// the axis, so the contiguous covering range is the full axis.
func (g *Grid) lonCoverage(lo, hi float64) (domain.IndexRange, error) {
	ext := g.Extent()
	if ext.Width() >= 360.0-1e-9 && (lo < ext.XMin || hi > ext.XMax) {
		return domain.IndexRange{Start: 0, Stop: len(g.X)}, nil
	}
	return axisCoverage(g.X, lo, hi)
}

// axisCoverage returns the minimal index range of a strictly increasing
// axis whose cells cover [lo, hi]. One extra cell is taken on each side
// when available so that cell edges, not just centers, span the interval.
func axisCoverage(axis []float64, lo, hi float64) (domain.IndexRange, error) {
	if hi < axis[0] || lo > axis[len(axis)-1] {
		return domain.IndexRange{}, fmt.Errorf("interval [%.4f, %.4f] does not intersect axis range [%.4f, %.4f]",
			lo, hi, axis[0], axis[len(axis)-1])
	}
	start := sort.SearchFloat64s(axis, lo)
	if start > 0 {
		start--
	}
	stop := sort.SearchFloat64s(axis, hi)
	if stop < len(axis) {
		stop++
	}
	return domain.IndexRange{Start: start, Stop: stop}, nil
}

func axisSpacing(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
}

// uniqueSpacing estimates element spacing from sorted unique coordinates.
func uniqueSpacing(coords []float64) float64 {
	if len(coords) < 2 {
		return 0
	}
	sorted := append([]float64(nil), coords...)
	sort.Float64s(sorted)
	unique := sorted[:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) < 2 {
		return 0
	}
	return (unique[len(unique)-1] - unique[0]) / float64(len(unique)-1)
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
