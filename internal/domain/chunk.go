package domain

// IndexRange is a half-open [Start, Stop) slice of a grid axis.
type IndexRange struct {
	Start int
	Stop  int
}

// Len returns the number of indices covered by the range.
func (r IndexRange) Len() int {
	return r.Stop - r.Start
}

// Chunk identifies one destination partition unit and the files produced
// for it. Chunk numbering is 1-based to match the chunk file name templates.
type Chunk struct {
	Index int

	// Destination index ranges. Rectangular grids use DstY and DstX;
	// unstructured grids use only DstX as the element range.
	DstY IndexRange
	DstX IndexRange

	// Source index origin of the extracted subset within the global source
	// grid, recorded for weight merging. Rectangular grids use both axes.
	SrcY IndexRange
	SrcX IndexRange

	// Working-directory artifact paths.
	SrcPath    string
	DstPath    string
	WeightPath string
}

// WeightJob describes one weight generation request handed to the external
// engine: a source/destination grid file pair, their type tags, and the
// regrid method.
type WeightJob struct {
	SrcPath    string
	DstPath    string
	WeightPath string
	SrcType    GridType
	DstType    GridType
	Method     RegridMethod
}

// WeightTriplets is a chunk-local or global sparse weight matrix in the
// external engine's triplet layout: S[i] is the contribution of source cell
// Col[i] to destination cell Row[i]. Indices are 1-based per the engine's
// convention.
type WeightTriplets struct {
	Row []int32
	Col []int32
	S   []float64
}

// Len returns the number of stored weights.
func (w *WeightTriplets) Len() int {
	return len(w.S)
}

// Append adds one weight entry.
func (w *WeightTriplets) Append(row, col int32, s float64) {
	w.Row = append(w.Row, row)
	w.Col = append(w.Col, col)
	w.S = append(w.S, s)
}
