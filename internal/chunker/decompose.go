package chunker

import (
	"github.com/rochamatcomp/ocgis/internal/domain"
)

// DecomposeDst partitions the destination grid's index space into the
// configured number of chunks: an exhaustive, non-overlapping cover.
//
// Rectangular grids split y-major over (ny, nx) chunk counts; unstructured
// grids split the 1-D element range. Uneven divisions give the leading
// chunks one extra index each, so every count from 1 to the axis size
// produces a valid partition.
func (c *Chunker) DecomposeDst() ([]domain.Chunk, error) {
	if err := validateNChunks(c.dst, c.nchunks); err != nil {
		return nil, err
	}

	if c.dst.Type.Unstructured() {
		_, nx := c.dst.Shape()
		ranges := splitRange(nx, c.nchunks[0])
		chunks := make([]domain.Chunk, len(ranges))
		for i, r := range ranges {
			chunks[i] = domain.Chunk{Index: i + 1, DstX: r}
		}
		return chunks, nil
	}

	ny, nx := c.dst.Shape()
	yRanges := splitRange(ny, c.nchunks[0])
	xRanges := splitRange(nx, c.nchunks[1])
	chunks := make([]domain.Chunk, 0, len(yRanges)*len(xRanges))
	ctr := 1
	for _, yr := range yRanges {
		for _, xr := range xRanges {
			chunks = append(chunks, domain.Chunk{Index: ctr, DstY: yr, DstX: xr})
			ctr++
		}
	}
	return chunks, nil
}

// splitRange divides [0, size) into n contiguous half-open ranges. The
// first size%n ranges receive one extra index.
func splitRange(size, n int) []domain.IndexRange {
	base := size / n
	rem := size % n
	ranges := make([]domain.IndexRange, n)
	start := 0
	for i := 0; i < n; i++ {
		length := base
		if i < rem {
			length++
		}
		ranges[i] = domain.IndexRange{Start: start, Stop: start + length}
		start += length
	}
	return ranges
}
