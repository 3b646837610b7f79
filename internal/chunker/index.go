package chunker

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/rochamatcomp/ocgis/internal/domain"
)

// chunkIndex is the persisted record of a decomposition: the per-chunk
// destination and source index ranges plus the global grid shapes. Merging
// reads it instead of re-deriving offsets, so a merge can run against a
// persisted working directory from an earlier invocation.
type chunkIndex struct {
	SrcNY, SrcNX int
	DstNY, DstNX int
	Chunks       []domain.Chunk
}

// Index file variable names.
const (
	varDstYStart = "dst_y_start"
	varDstYStop  = "dst_y_stop"
	varDstXStart = "dst_x_start"
	varDstXStop  = "dst_x_stop"
	varSrcYStart = "src_y_start"
	varSrcYStop  = "src_y_stop"
	varSrcXStart = "src_x_start"
	varSrcXStop  = "src_x_stop"
	varSrcShape  = "src_shape"
	varDstShape  = "dst_shape"
)

func (c *Chunker) writeIndexFile(chunks []domain.Chunk) error {
	nc, err := netcdf.CreateFile(c.IndexPath(), netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	chunkDim, err := nc.AddDim("n_chunks", uint64(len(chunks)))
	if err != nil {
		return err
	}
	rankDim, err := nc.AddDim("grid_rank", 2)
	if err != nil {
		return err
	}

	cols := map[string]func(domain.Chunk) int32{
		varDstYStart: func(ch domain.Chunk) int32 { return int32(ch.DstY.Start) },
		varDstYStop:  func(ch domain.Chunk) int32 { return int32(ch.DstY.Stop) },
		varDstXStart: func(ch domain.Chunk) int32 { return int32(ch.DstX.Start) },
		varDstXStop:  func(ch domain.Chunk) int32 { return int32(ch.DstX.Stop) },
		varSrcYStart: func(ch domain.Chunk) int32 { return int32(ch.SrcY.Start) },
		varSrcYStop:  func(ch domain.Chunk) int32 { return int32(ch.SrcY.Stop) },
		varSrcXStart: func(ch domain.Chunk) int32 { return int32(ch.SrcX.Start) },
		varSrcXStop:  func(ch domain.Chunk) int32 { return int32(ch.SrcX.Stop) },
	}
	for _, name := range indexColumnOrder() {
		v, err := nc.AddVar(name, netcdf.INT, []netcdf.Dim{chunkDim})
		if err != nil {
			return err
		}
		vals := make([]int32, len(chunks))
		for i, ch := range chunks {
			vals[i] = cols[name](ch)
		}
		if err := v.WriteInt32s(vals); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	srcNY, srcNX := c.src.Shape()
	dstNY, dstNX := c.dst.Shape()
	for name, shape := range map[string][]int32{
		varSrcShape: {int32(srcNY), int32(srcNX)},
		varDstShape: {int32(dstNY), int32(dstNX)},
	} {
		v, err := nc.AddVar(name, netcdf.INT, []netcdf.Dim{rankDim})
		if err != nil {
			return err
		}
		if err := v.WriteInt32s(shape); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func (c *Chunker) readIndexFile() (*chunkIndex, error) {
	nc, err := netcdf.OpenFile(c.IndexPath(), netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk index %s: %w", c.IndexPath(), err)
	}
	defer func() { _ = nc.Close() }()

	dim, err := nc.Dim("n_chunks")
	if err != nil {
		return nil, fmt.Errorf("chunk index missing n_chunks dimension: %w", err)
	}
	n, err := dim.Len()
	if err != nil {
		return nil, err
	}

	read := func(name string, length int) ([]int32, error) {
		v, err := nc.Var(name)
		if err != nil {
			return nil, fmt.Errorf("chunk index missing variable %s: %w", name, err)
		}
		vals := make([]int32, length)
		if err := v.ReadInt32s(vals); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return vals, nil
	}

	cols := make(map[string][]int32, 8)
	for _, name := range indexColumnOrder() {
		vals, err := read(name, int(n))
		if err != nil {
			return nil, err
		}
		cols[name] = vals
	}
	srcShape, err := read(varSrcShape, 2)
	if err != nil {
		return nil, err
	}
	dstShape, err := read(varDstShape, 2)
	if err != nil {
		return nil, err
	}

	idx := &chunkIndex{
		SrcNY: int(srcShape[0]), SrcNX: int(srcShape[1]),
		DstNY: int(dstShape[0]), DstNX: int(dstShape[1]),
		Chunks: make([]domain.Chunk, n),
	}
	for i := range idx.Chunks {
		idx.Chunks[i] = domain.Chunk{
			Index: i + 1,
			DstY:  domain.IndexRange{Start: int(cols[varDstYStart][i]), Stop: int(cols[varDstYStop][i])},
			DstX:  domain.IndexRange{Start: int(cols[varDstXStart][i]), Stop: int(cols[varDstXStop][i])},
			SrcY:  domain.IndexRange{Start: int(cols[varSrcYStart][i]), Stop: int(cols[varSrcYStop][i])},
			SrcX:  domain.IndexRange{Start: int(cols[varSrcXStart][i]), Stop: int(cols[varSrcXStop][i])},
		}
	}
	return idx, nil
}

func indexColumnOrder() []string {
	return []string{
		varDstYStart, varDstYStop, varDstXStart, varDstXStop,
		varSrcYStart, varSrcYStop, varSrcXStart, varSrcXStop,
	}
}
