// Package weights reads, writes, and merges regrid weight files in the
// external engine's sparse triplet layout: dimension n_s with variables
// row (destination index), col (source index), and S (weight value).
// Indices are 1-based.
package weights

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/rochamatcomp/ocgis/internal/domain"
)

// Read loads a weight file's triplets.
func Read(path string) (*domain.WeightTriplets, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open weight file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	dim, err := nc.Dim("n_s")
	if err != nil {
		return nil, fmt.Errorf("weight file %s missing n_s dimension: %w", path, err)
	}
	n, err := dim.Len()
	if err != nil {
		return nil, err
	}

	w := &domain.WeightTriplets{
		Row: make([]int32, n),
		Col: make([]int32, n),
		S:   make([]float64, n),
	}
	for _, spec := range []struct {
		name string
		read func(netcdf.Var) error
	}{
		{"row", func(v netcdf.Var) error { return v.ReadInt32s(w.Row) }},
		{"col", func(v netcdf.Var) error { return v.ReadInt32s(w.Col) }},
		{"S", func(v netcdf.Var) error { return v.ReadFloat64s(w.S) }},
	} {
		v, err := nc.Var(spec.name)
		if err != nil {
			return nil, fmt.Errorf("weight file %s missing variable %s: %w", path, spec.name, err)
		}
		if err := spec.read(v); err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", spec.name, path, err)
		}
	}
	return w, nil
}

// Write stores triplets as a weight file.
func Write(path string, w *domain.WeightTriplets) error {
	if len(w.Row) != len(w.S) || len(w.Col) != len(w.S) {
		return fmt.Errorf("triplet length mismatch: row=%d col=%d S=%d", len(w.Row), len(w.Col), len(w.S))
	}

	nc, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create weight file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	dim, err := nc.AddDim("n_s", uint64(w.Len()))
	if err != nil {
		return err
	}
	rowVar, err := nc.AddVar("row", netcdf.INT, []netcdf.Dim{dim})
	if err != nil {
		return err
	}
	colVar, err := nc.AddVar("col", netcdf.INT, []netcdf.Dim{dim})
	if err != nil {
		return err
	}
	sVar, err := nc.AddVar("S", netcdf.DOUBLE, []netcdf.Dim{dim})
	if err != nil {
		return err
	}

	if err := rowVar.WriteInt32s(w.Row); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := colVar.WriteInt32s(w.Col); err != nil {
		return fmt.Errorf("failed to write col: %w", err)
	}
	if err := sVar.WriteFloat64s(w.S); err != nil {
		return fmt.Errorf("failed to write S: %w", err)
	}
	return nil
}

// ChunkMapping remaps one chunk weight file's local indices into the global
// index spaces of the unsplit grids. MapRow and MapCol take a 1-based local
// index and return the 1-based global index.
type ChunkMapping struct {
	Path   string
	MapRow func(int32) int32
	MapCol func(int32) int32
}

// Merge concatenates chunk weight files into a single global file after
// remapping indices. Weight values pass through unchanged; merging is a
// union over disjoint destination coverage, never a recomputation. A
// destination row appearing in more than one chunk file is an error since
// it means the decomposition overlapped.
func Merge(chunks []ChunkMapping, outPath string) error {
	merged := &domain.WeightTriplets{}
	seenDst := make(map[int32]int) // global row -> chunk that contributed it

	for ci, c := range chunks {
		w, err := Read(c.Path)
		if err != nil {
			return err
		}
		rowsThisChunk := make(map[int32]bool, w.Len())
		for i := 0; i < w.Len(); i++ {
			row := c.MapRow(w.Row[i])
			col := c.MapCol(w.Col[i])
			if prev, ok := seenDst[row]; ok && prev != ci {
				return fmt.Errorf("destination cell %d appears in chunk files %d and %d: decomposition overlap", row, prev+1, ci+1)
			}
			rowsThisChunk[row] = true
			merged.Append(row, col, w.S[i])
		}
		for row := range rowsThisChunk {
			seenDst[row] = ci
		}
	}

	if merged.Len() == 0 {
		return fmt.Errorf("no weights found across %d chunk files", len(chunks))
	}
	return Write(outPath, merged)
}
