// Package ncgrid reads and writes spherical lat/lon grids in NetCDF files
// following the GRIDSPEC, SCRIP, and UGRID conventions.
package ncgrid

import (
	"fmt"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/rochamatcomp/ocgis/internal/domain"
	"github.com/rochamatcomp/ocgis/internal/grid"
)

// Candidate variable names per convention. The first match wins.
var (
	gridspecLatNames = []string{"lat", "latitude", "y"}
	gridspecLonNames = []string{"lon", "longitude", "x"}
	latBoundsNames   = []string{"lat_bnds", "lat_bounds", "latitude_bnds"}
	lonBoundsNames   = []string{"lon_bnds", "lon_bounds", "longitude_bnds"}
	dataNames        = []string{"data", "values", "z"}
	ugridLatNames    = []string{"face_center_y", "mesh_node_y"}
	ugridLonNames    = []string{"face_center_x", "mesh_node_x"}
)

// Read loads a grid from a NetCDF file according to its declared type.
func Read(path string, typ domain.GridType) (*grid.Grid, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	switch typ {
	case domain.GridTypeGRIDSPEC:
		return readGridspec(nc)
	case domain.GridTypeSCRIP:
		return readUnstructured(nc, typ, []string{"grid_center_lat"}, []string{"grid_center_lon"})
	case domain.GridTypeUGRID:
		return readUnstructured(nc, typ, ugridLatNames, ugridLonNames)
	default:
		return nil, fmt.Errorf("unsupported grid type %q", typ)
	}
}

func readGridspec(nc netcdf.Dataset) (*grid.Grid, error) {
	lat, err := readFirst1D(nc, gridspecLatNames)
	if err != nil {
		return nil, fmt.Errorf("latitude axis: %w", err)
	}
	lon, err := readFirst1D(nc, gridspecLonNames)
	if err != nil {
		return nil, fmt.Errorf("longitude axis: %w", err)
	}

	g := &grid.Grid{
		Type: domain.GridTypeGRIDSPEC,
		X:    lon,
		Y:    lat,
	}

	// Bounds are optional; subsetting falls back to half-cell padding.
	if b, err := readFirst1D(nc, latBoundsNames); err == nil && len(b) == 2*len(lat) {
		g.YBounds = b
	}
	if b, err := readFirst1D(nc, lonBoundsNames); err == nil && len(b) == 2*len(lon) {
		g.XBounds = b
	}

	// Carry any recognized data variable through subsetting so chunk files
	// remain usable for validation downstream.
	for _, name := range dataNames {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		vals, err := readVarFloat64(v, len(lat)*len(lon))
		if err != nil {
			continue
		}
		if g.Data == nil {
			g.Data = make(map[string][]float64)
		}
		g.Data[name] = vals
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GRIDSPEC grid: %w", err)
	}
	return g, nil
}

func readUnstructured(nc netcdf.Dataset, typ domain.GridType, latNames, lonNames []string) (*grid.Grid, error) {
	lat, err := readFirst1D(nc, latNames)
	if err != nil {
		return nil, fmt.Errorf("element center latitude: %w", err)
	}
	lon, err := readFirst1D(nc, lonNames)
	if err != nil {
		return nil, fmt.Errorf("element center longitude: %w", err)
	}
	g := &grid.Grid{Type: typ, X: lon, Y: lat}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s grid: %w", typ, err)
	}
	return g, nil
}

// Write stores a grid in the same convention it was read in.
func Write(path string, g *grid.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid grid: %w", err)
	}

	nc, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	switch g.Type {
	case domain.GridTypeGRIDSPEC:
		return writeGridspec(nc, g)
	case domain.GridTypeSCRIP:
		return writeUnstructured(nc, g, "grid_size", "grid_center_lat", "grid_center_lon")
	case domain.GridTypeUGRID:
		return writeUnstructured(nc, g, "element_count", "face_center_y", "face_center_x")
	default:
		return fmt.Errorf("unsupported grid type %q", g.Type)
	}
}

func writeGridspec(nc netcdf.Dataset, g *grid.Grid) error {
	latDim, err := nc.AddDim("lat", uint64(len(g.Y)))
	if err != nil {
		return err
	}
	lonDim, err := nc.AddDim("lon", uint64(len(g.X)))
	if err != nil {
		return err
	}

	latVar, err := nc.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return err
	}
	lonVar, err := nc.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return err
	}

	var latBndsVar, lonBndsVar netcdf.Var
	var bndDim netcdf.Dim
	if g.YBounds != nil || g.XBounds != nil {
		bndDim, err = nc.AddDim("bnds", 2)
		if err != nil {
			return err
		}
	}
	if g.YBounds != nil {
		latBndsVar, err = nc.AddVar("lat_bnds", netcdf.DOUBLE, []netcdf.Dim{latDim, bndDim})
		if err != nil {
			return err
		}
	}
	if g.XBounds != nil {
		lonBndsVar, err = nc.AddVar("lon_bnds", netcdf.DOUBLE, []netcdf.Dim{lonDim, bndDim})
		if err != nil {
			return err
		}
	}

	dataVars := make(map[string]netcdf.Var, len(g.Data))
	for name := range g.Data {
		v, err := nc.AddVar(name, netcdf.DOUBLE, []netcdf.Dim{latDim, lonDim})
		if err != nil {
			return err
		}
		dataVars[name] = v
	}

	if err := latVar.WriteFloat64s(g.Y); err != nil {
		return fmt.Errorf("failed to write lat: %w", err)
	}
	if err := lonVar.WriteFloat64s(g.X); err != nil {
		return fmt.Errorf("failed to write lon: %w", err)
	}
	if g.YBounds != nil {
		if err := latBndsVar.WriteFloat64s(g.YBounds); err != nil {
			return fmt.Errorf("failed to write lat_bnds: %w", err)
		}
	}
	if g.XBounds != nil {
		if err := lonBndsVar.WriteFloat64s(g.XBounds); err != nil {
			return fmt.Errorf("failed to write lon_bnds: %w", err)
		}
	}
	for name, v := range dataVars {
		if err := v.WriteFloat64s(g.Data[name]); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeUnstructured(nc netcdf.Dataset, g *grid.Grid, dimName, latName, lonName string) error {
	dim, err := nc.AddDim(dimName, uint64(len(g.X)))
	if err != nil {
		return err
	}
	latVar, err := nc.AddVar(latName, netcdf.DOUBLE, []netcdf.Dim{dim})
	if err != nil {
		return err
	}
	lonVar, err := nc.AddVar(lonName, netcdf.DOUBLE, []netcdf.Dim{dim})
	if err != nil {
		return err
	}
	if err := latVar.WriteFloat64s(g.Y); err != nil {
		return fmt.Errorf("failed to write %s: %w", latName, err)
	}
	if err := lonVar.WriteFloat64s(g.X); err != nil {
		return fmt.Errorf("failed to write %s: %w", lonName, err)
	}
	return nil
}

// readFirst1D reads the first present candidate as a flattened float64
// array. Bounds variables are 2-D; their flattened layout matches the
// in-memory convention.
func readFirst1D(nc netcdf.Dataset, candidates []string) ([]float64, error) {
	for _, name := range candidates {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		n, err := varLen(v)
		if err != nil {
			continue
		}
		data, err := readVarFloat64(v, n)
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("variable not found (tried: %v)", candidates)
}

func varLen(v netcdf.Var) (int, error) {
	dims, err := v.Dims()
	if err != nil {
		return 0, fmt.Errorf("failed to get dimensions: %w", err)
	}
	n := 1
	for _, d := range dims {
		l, err := d.Len()
		if err != nil {
			return 0, err
		}
		n *= int(l)
	}
	return n, nil
}

// readVarFloat64 reads a variable of expected total length, coercing the
// common NetCDF numeric types to float64.
func readVarFloat64(v netcdf.Var, total int) ([]float64, error) {
	n, err := varLen(v)
	if err != nil {
		return nil, err
	}
	if n != total {
		return nil, fmt.Errorf("variable has %d values, expected %d", n, total)
	}

	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	switch t {
	case netcdf.DOUBLE:
		out := make([]float64, total)
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
		return out, nil
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}
