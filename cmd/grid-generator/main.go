// Command grid-generator writes synthetic global spherical grids to
// NetCDF, used to produce demo and test inputs for chunked regrid weight
// generation.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/fhs/go-netcdf/netcdf"
)

func main() {
	// Command line flags
	outPath := flag.String("out", "./grid.nc", "Output NetCDF grid file")
	resolution := flag.Float64("resolution", 1.0, "Grid resolution in degrees")
	latMin := flag.Float64("lat-min", -90.0, "Minimum latitude")
	latMax := flag.Float64("lat-max", 90.0, "Maximum latitude")
	lonMin := flag.Float64("lon-min", 0.0, "Minimum longitude")
	lonMax := flag.Float64("lon-max", 360.0, "Maximum longitude")
	withBounds := flag.Bool("bounds", true, "Write cell bounds (lat_bnds/lon_bnds)")
	withData := flag.Bool("data", false, "Write a synthetic data variable")

	flag.Parse()

	if *resolution <= 0 {
		log.Fatalf("Resolution must be positive, got %f", *resolution)
	}
	if *latMin >= *latMax || *lonMin >= *lonMax {
		log.Fatalf("Invalid extent: lat [%g, %g], lon [%g, %g]", *latMin, *latMax, *lonMin, *lonMax)
	}

	// Cell centers start half a cell inside the extent so bounds line up
	// with the requested window.
	nLat := int(math.Round((*latMax - *latMin) / *resolution))
	nLon := int(math.Round((*lonMax - *lonMin) / *resolution))

	lat := make([]float64, nLat)
	for i := 0; i < nLat; i++ {
		lat[i] = *latMin + (float64(i)+0.5)**resolution
	}
	lon := make([]float64, nLon)
	for j := 0; j < nLon; j++ {
		lon[j] = *lonMin + (float64(j)+0.5)**resolution
	}

	log.Printf("Generating %d × %d grid at %.3f° resolution", nLat, nLon, *resolution)
	log.Printf("Extent: %.1f°..%.1f° lat, %.1f°..%.1f° lon", *latMin, *latMax, *lonMin, *lonMax)

	if err := writeGrid(*outPath, lat, lon, *resolution, *withBounds, *withData); err != nil {
		log.Fatalf("Failed to write grid: %v", err)
	}

	log.Printf("✓ Wrote %s (~%.1f MB)", *outPath, float64(nLat*nLon*8)/1024/1024)
}

// writeGrid writes a GRIDSPEC lat/lon grid with optional bounds and data.
func writeGrid(path string, lat, lon []float64, resolution float64, withBounds, withData bool) error {
	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer ds.Close()

	nLat := len(lat)
	nLon := len(lon)

	latDim, err := ds.AddDim("lat", uint64(nLat))
	if err != nil {
		return err
	}
	lonDim, err := ds.AddDim("lon", uint64(nLon))
	if err != nil {
		return err
	}

	latVar, err := ds.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	if err != nil {
		return err
	}
	lonVar, err := ds.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	if err != nil {
		return err
	}

	var latBndsVar, lonBndsVar netcdf.Var
	if withBounds {
		bndDim, err := ds.AddDim("bnds", 2)
		if err != nil {
			return err
		}
		latBndsVar, err = ds.AddVar("lat_bnds", netcdf.DOUBLE, []netcdf.Dim{latDim, bndDim})
		if err != nil {
			return err
		}
		lonBndsVar, err = ds.AddVar("lon_bnds", netcdf.DOUBLE, []netcdf.Dim{lonDim, bndDim})
		if err != nil {
			return err
		}
	}

	var dataVar netcdf.Var
	if withData {
		dataVar, err = ds.AddVar("data", netcdf.DOUBLE, []netcdf.Dim{latDim, lonDim})
		if err != nil {
			return err
		}
	}

	if err := latVar.WriteFloat64s(lat); err != nil {
		return err
	}
	if err := lonVar.WriteFloat64s(lon); err != nil {
		return err
	}

	if withBounds {
		half := resolution / 2.0
		latBnds := make([]float64, 2*nLat)
		for i, v := range lat {
			latBnds[2*i] = math.Max(v-half, -90.0)
			latBnds[2*i+1] = math.Min(v+half, 90.0)
		}
		lonBnds := make([]float64, 2*nLon)
		for j, v := range lon {
			lonBnds[2*j] = v - half
			lonBnds[2*j+1] = v + half
		}
		if err := latBndsVar.WriteFloat64s(latBnds); err != nil {
			return err
		}
		if err := lonBndsVar.WriteFloat64s(lonBnds); err != nil {
			return err
		}
	}

	if withData {
		// Smooth spatial variation so regridded output is visually checkable.
		data := make([]float64, nLat*nLon)
		for i := 0; i < nLat; i++ {
			for j := 0; j < nLon; j++ {
				data[i*nLon+j] = 2.0 +
					math.Cos(lat[i]*math.Pi/180.0) +
					0.5*math.Sin(2.0*lon[j]*math.Pi/180.0)
			}
		}
		if err := dataVar.WriteFloat64s(data); err != nil {
			return err
		}
	}

	return nil
}
