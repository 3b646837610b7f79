// Package domain holds the core value types for chunked regrid weight
// generation: grid type tags, regrid methods, chunk identities, and sparse
// weight triplets.
package domain

import (
	"fmt"
	"strings"
)

// GridType tags the on-disk convention of a grid file. The tag determines
// both how the file is read and how the external weight generator is told
// to interpret it.
type GridType string

const (
	// GridTypeGRIDSPEC is a logically rectangular CF lat/lon grid.
	GridTypeGRIDSPEC GridType = "GRIDSPEC"
	// GridTypeUGRID is an unstructured mesh following the UGRID convention.
	GridTypeUGRID GridType = "UGRID"
	// GridTypeSCRIP is an unstructured grid in SCRIP format.
	GridTypeSCRIP GridType = "SCRIP"
)

// ParseGridType parses a grid type tag. Matching is case-insensitive.
func ParseGridType(s string) (GridType, error) {
	switch GridType(strings.ToUpper(strings.TrimSpace(s))) {
	case GridTypeGRIDSPEC:
		return GridTypeGRIDSPEC, nil
	case GridTypeUGRID:
		return GridTypeUGRID, nil
	case GridTypeSCRIP:
		return GridTypeSCRIP, nil
	default:
		return "", fmt.Errorf("unknown grid type %q (expected GRIDSPEC, UGRID, or SCRIP)", s)
	}
}

// Unstructured reports whether the grid type has a 1-D element index space.
// GRIDSPEC grids are rectangular and decompose along two axes.
func (t GridType) Unstructured() bool {
	return t == GridTypeUGRID || t == GridTypeSCRIP
}

// RegridMethod selects the interpolation scheme used by the external
// weight generator.
type RegridMethod string

const (
	// MethodConserve is first-order conservative regridding.
	MethodConserve RegridMethod = "CONSERVE"
	// MethodBilinear is bilinear regridding.
	MethodBilinear RegridMethod = "BILINEAR"
)

// ParseRegridMethod parses a regrid method name. Matching is case-insensitive.
func ParseRegridMethod(s string) (RegridMethod, error) {
	switch RegridMethod(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodConserve:
		return MethodConserve, nil
	case MethodBilinear:
		return MethodBilinear, nil
	default:
		return "", fmt.Errorf("unknown regrid method %q (expected CONSERVE or BILINEAR)", s)
	}
}
