// Package spatial provides bounding extents and spherical helpers for
// grid decomposition and source subsetting.
package spatial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is Earth's mean radius.
const EarthRadiusMeters = 6371000.0

// Extent is an axis-aligned bounding box in spherical degrees. Coordinates
// are unwrapped: XMax may exceed 180 (or 360) when a grid crosses the edge
// of its longitude window, and XMin <= XMax always holds.
type Extent struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Validate checks the extent is well formed.
func (e Extent) Validate() error {
	if e.XMin > e.XMax {
		return fmt.Errorf("extent x bounds inverted: %.6f > %.6f", e.XMin, e.XMax)
	}
	if e.YMin > e.YMax {
		return fmt.Errorf("extent y bounds inverted: %.6f > %.6f", e.YMin, e.YMax)
	}
	return nil
}

// Buffer expands the extent by d degrees on every side. Latitude is clamped
// to the poles; longitude is left unwrapped so that subset index math on
// monotonic axes stays simple.
func (e Extent) Buffer(d float64) Extent {
	out := Extent{
		XMin: e.XMin - d,
		YMin: math.Max(e.YMin-d, -90.0),
		XMax: e.XMax + d,
		YMax: math.Min(e.YMax+d, 90.0),
	}
	return out
}

// Contains reports whether other lies fully inside the extent, with a small
// tolerance for floating point noise at cell boundaries.
func (e Extent) Contains(other Extent, tol float64) bool {
	return other.XMin >= e.XMin-tol &&
		other.XMax <= e.XMax+tol &&
		other.YMin >= e.YMin-tol &&
		other.YMax <= e.YMax+tol
}

// Union returns the smallest extent covering both inputs.
func (e Extent) Union(other Extent) Extent {
	return Extent{
		XMin: math.Min(e.XMin, other.XMin),
		YMin: math.Min(e.YMin, other.YMin),
		XMax: math.Max(e.XMax, other.XMax),
		YMax: math.Max(e.YMax, other.YMax),
	}
}

// Intersection returns the overlap of the two extents. Disjoint extents
// yield an inverted result that fails Validate.
func (e Extent) Intersection(other Extent) Extent {
	return Extent{
		XMin: math.Max(e.XMin, other.XMin),
		YMin: math.Max(e.YMin, other.YMin),
		XMax: math.Min(e.XMax, other.XMax),
		YMax: math.Min(e.YMax, other.YMax),
	}
}

// Width returns the longitudinal span in degrees.
func (e Extent) Width() float64 { return e.XMax - e.XMin }

// Height returns the latitudinal span in degrees.
func (e Extent) Height() float64 { return e.YMax - e.YMin }

// Rect converts the extent to an s2 lat/lng rectangle. Longitudes are
// normalized into [-180, 180]; an extent spanning 360 degrees or more maps
// to the full longitude interval.
func (e Extent) Rect() s2.Rect {
	lat := r1IntervalFromDegrees(math.Max(e.YMin, -90), math.Min(e.YMax, 90))
	var lng s1.Interval
	if e.Width() >= 360.0 {
		lng = s1.FullInterval()
	} else {
		lng = s1.IntervalFromEndpoints(
			s1.Angle(normalizeLon180(e.XMin)*math.Pi/180.0).Radians(),
			s1.Angle(normalizeLon180(e.XMax)*math.Pi/180.0).Radians(),
		)
	}
	return s2.Rect{Lat: lat, Lng: lng}
}

// ContainsSphere reports containment on the sphere, honoring longitude
// wrapping. Used as the authoritative check when unwrapped coordinates of
// the two extents do not share a longitude window.
func (e Extent) ContainsSphere(other Extent) bool {
	return e.Rect().Contains(other.Rect())
}

// GreatCircleSpanMeters returns the great-circle length of the extent's
// diagonal in meters.
func (e Extent) GreatCircleSpanMeters() float64 {
	p1 := s2.LatLngFromDegrees(e.YMin, normalizeLon180(e.XMin))
	p2 := s2.LatLngFromDegrees(e.YMax, normalizeLon180(e.XMax))
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

func r1IntervalFromDegrees(lo, hi float64) r1.Interval {
	return r1.Interval{Lo: lo * math.Pi / 180.0, Hi: hi * math.Pi / 180.0}
}

// normalizeLon180 maps a degree longitude into [-180, 180].
func normalizeLon180(lon float64) float64 {
	lon = math.Mod(lon+180.0, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon - 180.0
}
