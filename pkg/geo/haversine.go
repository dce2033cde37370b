package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

const earthRadiusMeters = orb.EarthRadius

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b)
}

// EquirectangularDist returns an approximate distance in meters.
// ~3x faster than Distance; use for candidate filtering and comparisons,
// not for final edge weights.
func EquirectangularDist(a, b orb.Point) float64 {
	x := (b.Lon() - a.Lon()) * math.Cos((a.Lat()+b.Lat())/2*math.Pi/180) * math.Pi / 180
	y := (b.Lat() - a.Lat()) * math.Pi / 180
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// degToMeters converts degree-scaled equirectangular distances to meters.
const degToMeters = math.Pi / 180 * earthRadiusMeters

// Projection is the closest point on a segment AB to a query point P.
type Projection struct {
	Point orb.Point
	Ratio float64 // 0.0 = at A, 1.0 = at B
	Dist  float64 // meters from P to Point
}

// Project computes the perpendicular projection of p onto segment ab.
// Ratio is clamped to [0, 1].
func Project(p, a, b orb.Point) Projection {
	// Work in equirectangular projection (good enough for short distances).
	cosLat := math.Cos((a.Lat() + b.Lat()) / 2 * math.Pi / 180)

	ax, ay := a.Lon()*cosLat, a.Lat()
	bx, by := b.Lon()*cosLat, b.Lat()
	px, py := p.Lon()*cosLat, p.Lat()

	// Degenerate segment: compare original coordinates exactly, before
	// cosLat noise can make identical points differ.
	if a == b {
		ex := px - ax
		ey := py - ay
		return Projection{Point: a, Ratio: 0, Dist: math.Sqrt(ex*ex+ey*ey) * degToMeters}
	}

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy

	var t float64
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	ex := px - (ax + t*dx)
	ey := py - (ay + t*dy)

	var point orb.Point
	switch t {
	case 0:
		point = a
	case 1:
		point = b
	default:
		point = orb.Point{a.Lon() + t*(b.Lon()-a.Lon()), a.Lat() + t*(b.Lat()-a.Lat())}
	}

	return Projection{Point: point, Ratio: t, Dist: math.Sqrt(ex*ex+ey*ey) * degToMeters}
}

// MetersToDegrees converts a distance in meters to an approximate latitude
// span in degrees.
func MetersToDegrees(m float64) float64 {
	return m / degToMeters
}
