package geo

import (
	"math"
	"regexp"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// MetersPerDegree is the approximate length of one degree of latitude.
const MetersPerDegree = 111000.0

// AreaKm2 returns the geodesic area of a geometry in square kilometers.
func AreaKm2(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(geo.Area(g)) / 1e6
}

// Centroid returns the area-weighted centroid of a geometry.
func Centroid(g orb.Geometry) orb.Point {
	c, _ := planar.CentroidArea(g)
	return c
}

// Contains reports whether the geometry contains the point.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		for _, poly := range geom {
			if planar.PolygonContains(poly, p) {
				return true
			}
		}
	case orb.Point:
		return geom.Equal(p)
	}
	return false
}

// Reducible returns a geometry the reduction APIs can work with. Bare
// points become a 30 m square buffer; polygons and multipolygons pass
// through unchanged.
func Reducible(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return geom
	case orb.Point:
		return PointBuffer(geom, 30)
	}
	return nil
}

// PointBuffer returns a square buffer around a point with the given
// half-width in meters. Square buffers keep reduce-region geometries
// cheap; the sampling scale dominates the result anyway.
func PointBuffer(p orb.Point, radiusM float64) orb.Polygon {
	latRad := p[1] * math.Pi / 180
	dLat := radiusM / MetersPerDegree
	cos := math.Cos(latRad)
	if cos < 0.01 {
		cos = 0.01
	}
	dLng := radiusM / (MetersPerDegree * cos)

	return orb.Polygon{orb.Ring{
		{p[0] - dLng, p[1] - dLat},
		{p[0] + dLng, p[1] - dLat},
		{p[0] + dLng, p[1] + dLat},
		{p[0] - dLng, p[1] + dLat},
		{p[0] - dLng, p[1] - dLat},
	}}
}

var coordPattern = regexp.MustCompile(`(-?\d{1,3}(?:\.\d+)?)\s*°?\s*([NSns])?\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*°?\s*([EWew])?`)

// ParseCoordinates extracts a "lat, lng" pair from free text, honoring
// optional hemisphere suffixes. Returns ok=false when no valid pair is
// present inside the WGS84 bounding box.
func ParseCoordinates(text string) (lat, lng float64, ok bool) {
	m := coordPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}

	lat, err1 := strconv.ParseFloat(m[1], 64)
	lng, err2 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	if m[2] == "S" || m[2] == "s" {
		lat = -lat
	}
	if m[4] == "W" || m[4] == "w" {
		lng = -lng
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}
