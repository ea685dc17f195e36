package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Contains reports whether point p lies inside the areal part of g.
// Points and lines have no area and never contain anything.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p)
	case orb.Ring:
		return planar.RingContains(geom, p)
	case orb.Bound:
		return geom.Contains(p)
	case orb.Collection:
		for _, c := range geom {
			if Contains(c, p) {
				return true
			}
		}
	}
	return false
}

// Polygons flattens the areal parts of g into a single multipolygon.
func Polygons(g orb.Geometry) orb.MultiPolygon {
	switch geom := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{geom}
	case orb.MultiPolygon:
		return geom
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{geom}}
	case orb.Bound:
		return orb.MultiPolygon{geom.ToPolygon()}
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, c := range geom {
			mp = append(mp, Polygons(c)...)
		}
		return mp
	}
	return nil
}
