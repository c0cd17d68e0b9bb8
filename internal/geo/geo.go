// Package geo adapts paulmach/orb to the few geometry capabilities the
// engine needs: a containment predicate, a stable textual key, and the
// WKT/WKB encodings used by the row sources and exporters.
package geo

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// Contains reports whether g lies inside container. Points on the
// container boundary count as inside, so blocks sharing an edge with their
// neighborhood are still matched. Only polygonal containers can contain.
func Contains(container, g orb.Geometry) bool {
	if container == nil || g == nil {
		return false
	}
	if !boundContains(container.Bound(), g.Bound()) {
		return false
	}

	pts := vertices(g)
	if len(pts) == 0 {
		return false
	}
	for _, p := range pts {
		if !containsPoint(container, p) {
			return false
		}
	}

	// Vertices inside a concave container can still span a notch or a
	// hole, so edges must not cross the container boundary either.
	boundary := rings(container)
	for _, e := range edges(g) {
		if !containsPoint(container, midpoint(e)) {
			return false
		}
		for _, r := range boundary {
			for i := 1; i < len(r); i++ {
				if crosses(e[0], e[1], r[i-1], r[i]) {
					return false
				}
			}
		}
	}
	for _, h := range holes(container) {
		if enclosesRing(g, h) {
			return false
		}
	}
	return true
}

type segment [2]orb.Point

func midpoint(s segment) orb.Point {
	return orb.Point{(s[0][0] + s[1][0]) / 2, (s[0][1] + s[1][1]) / 2}
}

// orientation is the sign of the turn a -> b -> c.
func orientation(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// crosses reports a proper crossing of ab and cd. Touching at an endpoint
// or running along each other does not count.
func crosses(a, b, c, d orb.Point) bool {
	return orientation(a, b, c)*orientation(a, b, d) < 0 &&
		orientation(c, d, a)*orientation(c, d, b) < 0
}

// rings returns every ring bounding a polygonal container, holes included.
func rings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Ring:
		return []orb.Ring{v}
	case orb.Polygon:
		return []orb.Ring(v)
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, poly := range v {
			out = append(out, poly...)
		}
		return out
	case orb.Bound:
		return []orb.Ring{v.ToRing()}
	case orb.Collection:
		var out []orb.Ring
		for _, sub := range v {
			out = append(out, rings(sub)...)
		}
		return out
	}
	return nil
}

func holes(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 1 {
			return []orb.Ring(v[1:])
		}
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, poly := range v {
			if len(poly) > 1 {
				out = append(out, poly[1:]...)
			}
		}
		return out
	case orb.Collection:
		var out []orb.Ring
		for _, sub := range v {
			out = append(out, holes(sub)...)
		}
		return out
	}
	return nil
}

// enclosesRing reports whether polygonal g covers every vertex of r.
func enclosesRing(g orb.Geometry, r orb.Ring) bool {
	if len(r) == 0 {
		return false
	}
	for _, p := range r {
		if !containsPoint(g, p) {
			return false
		}
	}
	return true
}

// edges returns the segments of g's outer boundaries and lines.
func edges(g orb.Geometry) []segment {
	var out []segment
	addPath := func(pts []orb.Point) {
		for i := 1; i < len(pts); i++ {
			out = append(out, segment{pts[i-1], pts[i]})
		}
	}
	switch v := g.(type) {
	case orb.LineString:
		addPath(v)
	case orb.Ring:
		addPath(v)
	case orb.MultiLineString:
		for _, ls := range v {
			addPath(ls)
		}
	case orb.Polygon:
		if len(v) > 0 {
			addPath(v[0])
		}
	case orb.MultiPolygon:
		for _, poly := range v {
			if len(poly) > 0 {
				addPath(poly[0])
			}
		}
	case orb.Bound:
		addPath(v.ToRing())
	case orb.Collection:
		for _, sub := range v {
			out = append(out, edges(sub)...)
		}
	}
	return out
}

func containsPoint(container orb.Geometry, p orb.Point) bool {
	switch c := container.(type) {
	case orb.Polygon:
		return planar.PolygonContains(c, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(c, p)
	case orb.Ring:
		return planar.RingContains(c, p)
	case orb.Bound:
		return c.Contains(p)
	case orb.Collection:
		for _, g := range c {
			if containsPoint(g, p) {
				return true
			}
		}
	}
	return false
}

func boundContains(outer, inner orb.Bound) bool {
	return outer.Contains(inner.Min) && outer.Contains(inner.Max)
}

// vertices returns the points that must fall inside a container for g to
// be contained. Holes are skipped: a hole always lies within its shell.
func vertices(g orb.Geometry) []orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return []orb.Point{v}
	case orb.MultiPoint:
		return []orb.Point(v)
	case orb.LineString:
		return []orb.Point(v)
	case orb.Ring:
		return []orb.Point(v)
	case orb.MultiLineString:
		var out []orb.Point
		for _, ls := range v {
			out = append(out, ls...)
		}
		return out
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		return []orb.Point(v[0])
	case orb.MultiPolygon:
		var out []orb.Point
		for _, poly := range v {
			if len(poly) > 0 {
				out = append(out, poly[0]...)
			}
		}
		return out
	case orb.Bound:
		return []orb.Point{v.Min, v.Max, {v.Min[0], v.Max[1]}, {v.Max[0], v.Min[1]}}
	case orb.Collection:
		var out []orb.Point
		for _, sub := range v {
			out = append(out, vertices(sub)...)
		}
		return out
	}
	return nil
}

// Key renders g as WKT so geometries can take part in hash keys.
func Key(g orb.Geometry) string {
	if g == nil {
		return ""
	}
	return wkt.MarshalString(g)
}

// ParseWKT decodes a WKT string. Empty input yields a nil geometry.
func ParseWKT(s string) (orb.Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	// PostGIS exports EWKT with an SRID prefix.
	if strings.HasPrefix(strings.ToUpper(s), "SRID=") {
		if i := strings.IndexByte(s, ';'); i != -1 {
			s = s[i+1:]
		}
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("parse wkt: %w", err)
	}
	return g, nil
}

// WKB encodes g as little-endian WKB.
func WKB(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return wkb.Marshal(g)
}
