package kernel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// CircleSegments is the polygon resolution used for round profiles.
const CircleSegments = 64

// CornerSegments is the per-corner arc resolution of RoundedRect.
const CornerSegments = 6

// Rect returns a w×h rectangle centred on the origin, counter-clockwise.
func Rect(w, h float64) []r2.Vec {
	return RectFromCorners(-w/2, -h/2, w/2, h/2)
}

// RectFromCorners returns the axis-aligned rectangle spanning the two corners.
func RectFromCorners(x0, y0, x1, y1 float64) []r2.Vec {
	return []r2.Vec{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// Circle returns a regular n-gon approximation of a circle of radius r.
func Circle(r float64, n int) []r2.Vec {
	pts := make([]r2.Vec, n)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = r2.Vec{X: r * math.Cos(a), Y: r * math.Sin(a)}
	}
	return pts
}

// RegularPolygon returns an n-sided polygon with circumscribed diameter d,
// first vertex on +X.
func RegularPolygon(n int, d float64) []r2.Vec {
	return Circle(d/2, n)
}

// RoundedRect returns a w×h rectangle with corner radius r. The point count is
// always 4·(CornerSegments+1) so rounded rectangles of any size can be lofted
// against each other.
func RoundedRect(w, h, r float64) []r2.Vec {
	r = math.Max(0, math.Min(r, math.Min(w, h)/2))
	cx, cy := w/2-r, h/2-r
	centres := [4]r2.Vec{{X: cx, Y: cy}, {X: -cx, Y: cy}, {X: -cx, Y: -cy}, {X: cx, Y: -cy}}

	pts := make([]r2.Vec, 0, 4*(CornerSegments+1))
	for q, c := range centres {
		start := float64(q) * math.Pi / 2
		for i := 0; i <= CornerSegments; i++ {
			a := start + (math.Pi/2)*float64(i)/CornerSegments
			pts = append(pts, r2.Add(c, r2.Vec{X: r * math.Cos(a), Y: r * math.Sin(a)}))
		}
	}
	return pts
}

// DShape returns a circle of radius r whose +X side is cut flat at distance
// flat from the centre.
func DShape(r, flat float64, n int) []r2.Vec {
	pts := Circle(r, n)
	for i := range pts {
		if pts[i].X > flat {
			pts[i].X = flat
		}
	}
	return pts
}

// Translate offsets every point by d.
func Translate(pts []r2.Vec, d r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[i] = r2.Add(p, d)
	}
	return out
}

// Rotate turns every point about the origin by angle radians.
func Rotate(pts []r2.Vec, angle float64) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[i] = RotatePoint(p, angle)
	}
	return out
}

// RotatePoint turns p about the origin by angle radians.
func RotatePoint(p r2.Vec, angle float64) r2.Vec {
	s, c := math.Sincos(angle)
	return r2.Vec{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
}

// MirrorX reflects points across the X axis.
func MirrorX(pts []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[i] = r2.Vec{X: p.X, Y: -p.Y}
	}
	return out
}

// Reverse returns the points in reverse order.
func Reverse(pts []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// SignedArea is the shoelace area; positive for counter-clockwise polygons.
func SignedArea(pts []r2.Vec) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += r2.Cross(pts[i], pts[j])
	}
	return a / 2
}
