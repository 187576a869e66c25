// Package kernel defines the narrow geometry-kernel contract the part
// generators build against: planar wires, extrusion, lofting, booleans,
// bounding boxes, shell/solid introspection, volume and export.
//
// Generators never reach past this interface; the reference implementation
// lives in internal/kernel/csg.
package kernel

import (
	"errors"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrForeignShape is returned when a Shape handle was not produced by the
	// kernel it is passed to, or is nil.
	ErrForeignShape = errors.New("shape handle not retrievable")
	// ErrDegenerate is returned for wires or sections that cannot bound a region.
	ErrDegenerate = errors.New("degenerate geometry")
)

// Axis selects the extrusion direction of a sketch plane.
type Axis int

const (
	AxisZ Axis = iota // sketch in XY, extrude along +Z
	AxisY             // sketch in XZ, extrude along +Y
	AxisX             // sketch in YZ, extrude along +X
)

func (a Axis) String() string {
	switch a {
	case AxisZ:
		return "z"
	case AxisY:
		return "y"
	case AxisX:
		return "x"
	default:
		return "unknown"
	}
}

// Plane is a sketch plane: 2D profile coordinates (u, v) plus a normal
// offset w map to world space through Axis, relative to Origin.
type Plane struct {
	Axis   Axis
	Origin r3.Vec
}

// XY returns the horizontal sketch plane at height z.
func XY(z float64) Plane {
	return Plane{Axis: AxisZ, Origin: r3.Vec{Z: z}}
}

// ToWorld maps plane coordinates to world space.
func (p Plane) ToWorld(u, v, w float64) r3.Vec {
	var local r3.Vec
	switch p.Axis {
	case AxisY:
		local = r3.Vec{X: u, Y: w, Z: v}
	case AxisX:
		local = r3.Vec{X: w, Y: u, Z: v}
	default:
		local = r3.Vec{X: u, Y: v, Z: w}
	}
	return r3.Add(p.Origin, local)
}

// FromWorld is the inverse of ToWorld.
func (p Plane) FromWorld(q r3.Vec) (u, v, w float64) {
	d := r3.Sub(q, p.Origin)
	switch p.Axis {
	case AxisY:
		return d.X, d.Z, d.Y
	case AxisX:
		return d.Y, d.Z, d.X
	default:
		return d.X, d.Y, d.Z
	}
}

// Wire is an ordered planar point sequence.
type Wire struct {
	Points []r2.Vec
	Closed bool
}

// Section is one loft cross-section.
type Section struct {
	Wire  Wire
	Plane Plane
}

// Kind tags what a Shape handle holds.
type Kind int

const (
	KindSolid Kind = iota
	KindCompound
)

func (k Kind) String() string {
	if k == KindCompound {
		return "compound"
	}
	return "solid"
}

// Shape is an opaque kernel handle.
type Shape interface {
	Kind() Kind
}

// Shell is one boundary surface of a solid.
type Shell interface {
	Closed() bool
}

// BBox is an axis-aligned bounding box.
type BBox struct {
	Min, Max r3.Vec
}

// Empty reports whether the box encloses nothing.
func (b BBox) Empty() bool {
	return !(b.Max.X >= b.Min.X && b.Max.Y >= b.Min.Y && b.Max.Z >= b.Min.Z)
}

func (b BBox) XLen() float64 { return b.Max.X - b.Min.X }
func (b BBox) YLen() float64 { return b.Max.Y - b.Min.Y }
func (b BBox) ZLen() float64 { return b.Max.Z - b.Min.Z }

// Union returns the smallest box containing both.
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BBox{
		Min: r3.Vec{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

// Intersect returns the overlap of both boxes, possibly Empty.
func (b BBox) Intersect(o BBox) BBox {
	return BBox{
		Min: r3.Vec{X: math.Max(b.Min.X, o.Min.X), Y: math.Max(b.Min.Y, o.Min.Y), Z: math.Max(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Min(b.Max.X, o.Max.X), Y: math.Min(b.Max.Y, o.Max.Y), Z: math.Min(b.Max.Z, o.Max.Z)},
	}
}

// Expand grows the box by d on every side.
func (b BBox) Expand(d float64) BBox {
	e := r3.Vec{X: d, Y: d, Z: d}
	return BBox{Min: r3.Sub(b.Min, e), Max: r3.Add(b.Max, e)}
}

// Contains reports whether p lies inside the closed box.
func (b BBox) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Kernel is the operation set consumed by the part generators.
type Kernel interface {
	// Polyline builds a planar wire. Closed wires need at least three points.
	Polyline(points []r2.Vec, closed bool) (Wire, error)
	// Extrude sweeps w along the plane normal by distance, rotating the
	// profile linearly about the plane origin by twistDeg over the sweep.
	Extrude(w Wire, plane Plane, distance, twistDeg float64) (Shape, error)
	// Loft joins two or more parallel sections with equal point counts.
	Loft(sections ...Section) (Shape, error)

	Union(shapes ...Shape) (Shape, error)
	Cut(base Shape, tools ...Shape) (Shape, error)
	Intersect(a, b Shape) (Shape, error)

	BoundingBox(s Shape) (BBox, error)
	// IsValid reports topological validity. A non-nil error means the
	// handle itself could not be retrieved.
	IsValid(s Shape) (bool, error)
	// Solids lists the constituent solids of a compound (or s itself).
	Solids(s Shape) ([]Shape, error)
	Shells(s Shape) ([]Shell, error)
	Volume(s Shape) (float64, error)

	ExportSTEP(s Shape, w io.Writer) error
	ExportSTL(s Shape, w io.Writer) error
}
