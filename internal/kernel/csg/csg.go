// Package csg is a point-membership solid modeller implementing kernel.Kernel.
//
// Shapes are immutable trees of prisms, lofts and boolean nodes. Every query
// (bounding box, volume, mesh) is answered by evaluating point containment
// against the tree; nothing is tessellated until export.
package csg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
)

// eps is the boundary tolerance used by containment tests.
const eps = 1e-6

// Config tunes sampling resolution.
type Config struct {
	// VolumeCells is the number of integration cells along the longest axis.
	// Shorter axes get at least a quarter as many.
	VolumeCells int `yaml:"volume_cells" json:"volume_cells"`
	// MeshCells is the number of surface-nets cells along the longest axis,
	// with the same per-axis floor.
	MeshCells int `yaml:"mesh_cells" json:"mesh_cells"`
	// OverlapSamples is the per-axis sample count of the union overlap test.
	OverlapSamples int `yaml:"overlap_samples" json:"overlap_samples"`
}

// DefaultConfig returns the production sampling resolution.
func DefaultConfig() Config {
	return Config{VolumeCells: 64, MeshCells: 96, OverlapSamples: 16}
}

// Kernel is the reference kernel.Kernel implementation.
type Kernel struct {
	cfg Config
}

var _ kernel.Kernel = (*Kernel)(nil)

// New creates a kernel. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Kernel {
	def := DefaultConfig()
	if cfg.VolumeCells <= 0 {
		cfg.VolumeCells = def.VolumeCells
	}
	if cfg.MeshCells <= 0 {
		cfg.MeshCells = def.MeshCells
	}
	if cfg.OverlapSamples <= 1 {
		cfg.OverlapSamples = def.OverlapSamples
	}
	return &Kernel{cfg: cfg}
}

// node is the internal form of every shape handle.
type node interface {
	kernel.Shape
	contains(p r3.Vec) bool
	bounds() kernel.BBox
	// valid reports whether the node and its children are well formed.
	valid() bool
	// closed reports whether the node bounds a region.
	closed() bool
}

// =============================================================================
// PRISM
// =============================================================================

type prism struct {
	profile []r2.Vec
	plane   kernel.Plane
	depth   float64
	twist   float64 // radians over the full depth
	sheet   bool    // extruded from an open wire
	bb      kernel.BBox
}

func (p *prism) Kind() kernel.Kind { return kernel.KindSolid }

func (p *prism) contains(q r3.Vec) bool {
	if p.sheet || !p.bb.Contains(q) {
		return false
	}
	u, v, w := p.plane.FromWorld(q)
	if w < -eps || w > p.depth+eps {
		return false
	}
	pt := r2.Vec{X: u, Y: v}
	if p.twist != 0 {
		t := math.Max(0, math.Min(1, w/p.depth))
		pt = kernel.RotatePoint(pt, -p.twist*t)
	}
	return winding(p.profile, pt) != 0
}

func (p *prism) bounds() kernel.BBox { return p.bb }

func (p *prism) valid() bool {
	return finitePoints(p.profile) && p.depth > 0 && !math.IsNaN(p.twist) && !math.IsInf(p.twist, 0)
}

func (p *prism) closed() bool { return !p.sheet }

func (p *prism) computeBounds() kernel.BBox {
	var bb kernel.BBox
	first := true
	steps := 1
	if p.twist != 0 {
		steps = 32
	}
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		for _, pt := range p.profile {
			rp := kernel.RotatePoint(pt, p.twist*t)
			for _, w := range []float64{0, p.depth} {
				if steps > 1 {
					w = p.depth * t
				}
				q := p.plane.ToWorld(rp.X, rp.Y, w)
				if first {
					bb = kernel.BBox{Min: q, Max: q}
					first = false
					continue
				}
				bb = bb.Union(kernel.BBox{Min: q, Max: q})
			}
		}
	}
	if p.twist != 0 {
		// Sampled rotation can undershoot the swept arc between samples.
		r := maxRadius(p.profile) * (1 - math.Cos(math.Abs(p.twist)/float64(2*steps)))
		bb = bb.Expand(r)
	}
	return bb
}

// =============================================================================
// LOFT
// =============================================================================

type loft struct {
	plane    kernel.Plane
	profiles [][]r2.Vec // in plane coordinates
	levels   []float64  // strictly increasing offsets along the axis
	bb       kernel.BBox
}

func (l *loft) Kind() kernel.Kind { return kernel.KindSolid }

func (l *loft) contains(q r3.Vec) bool {
	if !l.bb.Contains(q) {
		return false
	}
	u, v, w := l.plane.FromWorld(q)
	last := len(l.levels) - 1
	if w < l.levels[0]-eps || w > l.levels[last]+eps {
		return false
	}
	k := 0
	for k < last-1 && w > l.levels[k+1] {
		k++
	}
	t := (w - l.levels[k]) / (l.levels[k+1] - l.levels[k])
	t = math.Max(0, math.Min(1, t))

	a, b := l.profiles[k], l.profiles[k+1]
	poly := make([]r2.Vec, len(a))
	for i := range a {
		poly[i] = r2.Add(r2.Scale(1-t, a[i]), r2.Scale(t, b[i]))
	}
	return winding(poly, r2.Vec{X: u, Y: v}) != 0
}

func (l *loft) bounds() kernel.BBox { return l.bb }

func (l *loft) valid() bool {
	for _, p := range l.profiles {
		if !finitePoints(p) {
			return false
		}
	}
	return true
}

func (l *loft) closed() bool { return true }

// =============================================================================
// BOOLEANS AND COMPOUNDS
// =============================================================================

type opKind int

const (
	opUnion opKind = iota
	opCut
	opIntersect
)

func (o opKind) String() string {
	switch o {
	case opUnion:
		return "union"
	case opCut:
		return "cut"
	default:
		return "intersect"
	}
}

type boolean struct {
	op       opKind
	children []node // for cut: children[0] is the base
	bb       kernel.BBox
}

func (b *boolean) Kind() kernel.Kind { return kernel.KindSolid }

func (b *boolean) contains(q r3.Vec) bool {
	if !b.bb.Contains(q) {
		return false
	}
	switch b.op {
	case opUnion:
		for _, c := range b.children {
			if c.contains(q) {
				return true
			}
		}
		return false
	case opCut:
		if !b.children[0].contains(q) {
			return false
		}
		for _, c := range b.children[1:] {
			if c.contains(q) {
				return false
			}
		}
		return true
	default:
		for _, c := range b.children {
			if !c.contains(q) {
				return false
			}
		}
		return true
	}
}

func (b *boolean) bounds() kernel.BBox { return b.bb }

func (b *boolean) valid() bool {
	for _, c := range b.children {
		if !c.valid() {
			return false
		}
	}
	return true
}

func (b *boolean) closed() bool {
	switch b.op {
	case opCut:
		return b.children[0].closed()
	default:
		for _, c := range b.children {
			if !c.closed() {
				return false
			}
		}
		return true
	}
}

type compound struct {
	solids []node
	bb     kernel.BBox
}

func (c *compound) Kind() kernel.Kind { return kernel.KindCompound }

func (c *compound) contains(q r3.Vec) bool {
	if !c.bb.Contains(q) {
		return false
	}
	for _, s := range c.solids {
		if s.contains(q) {
			return true
		}
	}
	return false
}

func (c *compound) bounds() kernel.BBox { return c.bb }

func (c *compound) valid() bool {
	for _, s := range c.solids {
		if !s.valid() {
			return false
		}
	}
	return true
}

func (c *compound) closed() bool {
	for _, s := range c.solids {
		if !s.closed() {
			return false
		}
	}
	return true
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Polyline implements kernel.Kernel.
func (k *Kernel) Polyline(points []r2.Vec, closed bool) (kernel.Wire, error) {
	if len(points) < 2 || (closed && len(points) < 3) {
		return kernel.Wire{}, fmt.Errorf("%w: wire needs more points, got %d", kernel.ErrDegenerate, len(points))
	}
	if !finitePoints(points) {
		return kernel.Wire{}, fmt.Errorf("%w: non-finite wire coordinate", kernel.ErrDegenerate)
	}
	pts := make([]r2.Vec, len(points))
	copy(pts, points)
	return kernel.Wire{Points: pts, Closed: closed}, nil
}

// Extrude implements kernel.Kernel. Extruding an open wire yields a sheet:
// a shape whose single shell is not closed.
func (k *Kernel) Extrude(w kernel.Wire, plane kernel.Plane, distance, twistDeg float64) (kernel.Shape, error) {
	if len(w.Points) < 2 {
		return nil, fmt.Errorf("%w: empty wire", kernel.ErrDegenerate)
	}
	if !(distance > 0) {
		return nil, fmt.Errorf("%w: extrusion distance must be > 0, got %v", kernel.ErrDegenerate, distance)
	}
	p := &prism{
		profile: w.Points,
		plane:   plane,
		depth:   distance,
		twist:   twistDeg * math.Pi / 180,
		sheet:   !w.Closed,
	}
	p.bb = p.computeBounds()
	logging.KernelDebug("extrude: %d pts along %s depth=%.3f twist=%.3f°", len(w.Points), plane.Axis, distance, twistDeg)
	return p, nil
}

// Loft implements kernel.Kernel. All sections must share the first section's
// axis and point count; in-plane origin offsets are folded into the profiles.
func (k *Kernel) Loft(sections ...kernel.Section) (kernel.Shape, error) {
	if len(sections) < 2 {
		return nil, fmt.Errorf("%w: loft needs at least two sections", kernel.ErrDegenerate)
	}
	ref := kernel.Plane{Axis: sections[0].Plane.Axis, Origin: sections[0].Plane.Origin}
	n := len(sections[0].Wire.Points)

	l := &loft{plane: ref}
	for i, s := range sections {
		if s.Plane.Axis != ref.Axis {
			return nil, fmt.Errorf("%w: loft section %d is not parallel", kernel.ErrDegenerate, i)
		}
		if len(s.Wire.Points) != n || !s.Wire.Closed {
			return nil, fmt.Errorf("%w: loft section %d must be closed with %d points", kernel.ErrDegenerate, i, n)
		}
		du, dv, w := ref.FromWorld(s.Plane.Origin)
		if i > 0 && w <= l.levels[i-1] {
			return nil, fmt.Errorf("%w: loft sections must advance along %s", kernel.ErrDegenerate, ref.Axis)
		}
		l.levels = append(l.levels, w)
		l.profiles = append(l.profiles, kernel.Translate(s.Wire.Points, r2.Vec{X: du, Y: dv}))
	}

	first := true
	for i, prof := range l.profiles {
		for _, pt := range prof {
			q := ref.ToWorld(pt.X, pt.Y, l.levels[i])
			if first {
				l.bb = kernel.BBox{Min: q, Max: q}
				first = false
				continue
			}
			l.bb = l.bb.Union(kernel.BBox{Min: q, Max: q})
		}
	}
	return l, nil
}

// BoundingBox implements kernel.Kernel.
func (k *Kernel) BoundingBox(s kernel.Shape) (kernel.BBox, error) {
	n, err := unwrap(s)
	if err != nil {
		return kernel.BBox{}, err
	}
	return n.bounds(), nil
}

// IsValid implements kernel.Kernel.
func (k *Kernel) IsValid(s kernel.Shape) (bool, error) {
	n, err := unwrap(s)
	if err != nil {
		return false, err
	}
	bb := n.bounds()
	if bb.Empty() || !finite3(bb.Min) || !finite3(bb.Max) {
		return false, nil
	}
	return n.valid(), nil
}

// Solids implements kernel.Kernel.
func (k *Kernel) Solids(s kernel.Shape) ([]kernel.Shape, error) {
	n, err := unwrap(s)
	if err != nil {
		return nil, err
	}
	if c, ok := n.(*compound); ok {
		out := make([]kernel.Shape, len(c.solids))
		for i, child := range c.solids {
			out[i] = child
		}
		return out, nil
	}
	return []kernel.Shape{n}, nil
}

type shell struct{ isClosed bool }

func (s shell) Closed() bool { return s.isClosed }

// Shells implements kernel.Kernel. Each solid has one outer shell.
func (k *Kernel) Shells(s kernel.Shape) ([]kernel.Shell, error) {
	n, err := unwrap(s)
	if err != nil {
		return nil, err
	}
	if c, ok := n.(*compound); ok {
		out := make([]kernel.Shell, 0, len(c.solids))
		for _, child := range c.solids {
			out = append(out, shell{isClosed: child.closed()})
		}
		return out, nil
	}
	return []kernel.Shell{shell{isClosed: n.closed()}}, nil
}

// Contains reports whether p lies inside s. Exposed for tests.
func Contains(s kernel.Shape, p r3.Vec) bool {
	n, err := unwrap(s)
	if err != nil {
		return false
	}
	return n.contains(p)
}

func unwrap(s kernel.Shape) (node, error) {
	if s == nil {
		return nil, kernel.ErrForeignShape
	}
	n, ok := s.(node)
	if !ok {
		return nil, fmt.Errorf("%w: %T", kernel.ErrForeignShape, s)
	}
	if isNilNode(n) {
		return nil, fmt.Errorf("%w: nil %T", kernel.ErrForeignShape, s)
	}
	return n, nil
}

// isNilNode reports whether n is a typed nil pointer.
func isNilNode(n node) bool {
	switch v := n.(type) {
	case *prism:
		return v == nil
	case *loft:
		return v == nil
	case *boolean:
		return v == nil
	case *compound:
		return v == nil
	}
	return false
}

// =============================================================================
// PLANAR HELPERS
// =============================================================================

// winding returns the winding number of poly around p.
func winding(poly []r2.Vec, p r2.Vec) int {
	wn := 0
	n := len(poly)
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[(i+1)%n]
		isLeft := (b.X-a.X)*(p.Y-a.Y) - (p.X-a.X)*(b.Y-a.Y)
		if a.Y <= p.Y {
			if b.Y > p.Y && isLeft > 0 {
				wn++
			}
		} else if b.Y <= p.Y && isLeft < 0 {
			wn--
		}
	}
	return wn
}

func maxRadius(pts []r2.Vec) float64 {
	var r float64
	for _, p := range pts {
		r = math.Max(r, r2.Norm(p))
	}
	return r
}

func finitePoints(pts []r2.Vec) bool {
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

func finite3(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}
