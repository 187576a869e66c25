package parts

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// cellCentres returns the plan centre of every grid cell of an nx×ny grid
// with pitch unit, the grid centred on the origin.
func cellCentres(nx, ny int, unit float64) []r2.Vec {
	out := make([]r2.Vec, 0, nx*ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			out = append(out, r2.Vec{
				X: (float64(i) - float64(nx-1)/2) * unit,
				Y: (float64(j) - float64(ny-1)/2) * unit,
			})
		}
	}
	return out
}

// profileLoft lofts a rounded-rectangle stack whose top outline is w×h with
// corner radius r, shrinking by each profile segment's run on the way down.
// The bottom of the stack sits at z0.
func profileLoft(k kernel.Kernel, part Kind, prof scaling.Profile, centre r2.Vec, w, h, r, z0 float64) (kernel.Shape, error) {
	type level struct{ w, h, r, z float64 }
	levels := []level{{w, h, r, z0 + prof.Height()}}
	cur := levels[0]
	for _, seg := range prof {
		cur = level{
			w: cur.w - 2*seg.Run(),
			h: cur.h - 2*seg.Run(),
			r: math.Max(0, cur.r-seg.Run()),
			z: cur.z - seg.Rise(),
		}
		levels = append(levels, cur)
	}
	if cur.w <= 0 || cur.h <= 0 {
		return nil, paramErr(part, "chamfer profile inset %.3f leaves no footprint in a %.3f×%.3f outline", prof.Inset(), w, h)
	}

	sections := make([]kernel.Section, 0, len(levels))
	for i := len(levels) - 1; i >= 0; i-- {
		l := levels[i]
		wire, err := k.Polyline(kernel.RoundedRect(l.w, l.h, l.r), true)
		if err != nil {
			return nil, kernelErr(part, "profile wire", err)
		}
		sections = append(sections, kernel.Section{
			Wire:  wire,
			Plane: kernel.Plane{Axis: kernel.AxisZ, Origin: r3.Vec{X: centre.X, Y: centre.Y, Z: l.z}},
		})
	}
	s, err := k.Loft(sections...)
	if err != nil {
		return nil, kernelErr(part, "profile loft", err)
	}
	return s, nil
}

// prism extrudes a plan outline placed at centre from z0 to z1.
func prism(k kernel.Kernel, part Kind, outline []r2.Vec, centre r2.Vec, z0, z1 float64) (kernel.Shape, error) {
	wire, err := k.Polyline(kernel.Translate(outline, centre), true)
	if err != nil {
		return nil, kernelErr(part, "outline wire", err)
	}
	s, err := k.Extrude(wire, kernel.XY(z0), z1-z0, 0)
	if err != nil {
		return nil, kernelErr(part, "extrude", err)
	}
	return s, nil
}

// gridBody is the shared construction of boxes and lids: one foot per cell
// under a rounded block, optional cavity, stacking lip and magnet holes.
type gridBody struct {
	Length, Width int
	Top           float64 // Z of the top rim, below any lip
	Solid         bool
	Lip           bool
	Holes         bool
}

func (g gridBody) build(k kernel.Kernel, part Kind, c scaling.Constants) (kernel.Shape, error) {
	unit := c.Settings.UnitSize
	footTop := c.BoxProfile.Height()
	if g.Top <= footTop {
		return nil, paramErr(part, "height %.3fmm does not clear the %.3fmm foot", g.Top, footTop)
	}
	outerX := float64(g.Length)*unit - c.Tolerance
	outerY := float64(g.Width)*unit - c.Tolerance
	cell := unit - c.Tolerance

	centres := cellCentres(g.Length, g.Width, unit)
	solids := make([]kernel.Shape, 0, len(centres)+1)
	for _, ctr := range centres {
		foot, err := profileLoft(k, part, c.BoxProfile, ctr, cell, cell, c.CornerRadius, 0)
		if err != nil {
			return nil, err
		}
		solids = append(solids, foot)
	}

	rim := g.Top
	if g.Lip {
		rim += c.LipHeight
	}
	block, err := prism(k, part, kernel.RoundedRect(outerX, outerY, c.CornerRadius), r2.Vec{}, footTop, rim)
	if err != nil {
		return nil, err
	}
	solids = append(solids, block)

	body, err := k.Union(solids...)
	if err != nil {
		return nil, kernelErr(part, "body union", err)
	}

	var cutters []kernel.Shape
	if !g.Solid && g.Top > c.UnitBottomHeight {
		in := 2 * c.WallThick
		// Under a lip the cavity stops at the rim; the narrower lip opening
		// continues above it.
		cavityTop := g.Top + 1
		if g.Lip {
			cavityTop = g.Top
		}
		cavity, err := prism(k, part,
			kernel.RoundedRect(outerX-in, outerY-in, math.Max(0, c.CornerRadius-c.WallThick)),
			r2.Vec{}, c.UnitBottomHeight, cavityTop)
		if err != nil {
			return nil, err
		}
		cutters = append(cutters, cavity)
	}
	if g.Lip {
		in := 2 * c.LipThick
		if outerX <= in || outerY <= in {
			return nil, paramErr(part, "lip thickness %.3f does not fit a %.3f×%.3f outline", c.LipThick, outerX, outerY)
		}
		lipHole, err := prism(k, part,
			kernel.RoundedRect(outerX-in, outerY-in, math.Max(0, c.CornerRadius-c.LipThick)),
			r2.Vec{}, g.Top, rim+1)
		if err != nil {
			return nil, err
		}
		cutters = append(cutters, lipHole)
	}
	if g.Holes {
		magnet := kernel.Circle(c.MagnetRadius, kernel.CircleSegments)
		for _, ctr := range centres {
			for _, d := range []r2.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}} {
				at := r2.Add(ctr, r2.Scale(c.HoleSpacing, d))
				hole, err := prism(k, part, magnet, at, -1, c.MagnetDepth)
				if err != nil {
					return nil, err
				}
				cutters = append(cutters, hole)
			}
		}
	}
	if len(cutters) == 0 {
		return body, nil
	}
	out, err := k.Cut(body, cutters...)
	if err != nil {
		return nil, kernelErr(part, "cut", err)
	}
	return out, nil
}
